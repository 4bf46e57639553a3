package model

import "time"

// Notification is an alert surfaced to a user about activity on a
// task, such as a payment being recorded.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// User is the recipient username.
	User string `json:"user"`

	// TaskID links this notification to the originating task.
	TaskID string `json:"task_id"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Category groups notifications by kind, e.g. "Payment".
	Category string `json:"category"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}
