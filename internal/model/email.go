package model

import "time"

// Email workflow statuses.
const (
	EmailStatusNew        = "new"
	EmailStatusInProgress = "in_progress"
	EmailStatusResolved   = "resolved"
)

// EmailMessage is the normalized representation of a fetched message.
// Rows are created only by the ingestion engine; the surrounding
// application owns the read/assignment/status fields afterward.
type EmailMessage struct {
	// ID is the internal unique identifier for this message.
	ID string `json:"id"`

	// MailboxID links the message to the mailbox it was fetched from.
	MailboxID string `json:"mailbox_id"`

	// Folder is the normalized folder name: lower-case, dots stripped,
	// surrounding whitespace trimmed.
	Folder string `json:"folder"`

	Sender     string `json:"sender"`
	Recipients string `json:"recipients"`
	Subject    string `json:"subject"`

	// Body is the extracted plain-text body; empty when extraction failed.
	Body string `json:"body"`

	// DateReceived is parsed from the message's Date header, falling
	// back to ingestion time when the header is absent or unparseable.
	// It is never zero.
	DateReceived time.Time `json:"date_received"`

	HasAttachments bool `json:"has_attachments"`

	// MessageID is globally unique across the store. When the message
	// carries no Message-ID header, a fallback is synthesized from the
	// UID, mailbox, and folder.
	MessageID string `json:"message_id"`

	// UID is the server-assigned, folder-scoped identifier used for
	// incremental resync.
	UID uint32 `json:"uid"`

	IsRead     bool   `json:"is_read"`
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// Attachment is a file extracted from exactly one email message.
// Payloads live on disk under the media root; Path is the
// media-relative location, attachments/<mailbox>/<filename>.
type Attachment struct {
	ID       string `json:"id"`
	EmailID  string `json:"email_id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// OutgoingEmail records a reply or new message sent through a
// mailbox's SMTP settings.
type OutgoingEmail struct {
	ID string `json:"id"`

	// OriginalEmailID is the replied-to message, empty for fresh sends.
	OriginalEmailID string `json:"original_email_id,omitempty"`

	MailboxID  string    `json:"mailbox_id"`
	SenderUser string    `json:"sender_user"`
	Recipients string    `json:"recipients"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}
