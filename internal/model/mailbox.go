package model

import "time"

// Mailbox is the connection profile for one monitored email account.
// Each mailbox is polled independently; an ingestion failure on one
// never affects the others.
type Mailbox struct {
	// ID is the internal unique identifier for this mailbox.
	ID string `json:"id"`

	// Name is the operator-assigned label. It is unique and also
	// namespaces attachment storage paths, so renaming a mailbox
	// moves where new attachments land.
	Name string `json:"name"`

	// IMAP settings.
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"`

	// IMAPTLS selects implicit TLS when true; otherwise the
	// connection is opened in plaintext and upgraded via STARTTLS.
	IMAPTLS bool `json:"imap_tls"`

	// SMTP settings, used for replies sent on behalf of this mailbox.
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	SMTPStartTLS bool   `json:"smtp_starttls"`

	CreatedAt time.Time `json:"created_at"`
}

// FetchRun records the outcome of a single ingestion pass over one
// mailbox. A run is created when the pass starts and finalized exactly
// once when it ends, success or not; finalized runs are never mutated.
type FetchRun struct {
	ID        string `json:"id"`
	MailboxID string `json:"mailbox_id"`

	StartedAt time.Time `json:"started_at"`

	// FinishedAt is nil while the run is still in progress.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Success bool `json:"success"`

	// Message is a human-readable summary: the folder list on success,
	// the error text on failure.
	Message string `json:"message"`
}
