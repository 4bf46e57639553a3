package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printdesk/printdesk/internal/model"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
// The ingestion engine treats it as the normal "already seen" signal.
var ErrDuplicate = errors.New("duplicate row")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// EmailFilter controls filtering and pagination for email queries.
type EmailFilter struct {
	MailboxID *string
	Folder    *string
	Status    *string
	IsRead    *bool
	Query     *string
	Limit     int
	Offset    int
}

// Store defines the persistence interface for mailboxes, emails,
// tasks, payments, and their associated records.
type Store interface {
	// === Mailboxes ===

	UpsertMailbox(ctx context.Context, mb model.Mailbox) (model.Mailbox, error)
	GetMailboxes(ctx context.Context) ([]model.Mailbox, error)
	GetMailboxByName(ctx context.Context, name string) (*model.Mailbox, error)

	// === Fetch runs ===

	CreateFetchRun(ctx context.Context, mailboxID string) (model.FetchRun, error)
	FinalizeFetchRun(ctx context.Context, id string, success bool, message string) error
	GetFetchRuns(ctx context.Context, mailboxID string, limit int) ([]model.FetchRun, error)
	PruneFetchRuns(ctx context.Context, olderThan time.Time) (int, error)

	// === Emails ===

	CreateEmail(ctx context.Context, em model.EmailMessage) (model.EmailMessage, error)
	EmailExists(ctx context.Context, mailboxID, folder string, uid uint32) (bool, error)
	MessageIDExists(ctx context.Context, messageID string) (bool, error)
	MaxUID(ctx context.Context, mailboxID, folder string) (uint32, error)
	GetEmails(ctx context.Context, filter EmailFilter) ([]model.EmailMessage, error)
	GetEmailByID(ctx context.Context, id string) (*model.EmailMessage, error)
	SetEmailHasAttachments(ctx context.Context, emailID string) error

	CreateAttachment(ctx context.Context, att model.Attachment) (model.Attachment, error)
	AttachmentExists(ctx context.Context, emailID, filename string) (bool, error)
	GetAttachments(ctx context.Context, emailID string) ([]model.Attachment, error)

	CreateOutgoingEmail(ctx context.Context, out model.OutgoingEmail) error

	// === Tasks ===

	CreateTask(ctx context.Context, task model.Task) (model.Task, error)
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	SetTaskFinalPrice(ctx context.Context, id string, price decimal.Decimal) error

	// === Payments ===

	CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	GetPayments(ctx context.Context, taskID string) ([]model.Payment, error)
	LatestPayment(ctx context.Context, taskID string) (*model.Payment, error)
	SumPayments(ctx context.Context, taskID string) (decimal.Decimal, error)

	// SavePaymentStatus writes the recomputed summary and the derived
	// task-level status in a single transaction.
	SavePaymentStatus(ctx context.Context, st model.PaymentStatus, paid model.PaidStatus) error
	GetPaymentStatus(ctx context.Context, taskID string) (*model.PaymentStatus, error)

	// === Activity log ===

	AppendActivity(ctx context.Context, entry model.ActivityEntry) error
	GetActivity(ctx context.Context, taskID string) ([]model.ActivityEntry, error)

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context, user string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// === Currency rates ===

	SetCurrencyRate(ctx context.Context, usdToLBP decimal.Decimal) error
	LatestCurrencyRate(ctx context.Context) (decimal.Decimal, error)
}
