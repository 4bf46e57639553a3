package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/printdesk/printdesk/internal/model"
)

// CreateEmail inserts a normalized email row. A UNIQUE violation on
// either (mailbox_id, folder, uid) or message_id is reported as
// ErrDuplicate so callers can treat "already stored" as a skip signal
// instead of racing a pre-check query.
func (s *SQLiteStore) CreateEmail(
	ctx context.Context,
	em model.EmailMessage,
) (model.EmailMessage, error) {
	if em.ID == "" {
		em.ID = uuid.New().String()
	}
	if em.Status == "" {
		em.Status = model.EmailStatusNew
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, mailbox_id, folder, sender, recipients, subject, body,
			date_received, has_attachments, message_id, uid,
			is_read, status, assigned_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		em.ID, em.MailboxID, em.Folder, em.Sender, em.Recipients, em.Subject, em.Body,
		em.DateReceived.UTC(), boolToInt(em.HasAttachments), em.MessageID, em.UID,
		boolToInt(em.IsRead), em.Status, em.AssignedTo,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.EmailMessage{}, fmt.Errorf(
				"email %s already stored: %w", em.MessageID, ErrDuplicate,
			)
		}
		return model.EmailMessage{}, fmt.Errorf("inserting email %s: %w", em.MessageID, err)
	}

	return em, nil
}

// EmailExists reports whether a message with the given UID is already
// stored for a mailbox/folder pair.
func (s *SQLiteStore) EmailExists(
	ctx context.Context,
	mailboxID, folder string,
	uid uint32,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM emails WHERE mailbox_id = ? AND folder = ? AND uid = ?",
		mailboxID, folder, uid,
	)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return count > 0, nil
}

// MessageIDExists reports whether any stored email carries the given
// Message-ID.
func (s *SQLiteStore) MessageIDExists(
	ctx context.Context,
	messageID string,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM emails WHERE message_id = ?", messageID,
	)
	if err != nil {
		return false, fmt.Errorf("checking message id existence: %w", err)
	}
	return count > 0, nil
}

// MaxUID returns the high-water mark for a mailbox/folder pair: the
// largest UID already ingested, or 0 when the folder has never been
// fetched.
func (s *SQLiteStore) MaxUID(
	ctx context.Context,
	mailboxID, folder string,
) (uint32, error) {
	var maxUID uint32
	err := s.db.GetContext(ctx, &maxUID,
		"SELECT COALESCE(MAX(uid), 0) FROM emails WHERE mailbox_id = ? AND folder = ?",
		mailboxID, folder,
	)
	if err != nil {
		return 0, fmt.Errorf("reading max uid for %s/%s: %w", mailboxID, folder, err)
	}
	return maxUID, nil
}

// GetEmails retrieves emails matching the filter, newest first.
func (s *SQLiteStore) GetEmails(
	ctx context.Context,
	filter EmailFilter,
) ([]model.EmailMessage, error) {
	var conditions []string
	var args []interface{}

	if filter.MailboxID != nil {
		conditions = append(conditions, "mailbox_id = ?")
		args = append(args, *filter.MailboxID)
	}
	if filter.Folder != nil {
		conditions = append(conditions, "folder = ?")
		args = append(args, *filter.Folder)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.IsRead != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, boolToInt(*filter.IsRead))
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR sender LIKE ? OR body LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q, q)
	}

	query := "SELECT * FROM emails"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date_received DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var emails []model.EmailMessage
	for rows.Next() {
		em, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, em)
	}

	return emails, rows.Err()
}

// GetEmailByID retrieves a single email by its ID.
func (s *SQLiteStore) GetEmailByID(
	ctx context.Context,
	id string,
) (*model.EmailMessage, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM emails WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying email %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}

	em, err := scanEmail(rows)
	if err != nil {
		return nil, err
	}
	return &em, nil
}

// SetEmailHasAttachments flips the has_attachments flag on.
func (s *SQLiteStore) SetEmailHasAttachments(
	ctx context.Context,
	emailID string,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE emails SET has_attachments = 1 WHERE id = ?", emailID,
	)
	if err != nil {
		return fmt.Errorf("marking email %s as having attachments: %w", emailID, err)
	}
	return nil
}

// CreateAttachment inserts an attachment row. A UNIQUE violation on
// (email_id, filename) is reported as ErrDuplicate.
func (s *SQLiteStore) CreateAttachment(
	ctx context.Context,
	att model.Attachment,
) (model.Attachment, error) {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, email_id, filename, path)
		VALUES (?, ?, ?, ?)`,
		att.ID, att.EmailID, att.Filename, att.Path,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Attachment{}, fmt.Errorf(
				"attachment %s already stored: %w", att.Filename, ErrDuplicate,
			)
		}
		return model.Attachment{}, fmt.Errorf("inserting attachment %s: %w", att.Filename, err)
	}

	return att, nil
}

// AttachmentExists reports whether an email already has an attachment
// with the given filename.
func (s *SQLiteStore) AttachmentExists(
	ctx context.Context,
	emailID, filename string,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM attachments WHERE email_id = ? AND filename = ?",
		emailID, filename,
	)
	if err != nil {
		return false, fmt.Errorf("checking attachment existence: %w", err)
	}
	return count > 0, nil
}

// GetAttachments retrieves all attachments for an email.
func (s *SQLiteStore) GetAttachments(
	ctx context.Context,
	emailID string,
) ([]model.Attachment, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM attachments WHERE email_id = ? ORDER BY filename", emailID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	var attachments []model.Attachment
	for rows.Next() {
		var att model.Attachment
		if err := rows.Scan(&att.ID, &att.EmailID, &att.Filename, &att.Path); err != nil {
			return nil, fmt.Errorf("scanning attachment row: %w", err)
		}
		attachments = append(attachments, att)
	}

	return attachments, rows.Err()
}

// CreateOutgoingEmail records a sent reply or message.
func (s *SQLiteStore) CreateOutgoingEmail(
	ctx context.Context,
	out model.OutgoingEmail,
) error {
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.SentAt.IsZero() {
		out.SentAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outgoing_emails (
			id, original_email_id, mailbox_id, sender_user,
			recipients, subject, body, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.OriginalEmailID, out.MailboxID, out.SenderUser,
		out.Recipients, out.Subject, out.Body, out.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting outgoing email: %w", err)
	}

	return nil
}

// scanEmail scans an email row from a sqlx.Rows result set.
func scanEmail(rows *sqlx.Rows) (model.EmailMessage, error) {
	var (
		em             model.EmailMessage
		dateReceived   time.Time
		hasAttachments int
		isRead         int
	)

	err := rows.Scan(
		&em.ID, &em.MailboxID, &em.Folder, &em.Sender, &em.Recipients,
		&em.Subject, &em.Body, &dateReceived, &hasAttachments,
		&em.MessageID, &em.UID, &isRead, &em.Status, &em.AssignedTo,
	)
	if err != nil {
		return model.EmailMessage{}, fmt.Errorf("scanning email row: %w", err)
	}

	em.DateReceived = dateReceived
	em.HasAttachments = hasAttachments != 0
	em.IsRead = isRead != 0

	return em, nil
}
