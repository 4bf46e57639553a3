package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/printdesk/printdesk/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertMailbox inserts a mailbox or, when one with the same name
// already exists, updates its connection settings in place. The stored
// row (with its ID) is returned.
func (s *SQLiteStore) UpsertMailbox(
	ctx context.Context,
	mb model.Mailbox,
) (model.Mailbox, error) {
	existing, err := s.GetMailboxByName(ctx, mb.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.Mailbox{}, err
	}

	if existing != nil {
		mb.ID = existing.ID
		mb.CreatedAt = existing.CreatedAt
		_, err = s.db.ExecContext(ctx, `
			UPDATE mailboxes SET
				imap_host = ?, imap_port = ?, imap_username = ?, imap_password = ?, imap_tls = ?,
				smtp_host = ?, smtp_port = ?, smtp_username = ?, smtp_password = ?, smtp_starttls = ?
			WHERE id = ?`,
			mb.IMAPHost, mb.IMAPPort, mb.IMAPUsername, mb.IMAPPassword, boolToInt(mb.IMAPTLS),
			mb.SMTPHost, mb.SMTPPort, mb.SMTPUsername, mb.SMTPPassword, boolToInt(mb.SMTPStartTLS),
			mb.ID,
		)
		if err != nil {
			return model.Mailbox{}, fmt.Errorf("updating mailbox %s: %w", mb.Name, err)
		}
		return mb, nil
	}

	mb.ID = uuid.New().String()
	mb.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (
			id, name,
			imap_host, imap_port, imap_username, imap_password, imap_tls,
			smtp_host, smtp_port, smtp_username, smtp_password, smtp_starttls,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mb.ID, mb.Name,
		mb.IMAPHost, mb.IMAPPort, mb.IMAPUsername, mb.IMAPPassword, boolToInt(mb.IMAPTLS),
		mb.SMTPHost, mb.SMTPPort, mb.SMTPUsername, mb.SMTPPassword, boolToInt(mb.SMTPStartTLS),
		mb.CreatedAt,
	)
	if err != nil {
		return model.Mailbox{}, fmt.Errorf("inserting mailbox %s: %w", mb.Name, err)
	}
	return mb, nil
}

// GetMailboxes retrieves all configured mailboxes ordered by name.
func (s *SQLiteStore) GetMailboxes(ctx context.Context) ([]model.Mailbox, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM mailboxes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []model.Mailbox
	for rows.Next() {
		mb, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, mb)
	}

	return mailboxes, rows.Err()
}

// GetMailboxByName retrieves a single mailbox by its unique name.
func (s *SQLiteStore) GetMailboxByName(
	ctx context.Context,
	name string,
) (*model.Mailbox, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM mailboxes WHERE name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("querying mailbox %s: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mailbox %s: %w", name, ErrNotFound)
	}

	mb, err := scanMailbox(rows)
	if err != nil {
		return nil, err
	}
	return &mb, nil
}

// CreateFetchRun records the start of an ingestion pass for a mailbox.
func (s *SQLiteStore) CreateFetchRun(
	ctx context.Context,
	mailboxID string,
) (model.FetchRun, error) {
	run := model.FetchRun{
		ID:        uuid.New().String(),
		MailboxID: mailboxID,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_runs (id, mailbox_id, started_at, success, message)
		VALUES (?, ?, ?, 0, '')`,
		run.ID, run.MailboxID, run.StartedAt,
	)
	if err != nil {
		return model.FetchRun{}, fmt.Errorf("creating fetch run: %w", err)
	}

	return run, nil
}

// FinalizeFetchRun records the outcome of a run. A run is finalized
// exactly once; calling this for an already-finalized run is an error.
func (s *SQLiteStore) FinalizeFetchRun(
	ctx context.Context,
	id string,
	success bool,
	message string,
) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fetch_runs SET finished_at = ?, success = ?, message = ?
		WHERE id = ? AND finished_at IS NULL`,
		time.Now().UTC(), boolToInt(success), message, id,
	)
	if err != nil {
		return fmt.Errorf("finalizing fetch run %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalizing fetch run %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("fetch run %s already finalized or missing: %w", id, ErrNotFound)
	}

	return nil
}

// GetFetchRuns retrieves the most recent runs for a mailbox, newest first.
func (s *SQLiteStore) GetFetchRuns(
	ctx context.Context,
	mailboxID string,
	limit int,
) ([]model.FetchRun, error) {
	query := "SELECT * FROM fetch_runs WHERE mailbox_id = ? ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("querying fetch runs: %w", err)
	}
	defer rows.Close()

	var runs []model.FetchRun
	for rows.Next() {
		run, err := scanFetchRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// PruneFetchRuns deletes finalized runs that finished before the
// cutoff and returns how many were removed. In-progress runs are
// never pruned.
func (s *SQLiteStore) PruneFetchRuns(
	ctx context.Context,
	olderThan time.Time,
) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM fetch_runs WHERE finished_at IS NOT NULL AND finished_at < ?",
		olderThan.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning fetch runs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning fetch runs: %w", err)
	}
	return int(affected), nil
}

// scanMailbox scans a mailbox row from a sqlx.Rows result set.
func scanMailbox(rows *sqlx.Rows) (model.Mailbox, error) {
	var (
		mb           model.Mailbox
		imapTLS      int
		smtpStartTLS int
		createdAt    time.Time
	)

	err := rows.Scan(
		&mb.ID, &mb.Name,
		&mb.IMAPHost, &mb.IMAPPort, &mb.IMAPUsername, &mb.IMAPPassword, &imapTLS,
		&mb.SMTPHost, &mb.SMTPPort, &mb.SMTPUsername, &mb.SMTPPassword, &smtpStartTLS,
		&createdAt,
	)
	if err != nil {
		return model.Mailbox{}, fmt.Errorf("scanning mailbox row: %w", err)
	}

	mb.IMAPTLS = imapTLS != 0
	mb.SMTPStartTLS = smtpStartTLS != 0
	mb.CreatedAt = createdAt

	return mb, nil
}

// scanFetchRun scans a fetch run row from a sqlx.Rows result set.
func scanFetchRun(rows *sqlx.Rows) (model.FetchRun, error) {
	var (
		run        model.FetchRun
		startedAt  time.Time
		finishedAt sql.NullTime
		success    int
	)

	err := rows.Scan(
		&run.ID, &run.MailboxID, &startedAt, &finishedAt, &success, &run.Message,
	)
	if err != nil {
		return model.FetchRun{}, fmt.Errorf("scanning fetch run row: %w", err)
	}

	run.StartedAt = startedAt
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.Success = success != 0

	return run, nil
}

// isUniqueViolation reports whether err comes from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
