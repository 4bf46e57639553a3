package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/printdesk/printdesk/internal/model"
)

// CreateTask inserts a task row. Tasks are owned by the surrounding
// application; this store carries the narrow slice the payment engine
// needs.
func (s *SQLiteStore) CreateTask(
	ctx context.Context,
	task model.Task,
) (model.Task, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Currency == "" {
		task.Currency = model.CurrencyUSD
	}
	if task.PaidStatus == "" {
		task.PaidStatus = model.PaidStatusUnpaid
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, order_number, final_price, currency, paid_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Name, task.OrderNumber, task.FinalPrice.StringFixed(2),
		task.Currency, string(task.PaidStatus), task.CreatedAt.UTC(),
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("inserting task %s: %w", task.ID, err)
	}

	return task, nil
}

// GetTaskByID retrieves a single task by its ID.
func (s *SQLiteStore) GetTaskByID(
	ctx context.Context,
	id string,
) (*model.Task, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM tasks WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying task %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	task, err := scanTask(rows)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// SetTaskFinalPrice updates a task's required total. Used by the
// "fix overpaid" escape hatch.
func (s *SQLiteStore) SetTaskFinalPrice(
	ctx context.Context,
	id string,
	price decimal.Decimal,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET final_price = ? WHERE id = ?", price.StringFixed(2), id,
	)
	if err != nil {
		return fmt.Errorf("updating final price for task %s: %w", id, err)
	}
	return nil
}

// CreatePayment inserts a payment row.
func (s *SQLiteStore) CreatePayment(
	ctx context.Context,
	p model.Payment,
) (model.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now()
	}
	if p.Method == "" {
		p.Method = model.PaymentMethodCash
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, task_id, amount, payment_type, payment_method, paid_by, paid_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TaskID, p.Amount.StringFixed(2), string(p.Type),
		p.Method, p.PaidBy, p.PaidAt.UTC(), p.Notes,
	)
	if err != nil {
		return model.Payment{}, fmt.Errorf("inserting payment for task %s: %w", p.TaskID, err)
	}

	return p, nil
}

// DeletePayment removes a payment by ID.
func (s *SQLiteStore) DeletePayment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting payment %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting payment %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetPayments retrieves all payments for a task, oldest first.
func (s *SQLiteStore) GetPayments(
	ctx context.Context,
	taskID string,
) ([]model.Payment, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM payments WHERE task_id = ? ORDER BY paid_at ASC", taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// LatestPayment retrieves the most recent payment for a task, or
// ErrNotFound when the task has no payments.
func (s *SQLiteStore) LatestPayment(
	ctx context.Context,
	taskID string,
) (*model.Payment, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM payments WHERE task_id = ? ORDER BY paid_at DESC LIMIT 1", taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest payment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no payments for task %s: %w", taskID, ErrNotFound)
	}

	p, err := scanPayment(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SumPayments returns the total amount paid against a task. Amounts
// are stored as fixed-point text, so the sum is computed in Go rather
// than in SQL.
func (s *SQLiteStore) SumPayments(
	ctx context.Context,
	taskID string,
) (decimal.Decimal, error) {
	payments, err := s.GetPayments(ctx, taskID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

// SavePaymentStatus upserts the denormalized summary and propagates
// the derived task-level status in a single transaction, so readers
// never observe one without the other.
func (s *SQLiteStore) SavePaymentStatus(
	ctx context.Context,
	st model.PaymentStatus,
	paid model.PaidStatus,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_statuses (task_id, paid_amount, is_fully_paid, is_down_payment_only, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			paid_amount = excluded.paid_amount,
			is_fully_paid = excluded.is_fully_paid,
			is_down_payment_only = excluded.is_down_payment_only,
			updated_at = excluded.updated_at`,
		st.TaskID, st.PaidAmount.StringFixed(2),
		boolToInt(st.IsFullyPaid), boolToInt(st.IsDownPaymentOnly), st.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting payment status for task %s: %w", st.TaskID, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE tasks SET paid_status = ? WHERE id = ?", string(paid), st.TaskID,
	)
	if err != nil {
		return fmt.Errorf("updating paid status for task %s: %w", st.TaskID, err)
	}

	return tx.Commit()
}

// GetPaymentStatus retrieves the payment summary for a task, or
// ErrNotFound when no recompute has run yet.
func (s *SQLiteStore) GetPaymentStatus(
	ctx context.Context,
	taskID string,
) (*model.PaymentStatus, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM payment_statuses WHERE task_id = ?", taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying payment status: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("payment status for task %s: %w", taskID, ErrNotFound)
	}

	var (
		st                model.PaymentStatus
		paidAmount        string
		isFullyPaid       int
		isDownPaymentOnly int
		updatedAt         time.Time
	)
	err = rows.Scan(&st.TaskID, &paidAmount, &isFullyPaid, &isDownPaymentOnly, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning payment status row: %w", err)
	}

	st.PaidAmount, err = decimal.NewFromString(paidAmount)
	if err != nil {
		return nil, fmt.Errorf("parsing paid amount %q: %w", paidAmount, err)
	}
	st.IsFullyPaid = isFullyPaid != 0
	st.IsDownPaymentOnly = isDownPaymentOnly != 0
	st.UpdatedAt = updatedAt

	return &st, nil
}

// AppendActivity records an audit-log entry for a task.
func (s *SQLiteStore) AppendActivity(
	ctx context.Context,
	entry model.ActivityEntry,
) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, task_id, actor, action, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TaskID, entry.Actor, entry.Action, entry.Note, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending activity for task %s: %w", entry.TaskID, err)
	}

	return nil
}

// GetActivity retrieves the audit log for a task, newest first.
func (s *SQLiteStore) GetActivity(
	ctx context.Context,
	taskID string,
) ([]model.ActivityEntry, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM activity_log WHERE task_id = ? ORDER BY created_at DESC", taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying activity log: %w", err)
	}
	defer rows.Close()

	var entries []model.ActivityEntry
	for rows.Next() {
		var (
			entry     model.ActivityEntry
			createdAt time.Time
		)
		err := rows.Scan(&entry.ID, &entry.TaskID, &entry.Actor, &entry.Action, &entry.Note, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		entry.CreatedAt = createdAt
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user, task_id, message, category, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.User, n.TaskID, n.Message, n.Category, boolToInt(n.Read), n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// GetUnreadNotifications retrieves all unread notifications for a
// user, newest first.
func (s *SQLiteStore) GetUnreadNotifications(
	ctx context.Context,
	user string,
) ([]model.Notification, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM notifications WHERE user = ? AND read = 0 ORDER BY created_at DESC",
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var (
			n         model.Notification
			readInt   int
			createdAt time.Time
		)
		err := rows.Scan(&n.ID, &n.User, &n.TaskID, &n.Message, &n.Category, &readInt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		n.Read = readInt != 0
		n.CreatedAt = createdAt
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(
	ctx context.Context,
	id string,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// SetCurrencyRate records a new USD to LBP rate snapshot.
func (s *SQLiteStore) SetCurrencyRate(
	ctx context.Context,
	usdToLBP decimal.Decimal,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO currency_rates (id, usd_to_lbp, updated_at)
		VALUES (?, ?, ?)`,
		uuid.New().String(), usdToLBP.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting currency rate: %w", err)
	}
	return nil
}

// LatestCurrencyRate returns the most recent USD to LBP rate, or zero
// when no rate has been recorded.
func (s *SQLiteStore) LatestCurrencyRate(
	ctx context.Context,
) (decimal.Decimal, error) {
	var rate string
	err := s.db.GetContext(ctx, &rate,
		"SELECT usd_to_lbp FROM currency_rates ORDER BY updated_at DESC LIMIT 1",
	)
	if err != nil {
		// No rows means no rate configured yet.
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("querying currency rate: %w", err)
	}

	d, err := decimal.NewFromString(rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing currency rate %q: %w", rate, err)
	}
	return d, nil
}

// scanTask scans a task row from a sqlx.Rows result set.
func scanTask(rows *sqlx.Rows) (model.Task, error) {
	var (
		task       model.Task
		finalPrice string
		paidStatus string
		createdAt  time.Time
	)

	err := rows.Scan(
		&task.ID, &task.Name, &task.OrderNumber, &finalPrice,
		&task.Currency, &paidStatus, &createdAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	task.FinalPrice, err = decimal.NewFromString(finalPrice)
	if err != nil {
		return model.Task{}, fmt.Errorf("parsing final price %q: %w", finalPrice, err)
	}
	task.PaidStatus = model.PaidStatus(paidStatus)
	task.CreatedAt = createdAt

	return task, nil
}

// scanPayment scans a payment row from a sqlx.Rows result set.
func scanPayment(rows *sqlx.Rows) (model.Payment, error) {
	var (
		p      model.Payment
		amount string
		ptype  string
		paidAt time.Time
	)

	err := rows.Scan(
		&p.ID, &p.TaskID, &amount, &ptype, &p.Method, &p.PaidBy, &paidAt, &p.Notes,
	)
	if err != nil {
		return model.Payment{}, fmt.Errorf("scanning payment row: %w", err)
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Payment{}, fmt.Errorf("parsing payment amount %q: %w", amount, err)
	}
	p.Type = model.PaymentType(ptype)
	p.PaidAt = paidAt

	return p, nil
}
