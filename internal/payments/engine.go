// Package payments implements the payment reconciliation engine: the
// single source of truth for how much of a task has been paid and
// which payment state it is in.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/printdesk/printdesk/internal/model"
	"github.com/printdesk/printdesk/internal/store"
)

// ValidationError is a rejected payment operation with a
// human-readable reason. No state is written when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err (or any error in its chain)
// is a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Notifier receives fire-and-forget payment notifications. A nil
// notifier disables fan-out; notification failure never fails the
// payment that triggered it.
type Notifier interface {
	PaymentRecorded(ctx context.Context, task model.Task, message, actor string)
}

// PaymentRequest describes a payment being recorded against a task.
// For full payments the Amount field is ignored: the engine computes
// the remaining balance itself.
type PaymentRequest struct {
	TaskID string
	Amount decimal.Decimal
	Type   model.PaymentType
	Method string
	Actor  string
	Notes  string
}

// Engine maintains the denormalized payment summary for tasks.
// Operations against the same task are serialized with a per-task
// lock, so two concurrent full payments cannot both observe the same
// stale remaining balance.
type Engine struct {
	store    store.Store
	notifier Notifier
	log      *logrus.Logger

	mu        sync.Mutex
	taskLocks map[string]*sync.Mutex
}

// New creates a reconciliation engine. notifier may be nil.
func New(st store.Store, notifier Notifier, log *logrus.Logger) *Engine {
	return &Engine{
		store:     st,
		notifier:  notifier,
		log:       log,
		taskLocks: make(map[string]*sync.Mutex),
	}
}

// lockTask acquires the per-task mutex and returns its unlock func.
func (e *Engine) lockTask(taskID string) func() {
	e.mu.Lock()
	lock, ok := e.taskLocks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		e.taskLocks[taskID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Recompute rebuilds the payment summary for a task from its payment
// rows and propagates the derived status onto the task. It is
// idempotent: with no intervening payment change, repeated calls
// produce the same summary.
func (e *Engine) Recompute(ctx context.Context, taskID string) (model.PaymentStatus, error) {
	defer e.lockTask(taskID)()
	st, _, err := e.recomputeLocked(ctx, taskID)
	return st, err
}

// recomputeLocked performs the recompute under an already-held task
// lock and returns the summary plus the task with its fresh status.
func (e *Engine) recomputeLocked(
	ctx context.Context,
	taskID string,
) (model.PaymentStatus, model.Task, error) {
	task, err := e.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return model.PaymentStatus{}, model.Task{}, fmt.Errorf("loading task: %w", err)
	}

	total, err := e.store.SumPayments(ctx, taskID)
	if err != nil {
		return model.PaymentStatus{}, model.Task{}, fmt.Errorf("summing payments: %w", err)
	}

	st := model.PaymentStatus{
		TaskID:     taskID,
		PaidAmount: total,
		// Overpaid implies fully paid; only the task-level status
		// distinguishes the two.
		IsFullyPaid:       total.GreaterThanOrEqual(task.FinalPrice),
		IsDownPaymentOnly: total.IsPositive() && total.LessThan(task.FinalPrice),
	}

	var paid model.PaidStatus
	switch {
	case total.Equal(task.FinalPrice):
		paid = model.PaidStatusPaid
	case total.GreaterThan(task.FinalPrice):
		paid = model.PaidStatusOverpaid
	default:
		paid = model.PaidStatusUnpaid
	}

	if err := e.store.SavePaymentStatus(ctx, st, paid); err != nil {
		return model.PaymentStatus{}, model.Task{}, fmt.Errorf("saving payment status: %w", err)
	}

	task.PaidStatus = paid
	return st, *task, nil
}

// RecordPayment validates and records a payment, then recomputes the
// task's payment status, appends an audit entry, and notifies
// interested users.
func (e *Engine) RecordPayment(ctx context.Context, req PaymentRequest) (model.Payment, error) {
	defer e.lockTask(req.TaskID)()

	task, err := e.store.GetTaskByID(ctx, req.TaskID)
	if err != nil {
		return model.Payment{}, fmt.Errorf("loading task: %w", err)
	}

	paidSoFar, err := e.store.SumPayments(ctx, req.TaskID)
	if err != nil {
		return model.Payment{}, fmt.Errorf("summing payments: %w", err)
	}
	remaining := task.FinalPrice.Sub(paidSoFar)

	var amount decimal.Decimal
	switch req.Type {
	case model.PaymentTypeFull:
		if !remaining.IsPositive() {
			return model.Payment{}, &ValidationError{Reason: "this task is already fully paid"}
		}
		// Full payment settles exactly the remaining balance; caller
		// input is never trusted for the amount.
		amount = remaining

	case model.PaymentTypeDown:
		if !req.Amount.IsPositive() {
			return model.Payment{}, &ValidationError{Reason: "payment amount must be positive"}
		}
		if req.Amount.GreaterThan(remaining) {
			return model.Payment{}, &ValidationError{Reason: fmt.Sprintf(
				"down payment exceeds remaining amount (%s %s)",
				remaining.StringFixed(2), task.Currency,
			)}
		}
		amount = req.Amount

	default:
		return model.Payment{}, &ValidationError{Reason: fmt.Sprintf("unknown payment type %q", req.Type)}
	}

	payment, err := e.store.CreatePayment(ctx, model.Payment{
		TaskID: req.TaskID,
		Amount: amount,
		Type:   req.Type,
		Method: req.Method,
		PaidBy: req.Actor,
		Notes:  req.Notes,
	})
	if err != nil {
		return model.Payment{}, fmt.Errorf("recording payment: %w", err)
	}

	_, updated, err := e.recomputeLocked(ctx, req.TaskID)
	if err != nil {
		return payment, err
	}

	action := "Down Payment"
	if req.Type == model.PaymentTypeFull {
		action = "Full Payment"
	}
	e.appendActivity(ctx, req.TaskID, req.Actor, action,
		fmt.Sprintf("Amount: %s %s", amount.StringFixed(2), task.Currency))

	if e.notifier != nil {
		message := fmt.Sprintf("Task %s received a down payment.", taskLabel(updated))
		if updated.PaidStatus == model.PaidStatusPaid {
			message = fmt.Sprintf("Task %s has been fully paid.", taskLabel(updated))
		}
		e.notifier.PaymentRecorded(ctx, updated, message, req.Actor)
	}

	return payment, nil
}

// CancelLastPayment deletes the most recent payment for a task and
// recomputes its status. Canceling with no payments on record is a
// validation error.
func (e *Engine) CancelLastPayment(ctx context.Context, taskID, actor string) error {
	defer e.lockTask(taskID)()

	task, err := e.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("loading task: %w", err)
	}

	last, err := e.store.LatestPayment(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ValidationError{Reason: "no payment found to cancel"}
		}
		return fmt.Errorf("loading latest payment: %w", err)
	}

	if err := e.store.DeletePayment(ctx, last.ID); err != nil {
		return fmt.Errorf("deleting payment: %w", err)
	}

	if _, _, err := e.recomputeLocked(ctx, taskID); err != nil {
		return err
	}

	e.appendActivity(ctx, taskID, actor, "Canceled Last Payment",
		fmt.Sprintf("Canceled payment of %s %s", last.Amount.StringFixed(2), task.Currency))

	return nil
}

// FixOverpaid collapses an overpayment by lowering the task's required
// total to match what was actually paid, then recomputes. This is an
// explicit administrative escape hatch, never automatic.
func (e *Engine) FixOverpaid(ctx context.Context, taskID, actor string) error {
	defer e.lockTask(taskID)()

	task, err := e.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("loading task: %w", err)
	}

	paidSoFar, err := e.store.SumPayments(ctx, taskID)
	if err != nil {
		return fmt.Errorf("summing payments: %w", err)
	}

	oldPrice := task.FinalPrice
	if err := e.store.SetTaskFinalPrice(ctx, taskID, paidSoFar); err != nil {
		return fmt.Errorf("adjusting final price: %w", err)
	}

	if _, _, err := e.recomputeLocked(ctx, taskID); err != nil {
		return err
	}

	e.appendActivity(ctx, taskID, actor, "Fixed Overpaid Task",
		fmt.Sprintf("Adjusted final price from %s to %s to resolve overpayment",
			oldPrice.StringFixed(2), paidSoFar.StringFixed(2)))

	return nil
}

// ConvertToLBP converts an amount to LBP using the latest stored rate.
// Amounts already in LBP pass through; a missing rate yields zero.
func (e *Engine) ConvertToLBP(
	ctx context.Context,
	amount decimal.Decimal,
	currency string,
) (decimal.Decimal, error) {
	if currency == model.CurrencyLBP {
		return amount, nil
	}

	rate, err := e.store.LatestCurrencyRate(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading currency rate: %w", err)
	}
	return amount.Mul(rate), nil
}

// appendActivity writes an audit entry; audit failures are logged but
// never fail the payment operation that triggered them.
func (e *Engine) appendActivity(ctx context.Context, taskID, actor, action, note string) {
	err := e.store.AppendActivity(ctx, model.ActivityEntry{
		TaskID: taskID,
		Actor:  actor,
		Action: action,
		Note:   note,
	})
	if err != nil {
		e.log.WithField("task", taskID).WithError(err).Warn("appending activity entry")
	}
}

// taskLabel returns the human-facing identifier for a task.
func taskLabel(task model.Task) string {
	if task.OrderNumber != "" {
		return "#" + task.OrderNumber
	}
	return task.ID
}
