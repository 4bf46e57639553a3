package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType distinguishes a partial payment from one that settles
// the remaining balance.
type PaymentType string

const (
	// PaymentTypeDown is a partial payment toward the task total.
	PaymentTypeDown PaymentType = "down"

	// PaymentTypeFull settles the task: its amount is computed by the
	// engine as the remaining balance, never taken from caller input.
	PaymentTypeFull PaymentType = "full"
)

// Accepted payment methods.
const (
	PaymentMethodDO      = "DO"
	PaymentMethodInvoice = "Invoice"
	PaymentMethodWallet  = "Wallet"
	PaymentMethodCash    = "cash"
)

// Payment is a single recorded payment against a task. Payments are
// immutable once created; the only mutation is deletion via "cancel
// last payment".
type Payment struct {
	ID     string          `json:"id"`
	TaskID string          `json:"task_id"`
	Amount decimal.Decimal `json:"amount"`
	Type   PaymentType     `json:"payment_type"`
	Method string          `json:"payment_method"`
	PaidBy string          `json:"paid_by"`
	PaidAt time.Time       `json:"paid_at"`
	Notes  string          `json:"notes,omitempty"`
}

// PaymentStatus is the denormalized payment summary for one task.
// It is never independently authoritative: it can always be rebuilt
// from the task's payments and its final price.
type PaymentStatus struct {
	TaskID string `json:"task_id"`

	// PaidAmount is the sum of all payments for the task.
	PaidAmount decimal.Decimal `json:"paid_amount"`

	// IsFullyPaid is true when the paid amount meets or exceeds the
	// final price, so an overpaid task is also fully paid.
	IsFullyPaid bool `json:"is_fully_paid"`

	// IsDownPaymentOnly is true when something has been paid but the
	// balance is not yet settled.
	IsDownPaymentOnly bool `json:"is_down_payment_only"`

	UpdatedAt time.Time `json:"updated_at"`
}
