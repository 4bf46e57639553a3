package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaidStatus is the task-level payment state derived from the paid
// amount versus the required total. The three states are mutually
// exclusive.
type PaidStatus string

const (
	PaidStatusPaid     PaidStatus = "P"
	PaidStatusUnpaid   PaidStatus = "U"
	PaidStatusOverpaid PaidStatus = "O"
)

// Supported billing currencies.
const (
	CurrencyUSD = "USD"
	CurrencyLBP = "LBP"
)

// Task is the narrow view of a job that the payment engine reads and
// writes. The task lifecycle itself (workflow, subtasks, delivery) is
// owned by the surrounding application.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OrderNumber string `json:"order_number"`

	// FinalPrice is the required total for the job.
	FinalPrice decimal.Decimal `json:"final_price"`

	Currency string `json:"currency"`

	// PaidStatus is maintained by the reconciliation engine; callers
	// should treat it as read-only.
	PaidStatus PaidStatus `json:"paid_status"`

	CreatedAt time.Time `json:"created_at"`
}

// ActivityEntry is an append-only audit record attached to a task.
type ActivityEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrencyRate is an exchange-rate snapshot; the most recent row wins.
type CurrencyRate struct {
	ID        string          `json:"id"`
	USDToLBP  decimal.Decimal `json:"usd_to_lbp"`
	UpdatedAt time.Time       `json:"updated_at"`
}
