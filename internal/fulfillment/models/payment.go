package models

import id "veil/pkg/domain"

// PaymentState is the normalized classification of the registrar's free-text
// top-up status. The engine branches on these values only; raw provider text
// never reaches decision logic.
type PaymentState string

const (
	// PaymentStateWaiting: top-up exists but no funds have been seen.
	// Safe to broadcast a transfer.
	PaymentStateWaiting PaymentState = "waiting"
	// PaymentStateIncoming: the registrar has seen an inbound transaction
	// that is not yet confirmed. Broadcasting again would double-pay.
	PaymentStateIncoming PaymentState = "incoming"
	// PaymentStateConfirmed: the top-up is credited to the prepaid balance.
	PaymentStateConfirmed PaymentState = "confirmed"
	// PaymentStateCancelled: the registrar cancelled or expired the top-up.
	PaymentStateCancelled PaymentState = "cancelled"
	// PaymentStateUnknown: unrecognized provider text.
	PaymentStateUnknown PaymentState = "unknown"
)

// TopUp is a freshly created registrar prepaid-balance transaction.
type TopUp struct {
	ID      id.PaymentID
	Address string
}

// TopUpStatus is the current state of a top-up, with the raw provider text
// kept for logging and reconciliation.
type TopUpStatus struct {
	Raw   string
	State PaymentState
}

// TaskResult is the outcome of polling a registrar registration task.
type TaskResult struct {
	Completed bool
	Success   bool
	Raw       string
}
