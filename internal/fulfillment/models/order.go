// Package models defines the order entity the fulfillment engine mutates and
// the typed results of the registrar adapters.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "veil/pkg/domain"
)

// PaymentStatus tracks the customer's inbound payment. The payment monitor
// sets it to paid; the engine only ever writes failed, and only on a
// registrar-confirmed permanent failure.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// OrderStatus tracks fulfillment progress. "error" is retryable: the next
// tick re-evaluates purely from persisted fields.
type OrderStatus string

const (
	OrderAwaitingPayment OrderStatus = "awaiting_payment"
	OrderProcessing      OrderStatus = "processing"
	OrderDelivered       OrderStatus = "delivered"
	OrderFailed          OrderStatus = "failed"
	OrderError           OrderStatus = "error"
)

// DomainOrder is a customer's domain purchase. The registrar payment fields
// are the idempotency anchors: they are populated strictly in the order
// payment id -> amount -> tx hash -> confirmed -> task id, and once a tx
// hash exists no further transfer may ever be broadcast for this order.
type DomainOrder struct {
	ID         id.OrderID
	DomainName string
	TLD        string

	// PriceEUR is the EUR price quoted at order creation.
	PriceEUR decimal.Decimal
	// Currency is the asset the customer paid with (e.g. "xmr").
	Currency     string
	AmountCrypto decimal.Decimal
	// Years is the registration period; intake defaults it to 1.
	Years int

	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus

	NjallaPaymentID      *id.PaymentID
	NjallaPaymentAddress *string
	// NjallaPaymentAmount is the crypto amount computed with margin, frozen
	// once persisted. Retries reuse it verbatim.
	NjallaPaymentAmount    *decimal.Decimal
	NjallaPaymentTxHash    *id.TxHash
	NjallaPaymentConfirmed bool
	NjallaTaskID           *id.TaskID

	// UnsupportedTLD freezes automatic processing until an operator steps in.
	UnsupportedTLD bool

	CreatedAt   time.Time
	PaidAt      *time.Time
	DeliveredAt *time.Time
	ExpiresAt   *time.Time
}

// Clone returns a deep copy so stores can hand out records without sharing
// pointers with callers.
func (o *DomainOrder) Clone() *DomainOrder {
	if o == nil {
		return nil
	}
	cp := *o
	cp.NjallaPaymentID = clonePtr(o.NjallaPaymentID)
	cp.NjallaPaymentAddress = clonePtr(o.NjallaPaymentAddress)
	cp.NjallaPaymentAmount = clonePtr(o.NjallaPaymentAmount)
	cp.NjallaPaymentTxHash = clonePtr(o.NjallaPaymentTxHash)
	cp.NjallaTaskID = clonePtr(o.NjallaTaskID)
	cp.PaidAt = clonePtr(o.PaidAt)
	cp.DeliveredAt = clonePtr(o.DeliveredAt)
	cp.ExpiresAt = clonePtr(o.ExpiresAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// FQDN returns the full domain name sent to the registrar.
func (o *DomainOrder) FQDN() string {
	return o.DomainName + "." + o.TLD
}

// OrderPatch is a sparse field-level update. Nil fields are left untouched
// so concurrent writers never clobber unrelated columns.
type OrderPatch struct {
	PaymentStatus *PaymentStatus
	OrderStatus   *OrderStatus

	NjallaPaymentID        *id.PaymentID
	NjallaPaymentAddress   *string
	NjallaPaymentAmount    *decimal.Decimal
	NjallaPaymentTxHash    *id.TxHash
	NjallaPaymentConfirmed *bool
	NjallaTaskID           *id.TaskID

	DeliveredAt *time.Time

	// ClearPayment nulls the payment id, address, and amount as a unit.
	// Used when the registrar reports a top-up cancelled or expired before
	// any transfer was broadcast, forcing a fresh payment on a later tick.
	ClearPayment bool
}

// IsZero reports whether the patch would change nothing.
func (p OrderPatch) IsZero() bool {
	return p.PaymentStatus == nil &&
		p.OrderStatus == nil &&
		p.NjallaPaymentID == nil &&
		p.NjallaPaymentAddress == nil &&
		p.NjallaPaymentAmount == nil &&
		p.NjallaPaymentTxHash == nil &&
		p.NjallaPaymentConfirmed == nil &&
		p.NjallaTaskID == nil &&
		p.DeliveredAt == nil &&
		!p.ClearPayment
}
