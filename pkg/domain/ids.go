// Package domain holds typed identifiers shared across modules. Wrapping
// raw strings/UUIDs in distinct types makes cross-assignment a compile error.
package domain

import (
	"github.com/google/uuid"

	dErrors "veil/pkg/domain-errors"
)

// OrderID identifies a domain order. Orders are created by intake with a
// fresh UUID; everything downstream treats the ID as opaque.
type OrderID uuid.UUID

// NewOrderID returns a fresh random order ID.
func NewOrderID() OrderID {
	return OrderID(uuid.New())
}

// ParseOrderID validates and returns an OrderID.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseOrderID(s string) (OrderID, error) {
	if s == "" {
		return OrderID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "order id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return OrderID(uuid.Nil), dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid order id")
	}
	if parsed == uuid.Nil {
		return OrderID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "order id must not be nil")
	}
	return OrderID(parsed), nil
}

func (id OrderID) String() string {
	return uuid.UUID(id).String()
}

func (id OrderID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText renders the canonical UUID form so JSON and text encodings
// stay readable.
func (id OrderID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *OrderID) UnmarshalText(b []byte) error {
	parsed, err := ParseOrderID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PaymentID is the registrar-assigned identifier of a prepaid top-up.
// Format is owned by the registrar; treated as opaque text.
type PaymentID string

func (id PaymentID) String() string { return string(id) }
func (id PaymentID) IsNil() bool    { return id == "" }

// TaskID is the registrar-assigned identifier of a registration task.
type TaskID string

func (id TaskID) String() string { return string(id) }
func (id TaskID) IsNil() bool    { return id == "" }

// TxHash is an on-chain transaction hash returned by the outbound wallet.
type TxHash string

func (h TxHash) String() string { return string(h) }
func (h TxHash) IsNil() bool    { return h == "" }
