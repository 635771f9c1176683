// Package events defines order lifecycle events emitted by the fulfillment
// engine. Keep the event transport-agnostic so publishers can fan out.
package events

import (
	"context"
	"time"

	id "veil/pkg/domain"
)

// Type names the lifecycle transition an event records.
type Type string

const (
	TypePaymentCreated      Type = "payment_created"
	TypeTransferSent        Type = "transfer_sent"
	TypePaymentConfirmed    Type = "payment_confirmed"
	TypePaymentCleared      Type = "payment_cleared"
	TypeRegistrationStarted Type = "registration_started"
	TypeDelivered           Type = "delivered"
	TypeFailed              Type = "failed"
	TypeError               Type = "error"
)

// Event is one committed state transition of a domain order.
type Event struct {
	Type      Type         `json:"type"`
	OrderID   id.OrderID   `json:"order_id"`
	Domain    string       `json:"domain,omitempty"`
	PaymentID id.PaymentID `json:"payment_id,omitempty"`
	TxHash    id.TxHash    `json:"tx_hash,omitempty"`
	TaskID    id.TaskID    `json:"task_id,omitempty"`
	Amount    string       `json:"amount,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func NewNop() NopPublisher { return NopPublisher{} }

func (NopPublisher) Emit(context.Context, Event) error { return nil }
