package handler

import (
	"time"

	"veil/internal/fulfillment/models"
)

// OrderResponse is the operator-facing view of a domain order. Payment
// anchors are included because operators use them to reconcile ambiguous
// transfers against the registrar.
type OrderResponse struct {
	ID             string     `json:"id"`
	Domain         string     `json:"domain"`
	PriceEUR       string     `json:"price_eur"`
	Currency       string     `json:"currency"`
	Years          int        `json:"years"`
	PaymentStatus  string     `json:"payment_status"`
	OrderStatus    string     `json:"order_status"`
	UnsupportedTLD bool       `json:"unsupported_tld,omitempty"`
	PaymentID      string     `json:"njalla_payment_id,omitempty"`
	PaymentAddress string     `json:"njalla_payment_address,omitempty"`
	PaymentAmount  string     `json:"njalla_payment_amount,omitempty"`
	PaymentTxHash  string     `json:"njalla_payment_tx_hash,omitempty"`
	PaymentDone    bool       `json:"njalla_payment_confirmed"`
	TaskID         string     `json:"njalla_task_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// FromOrder converts the domain entity to its response form.
func FromOrder(o *models.DomainOrder) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID.String(),
		Domain:        o.FQDN(),
		PriceEUR:      o.PriceEUR.String(),
		Currency:      o.Currency,
		Years:         o.Years,
		PaymentStatus: string(o.PaymentStatus),
		OrderStatus:   string(o.OrderStatus),
		UnsupportedTLD: o.UnsupportedTLD,
		PaymentDone:    o.NjallaPaymentConfirmed,
		CreatedAt:      o.CreatedAt,
		PaidAt:         o.PaidAt,
		DeliveredAt:    o.DeliveredAt,
		ExpiresAt:      o.ExpiresAt,
	}
	if o.NjallaPaymentID != nil {
		resp.PaymentID = o.NjallaPaymentID.String()
	}
	if o.NjallaPaymentAddress != nil {
		resp.PaymentAddress = *o.NjallaPaymentAddress
	}
	if o.NjallaPaymentAmount != nil {
		resp.PaymentAmount = o.NjallaPaymentAmount.String()
	}
	if o.NjallaPaymentTxHash != nil {
		resp.PaymentTxHash = o.NjallaPaymentTxHash.String()
	}
	if o.NjallaTaskID != nil {
		resp.TaskID = o.NjallaTaskID.String()
	}
	return resp
}
