package njalla

import (
	"strings"

	"veil/internal/fulfillment/models"
)

// The registrar reports top-up status as free text, not a strict enum.
// All coupling to that text lives here: the engine only ever sees the
// normalized PaymentState.

// exact matches checked before any substring heuristics
var exactStates = map[string]models.PaymentState{
	"waiting":   models.PaymentStateWaiting,
	"new":       models.PaymentStateWaiting,
	"created":   models.PaymentStateWaiting,
	"pending":   models.PaymentStateIncoming,
	"incoming":  models.PaymentStateIncoming,
	"confirmed": models.PaymentStateConfirmed,
	"completed": models.PaymentStateConfirmed,
	"done":      models.PaymentStateConfirmed,
	"paid":      models.PaymentStateConfirmed,
	"cancelled": models.PaymentStateCancelled,
	"canceled":  models.PaymentStateCancelled,
	"expired":   models.PaymentStateCancelled,
}

// substring patterns, ordered: cancellation outranks confirmation outranks
// incoming, so "cancelled after payment received" never reads as confirmed
var containsStates = []struct {
	needle string
	state  models.PaymentState
}{
	{"cancel", models.PaymentStateCancelled},
	{"expire", models.PaymentStateCancelled},
	// a currency symbol in the status line means the registrar credited an
	// amount, e.g. "Payment of €15 received"
	{"€", models.PaymentStateConfirmed},
	{"confirm", models.PaymentStateConfirmed},
	{"complete", models.PaymentStateConfirmed},
	{"received", models.PaymentStateConfirmed},
	{"credited", models.PaymentStateConfirmed},
	{"incoming", models.PaymentStateIncoming},
	{"unconfirmed", models.PaymentStateIncoming},
	{"pending", models.PaymentStateIncoming},
	{"waiting", models.PaymentStateWaiting},
}

// NormalizeStatus classifies the registrar's free-text top-up status.
// Unrecognized text maps to PaymentStateUnknown.
func NormalizeStatus(raw string) models.PaymentState {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return models.PaymentStateUnknown
	}
	if state, ok := exactStates[text]; ok {
		return state
	}
	for _, p := range containsStates {
		if strings.Contains(text, p.needle) {
			return p.state
		}
	}
	return models.PaymentStateUnknown
}
