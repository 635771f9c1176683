package njalla

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"veil/internal/fulfillment/models"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want models.PaymentState
	}{
		{"waiting", models.PaymentStateWaiting},
		{"New", models.PaymentStateWaiting},
		{"created", models.PaymentStateWaiting},
		{"Waiting for payment", models.PaymentStateWaiting},

		{"pending", models.PaymentStateIncoming},
		{"incoming", models.PaymentStateIncoming},
		{"Incoming 0.254 XMR", models.PaymentStateIncoming},
		{"1 unconfirmed transaction", models.PaymentStateIncoming},

		{"confirmed", models.PaymentStateConfirmed},
		{"Completed", models.PaymentStateConfirmed},
		{"done", models.PaymentStateConfirmed},
		{"paid", models.PaymentStateConfirmed},
		{"Payment of €15 received", models.PaymentStateConfirmed},
		{"Amount credited to balance", models.PaymentStateConfirmed},

		{"cancelled", models.PaymentStateCancelled},
		{"canceled", models.PaymentStateCancelled},
		{"expired", models.PaymentStateCancelled},
		{"Payment expired, please retry", models.PaymentStateCancelled},
		// cancellation outranks the confirmation keywords in the same line
		{"cancelled after payment received", models.PaymentStateCancelled},

		{"", models.PaymentStateUnknown},
		{"???", models.PaymentStateUnknown},
		{"scheduled maintenance", models.PaymentStateUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeStatus(tc.raw), "raw=%q", tc.raw)
		})
	}
}
