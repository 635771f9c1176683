package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"veil/internal/fulfillment/models"
	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func (s *MemoryStoreSuite) newOrder(paymentStatus models.PaymentStatus) *models.DomainOrder {
	now := time.Now()
	return &models.DomainOrder{
		ID:            id.NewOrderID(),
		DomainName:    "example",
		TLD:           "com",
		PriceEUR:      decimal.RequireFromString("20"),
		Currency:      "xmr",
		Years:         1,
		PaymentStatus: paymentStatus,
		OrderStatus:   models.OrderProcessing,
		CreatedAt:     now,
		PaidAt:        &now,
	}
}

func (s *MemoryStoreSuite) TestCreate() {
	ctx := context.Background()

	s.Run("rejects nil order", func() {
		err := s.store.Create(ctx, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects duplicate id", func() {
		order := s.newOrder(models.PaymentPaid)
		s.Require().NoError(s.store.Create(ctx, order))
		err := s.store.Create(ctx, order)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("stores a copy, not the caller's pointer", func() {
		order := s.newOrder(models.PaymentPaid)
		s.Require().NoError(s.store.Create(ctx, order))
		order.DomainName = "mutated"

		got, err := s.store.Get(ctx, order.ID)
		s.Require().NoError(err)
		s.Equal("example", got.DomainName)
	})
}

func (s *MemoryStoreSuite) TestGet() {
	ctx := context.Background()

	s.Run("missing order returns nil, nil", func() {
		got, err := s.store.Get(ctx, id.NewOrderID())
		s.NoError(err)
		s.Nil(got)
	})

	s.Run("returned order is a copy", func() {
		order := s.newOrder(models.PaymentPaid)
		s.Require().NoError(s.store.Create(ctx, order))

		got, err := s.store.Get(ctx, order.ID)
		s.Require().NoError(err)
		got.OrderStatus = models.OrderFailed

		again, err := s.store.Get(ctx, order.ID)
		s.Require().NoError(err)
		s.Equal(models.OrderProcessing, again.OrderStatus)
	})
}

func (s *MemoryStoreSuite) TestPaidUndelivered() {
	ctx := context.Background()

	paid := s.newOrder(models.PaymentPaid)
	pending := s.newOrder(models.PaymentPending)
	delivered := s.newOrder(models.PaymentPaid)
	now := time.Now()
	delivered.DeliveredAt = &now

	s.Require().NoError(s.store.Create(ctx, paid))
	s.Require().NoError(s.store.Create(ctx, pending))
	s.Require().NoError(s.store.Create(ctx, delivered))

	orders, err := s.store.PaidUndelivered(ctx)
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(paid.ID, orders[0].ID)
}

func (s *MemoryStoreSuite) TestPatch() {
	ctx := context.Background()

	s.Run("missing order returns not found", func() {
		status := models.OrderError
		err := s.store.Patch(ctx, id.NewOrderID(), models.OrderPatch{OrderStatus: &status})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("nil fields leave columns untouched", func() {
		order := s.newOrder(models.PaymentPaid)
		paymentID := id.PaymentID("pay-1")
		addr := "addr-1"
		order.NjallaPaymentID = &paymentID
		order.NjallaPaymentAddress = &addr
		s.Require().NoError(s.store.Create(ctx, order))

		status := models.OrderError
		s.Require().NoError(s.store.Patch(ctx, order.ID, models.OrderPatch{OrderStatus: &status}))

		got, err := s.store.Get(ctx, order.ID)
		s.Require().NoError(err)
		s.Equal(models.OrderError, got.OrderStatus)
		s.Require().NotNil(got.NjallaPaymentID)
		s.Equal(paymentID, *got.NjallaPaymentID)
		s.Equal(models.PaymentPaid, got.PaymentStatus)
	})

	s.Run("clear payment nulls id, address, and amount together", func() {
		order := s.newOrder(models.PaymentPaid)
		paymentID := id.PaymentID("pay-2")
		addr := "addr-2"
		amount := decimal.RequireFromString("0.0101")
		order.NjallaPaymentID = &paymentID
		order.NjallaPaymentAddress = &addr
		order.NjallaPaymentAmount = &amount
		s.Require().NoError(s.store.Create(ctx, order))

		processing := models.OrderProcessing
		s.Require().NoError(s.store.Patch(ctx, order.ID, models.OrderPatch{
			ClearPayment: true,
			OrderStatus:  &processing,
		}))

		got, err := s.store.Get(ctx, order.ID)
		s.Require().NoError(err)
		s.Nil(got.NjallaPaymentID)
		s.Nil(got.NjallaPaymentAddress)
		s.Nil(got.NjallaPaymentAmount)
		s.Equal(models.OrderProcessing, got.OrderStatus)
	})

	s.Run("sets tx hash and confirmation", func() {
		order := s.newOrder(models.PaymentPaid)
		s.Require().NoError(s.store.Create(ctx, order))

		hash := id.TxHash("deadbeef")
		confirmed := true
		s.Require().NoError(s.store.Patch(ctx, order.ID, models.OrderPatch{
			NjallaPaymentTxHash:    &hash,
			NjallaPaymentConfirmed: &confirmed,
		}))

		got, err := s.store.Get(ctx, order.ID)
		s.Require().NoError(err)
		s.Require().NotNil(got.NjallaPaymentTxHash)
		s.Equal(hash, *got.NjallaPaymentTxHash)
		s.True(got.NjallaPaymentConfirmed)
	})
}
