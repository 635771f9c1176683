// Package order provides the durable DomainOrder store in two flavors: an
// in-memory map for development and tests, and PostgreSQL for production.
package order

import (
	"context"
	"sync"

	"veil/internal/fulfillment/models"
	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
)

// MemoryStore keeps orders in a mutex-guarded map. All reads return deep
// copies so callers never share pointers with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[id.OrderID]*models.DomainOrder
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		orders: make(map[id.OrderID]*models.DomainOrder),
	}
}

// Create inserts a new order. Intake owns creation; the fulfillment engine
// only ever patches.
func (s *MemoryStore) Create(_ context.Context, order *models.DomainOrder) error {
	if order == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "order is required")
	}
	if order.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "order id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "order already exists")
	}
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID id.OrderID) (*models.DomainOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, exists := s.orders[orderID]
	if !exists {
		return nil, nil
	}
	return order.Clone(), nil
}

func (s *MemoryStore) PaidUndelivered(_ context.Context) ([]*models.DomainOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DomainOrder
	for _, order := range s.orders {
		if order.PaymentStatus == models.PaymentPaid && order.DeliveredAt == nil {
			out = append(out, order.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Patch(_ context.Context, orderID id.OrderID, patch models.OrderPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, exists := s.orders[orderID]
	if !exists {
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	applyPatch(order, patch)
	return nil
}

func applyPatch(order *models.DomainOrder, patch models.OrderPatch) {
	if patch.ClearPayment {
		order.NjallaPaymentID = nil
		order.NjallaPaymentAddress = nil
		order.NjallaPaymentAmount = nil
	}
	if patch.PaymentStatus != nil {
		order.PaymentStatus = *patch.PaymentStatus
	}
	if patch.OrderStatus != nil {
		order.OrderStatus = *patch.OrderStatus
	}
	if patch.NjallaPaymentID != nil {
		v := *patch.NjallaPaymentID
		order.NjallaPaymentID = &v
	}
	if patch.NjallaPaymentAddress != nil {
		v := *patch.NjallaPaymentAddress
		order.NjallaPaymentAddress = &v
	}
	if patch.NjallaPaymentAmount != nil {
		v := *patch.NjallaPaymentAmount
		order.NjallaPaymentAmount = &v
	}
	if patch.NjallaPaymentTxHash != nil {
		v := *patch.NjallaPaymentTxHash
		order.NjallaPaymentTxHash = &v
	}
	if patch.NjallaPaymentConfirmed != nil {
		order.NjallaPaymentConfirmed = *patch.NjallaPaymentConfirmed
	}
	if patch.NjallaTaskID != nil {
		v := *patch.NjallaTaskID
		order.NjallaTaskID = &v
	}
	if patch.DeliveredAt != nil {
		v := *patch.DeliveredAt
		order.DeliveredAt = &v
	}
}
