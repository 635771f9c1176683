// Package ports defines the collaborator interfaces the fulfillment engine
// depends on. Implementations live in sibling packages; tests substitute
// fakes.
package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"veil/internal/fulfillment/events"
	"veil/internal/fulfillment/models"
	id "veil/pkg/domain"
)

// OrderStore is the durable order record store. It is the only cross-tick
// state the engine has; writes are sparse patches, never full overwrites.
type OrderStore interface {
	// PaidUndelivered returns orders with paymentStatus=paid and no
	// deliveredAt, the engine's per-tick work set.
	PaidUndelivered(ctx context.Context) ([]*models.DomainOrder, error)

	// Get returns the order or nil when it does not exist.
	Get(ctx context.Context, orderID id.OrderID) (*models.DomainOrder, error)

	// Patch applies a sparse field-level update.
	Patch(ctx context.Context, orderID id.OrderID, patch models.OrderPatch) error
}

// PriceOracle quotes live crypto/EUR rates.
type PriceOracle interface {
	// PriceInEUR returns the EUR price of one unit of the asset. A missing
	// or unusable rate is an error; implementations never return zero with
	// a nil error.
	PriceInEUR(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// Wallet broadcasts irreversible on-chain transfers.
//
// A failed Send does NOT guarantee the transfer was not broadcast: the
// error may have occurred after the transaction hit the network. Callers
// must treat post-Send ambiguity accordingly.
type Wallet interface {
	Send(ctx context.Context, address string, amount decimal.Decimal) (id.TxHash, error)
}

// PaymentGateway is the registrar's prepaid-balance top-up API.
type PaymentGateway interface {
	CreateTopUp(ctx context.Context, amountEUR decimal.Decimal, asset string) (*models.TopUp, error)
	GetTopUp(ctx context.Context, paymentID id.PaymentID) (*models.TopUpStatus, error)
}

// DomainRegistrar is the registrar's domain registration API.
type DomainRegistrar interface {
	Register(ctx context.Context, domainName string, years int) (id.TaskID, error)
	CheckTask(ctx context.Context, taskID id.TaskID) (*models.TaskResult, error)
}

// EventPublisher emits order lifecycle events for back-office consumers.
// Publishing is best-effort; failures never block fulfillment.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}
