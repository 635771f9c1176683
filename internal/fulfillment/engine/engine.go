// Package engine implements the domain fulfillment engine: a singleton
// polling loop that advances payment-confirmed orders through registrar
// top-up, outbound transfer, and domain registration.
//
// The store record is the only cross-tick state. Every money-moving decision
// re-reads it first, and once a transfer hash is persisted no retry path may
// ever broadcast again.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"veil/internal/fulfillment/events"
	"veil/internal/fulfillment/metrics"
	"veil/internal/fulfillment/models"
	"veil/internal/fulfillment/ports"
	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
)

const defaultInterval = 30 * time.Second

// Engine scans for paid undelivered orders on a fixed interval and advances
// each one through the fulfillment state machine.
type Engine struct {
	store     ports.OrderStore
	oracle    ports.PriceOracle
	wallet    ports.Wallet
	gateway   ports.PaymentGateway
	registrar ports.DomainRegistrar

	publisher ports.EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time

	interval   time.Duration
	staleAfter time.Duration

	// ticking is the re-entrancy guard: a tick that starts while the
	// previous one is still running is skipped whole.
	ticking atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithStaleAfter sets the age past which an undelivered order counts as
// stale for operator visibility. Zero disables the gauge.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) {
		e.staleAfter = d
	}
}

// Exactly one engine may own the interval timer per process. Constructing a
// new engine stops the previously constructed one, which guards against
// duplicated schedulers left behind by hot reloads.
var (
	activeMu sync.Mutex
	active   *Engine
)

// New constructs the fulfillment engine and claims the process-wide
// scheduler slot, stopping any previously constructed engine.
func New(
	store ports.OrderStore,
	oracle ports.PriceOracle,
	wallet ports.Wallet,
	gateway ports.PaymentGateway,
	registrar ports.DomainRegistrar,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("price oracle is required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if registrar == nil {
		return nil, fmt.Errorf("domain registrar is required")
	}

	e := &Engine{
		store:     store,
		oracle:    oracle,
		wallet:    wallet,
		gateway:   gateway,
		registrar: registrar,
		publisher: events.NewNop(),
		logger:    slog.Default(),
		clock:     time.Now,
		interval:  defaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}

	activeMu.Lock()
	if active != nil {
		active.Stop()
	}
	active = e
	activeMu.Unlock()

	return e, nil
}

// Start begins the fixed-interval scan. Calling Start on a running engine is
// a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.stopCh, e.done)
	e.logger.Info("fulfillment engine started", "interval", e.interval.String())
}

func (e *Engine) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Tick(context.Background())
		}
	}
}

// Stop cancels future ticks. An in-flight tick is not interrupted.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	e.logger.Info("fulfillment engine stopped")
}

// Running reports whether the scheduler is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Tick runs one scan-and-process pass. If the previous pass has not
// finished the whole tick is skipped.
func (e *Engine) Tick(ctx context.Context) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Warn("tick skipped, previous tick still running")
		return
	}
	defer e.ticking.Store(false)

	start := e.clock()
	e.metrics.IncTicks()

	orders, err := e.store.PaidUndelivered(ctx)
	if err != nil {
		e.logger.Error("fetching paid undelivered orders failed", "error", err)
		return
	}

	stale, frozen := 0, 0
	for _, order := range orders {
		if order.UnsupportedTLD {
			frozen++
		}
		if e.staleAfter > 0 && order.PaidAt != nil && e.clock().Sub(*order.PaidAt) > e.staleAfter {
			stale++
		}
		e.processOne(ctx, order)
	}

	e.metrics.SetStaleOrders(stale)
	e.metrics.SetFrozenOrders(frozen)
	if stale > 0 {
		e.logger.Warn("orders pending past staleness threshold", "count", stale, "threshold", e.staleAfter.String())
	}
	e.metrics.ObserveTick(e.clock().Sub(start).Seconds())
}

// ProcessOrderNow runs the per-order policy once, synchronously. Operator
// surface for re-driving a single order outside the schedule.
func (e *Engine) ProcessOrderNow(ctx context.Context, orderID id.OrderID) (*models.DomainOrder, error) {
	order, err := e.store.Get(ctx, orderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load order")
	}
	if order == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if order.PaymentStatus != models.PaymentPaid {
		return nil, dErrors.New(dErrors.CodeConflict, "order payment is not confirmed")
	}
	if order.DeliveredAt != nil {
		return order, nil
	}

	e.processOne(ctx, order)

	refreshed, err := e.store.Get(ctx, orderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload order")
	}
	return refreshed, nil
}

// processOne isolates one order's processing: any failure, including a
// panic, is downgraded to a logged retryable error state and never aborts
// the remaining orders of the tick.
func (e *Engine) processOne(ctx context.Context, order *models.DomainOrder) {
	log := e.logger.With("order_id", order.ID.String(), "domain", order.FQDN())

	var outcome string
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while processing order: %v", r)
			}
		}()
		outcome, err = e.advance(ctx, log, order)
	}()

	if err == nil {
		e.metrics.IncOrdersProcessed(outcome)
		return
	}

	log.Error("order processing failed, parked for retry", "error", err)
	e.metrics.IncOrdersProcessed(metrics.OutcomeError)
	// paymentStatus is never touched here: "error" is retryable, the next
	// tick re-evaluates from persisted fields alone.
	errStatus := models.OrderError
	if patchErr := e.store.Patch(ctx, order.ID, models.OrderPatch{OrderStatus: &errStatus}); patchErr != nil {
		log.Error("failed to record error state", "error", patchErr)
	}
	e.emit(ctx, events.Event{
		Type:    events.TypeError,
		OrderID: order.ID,
		Domain:  order.FQDN(),
		Detail:  err.Error(),
	})
}

// advance evaluates the per-order decision policy in order, first match
// wins. It returns the outcome label for metrics; a returned error means
// the order is parked in the retryable error state.
func (e *Engine) advance(ctx context.Context, log *slog.Logger, order *models.DomainOrder) (string, error) {
	// 1. Frozen on an unsupported TLD: operator action required.
	if order.UnsupportedTLD {
		log.Info("order frozen on unsupported TLD, skipping")
		return metrics.OutcomeSkipped, nil
	}

	// 2. A registration task exists: poll it.
	if order.NjallaTaskID != nil {
		return e.pollRegistration(ctx, log, order)
	}

	// A tx hash without a payment id is a data inconsistency. It is never
	// auto-repaired: skip loudly until an operator reconciles.
	if order.NjallaPaymentTxHash != nil && order.NjallaPaymentID == nil {
		log.Error("tx hash recorded without payment id, manual reconciliation required",
			"tx_hash", order.NjallaPaymentTxHash.String())
		return metrics.OutcomeSkipped, nil
	}

	if order.NjallaPaymentID != nil {
		// 3. Payment confirmed, registration not yet started.
		if order.NjallaPaymentConfirmed {
			return e.startRegistration(ctx, log, order)
		}
		// 4a. No broadcast recorded; it may still have happened.
		if order.NjallaPaymentTxHash == nil {
			return e.resolveUnsentPayment(ctx, log, order)
		}
		// 4b. Broadcast recorded: wait for the registrar to confirm.
		return e.pollPayment(ctx, log, order)
	}

	// 5. Fresh order: create a top-up and fund it.
	return e.createPaymentAndSend(ctx, log, order)
}

func (e *Engine) pollRegistration(ctx context.Context, log *slog.Logger, order *models.DomainOrder) (string, error) {
	taskID := *order.NjallaTaskID
	result, err := e.registrar.CheckTask(ctx, taskID)
	if err != nil {
		if isTransient(err) {
			log.Warn("registration task poll failed, retrying next tick", "task_id", taskID.String(), "error", err)
			return metrics.OutcomeNoop, nil
		}
		return "", err
	}

	if !result.Completed {
		log.Info("registration still in progress", "task_id", taskID.String(), "status", result.Raw)
		return metrics.OutcomeNoop, nil
	}

	if result.Success {
		now := e.clock()
		delivered := models.OrderDelivered
		if err := e.store.Patch(ctx, order.ID, models.OrderPatch{
			OrderStatus: &delivered,
			DeliveredAt: &now,
		}); err != nil {
			return "", err
		}
		log.Info("domain registered and delivered", "task_id", taskID.String())
		e.emit(ctx, events.Event{
			Type:    events.TypeDelivered,
			OrderID: order.ID,
			Domain:  order.FQDN(),
			TaskID:  taskID,
		})
		return metrics.OutcomeAdvanced, nil
	}

	if err := e.store.Patch(ctx, order.ID, failedPatch()); err != nil {
		return "", err
	}
	log.Error("registrar reported registration task failed", "task_id", taskID.String(), "status", result.Raw)
	e.emit(ctx, events.Event{
		Type:    events.TypeFailed,
		OrderID: order.ID,
		Domain:  order.FQDN(),
		TaskID:  taskID,
		Detail:  "registration task failed",
	})
	return metrics.OutcomeFailed, nil
}

func (e *Engine) startRegistration(ctx context.Context, log *slog.Logger, order *models.DomainOrder) (string, error) {
	years := order.Years
	if years <= 0 {
		years = 1
	}

	taskID, err := e.registrar.Register(ctx, order.FQDN(), years)
	if err != nil {
		if isTransient(err) {
			// could not reach the registrar; park and retry
			return "", err
		}
		// the registrar rejected the registration outright
		if patchErr := e.store.Patch(ctx, order.ID, failedPatch()); patchErr != nil {
			return "", patchErr
		}
		log.Error("registrar rejected registration", "error", err)
		e.emit(ctx, events.Event{
			Type:    events.TypeFailed,
			OrderID: order.ID,
			Domain:  order.FQDN(),
			Detail:  "registration rejected: " + err.Error(),
		})
		return metrics.OutcomeFailed, nil
	}

	processing := models.OrderProcessing
	if err := e.store.Patch(ctx, order.ID, models.OrderPatch{
		NjallaTaskID: &taskID,
		OrderStatus:  &processing,
	}); err != nil {
		return "", err
	}
	log.Info("registration task created", "task_id", taskID.String(), "years", years)
	e.emit(ctx, events.Event{
		Type:    events.TypeRegistrationStarted,
		OrderID: order.ID,
		Domain:  order.FQDN(),
		TaskID:  taskID,
	})
	return metrics.OutcomeAdvanced, nil
}

// resolveUnsentPayment handles a payment with no local broadcast record. The
// transfer may still have ambiguously occurred (crash after send, persisted
// nothing), so the registrar is asked first and resending is the last
// branch, not the first.
func (e *Engine) resolveUnsentPayment(ctx context.Context, log *slog.Logger, order *models.DomainOrder) (string, error) {
	paymentID := *order.NjallaPaymentID
	status, err := e.gateway.GetTopUp(ctx, paymentID)
	if err != nil {
		// cannot tell whether funds moved; do nothing this tick
		log.Warn("top-up lookup failed, retrying next tick", "payment_id", paymentID.String(), "error", err)
		return metrics.OutcomeNoop, nil
	}

	switch status.State {
	case models.PaymentStateCancelled:
		// registrar abandoned the top-up before any transfer: clear the
		// payment anchors so a later tick starts a fresh one
		processing := models.OrderProcessing
		if err := e.store.Patch(ctx, order.ID, models.OrderPatch{
			ClearPayment: true,
			OrderStatus:  &processing,
		}); err != nil {
			return "", err
		}
		log.Info("cancelled top-up cleared, a fresh payment will be created", "payment_id", paymentID.String(), "status", status.Raw)
		e.emit(ctx, events.Event{
			Type:      events.TypePaymentCleared,
			OrderID:   order.ID,
			Domain:    order.FQDN(),
			PaymentID: paymentID,
			Detail:    status.Raw,
		})
		return metrics.OutcomeAdvanced, nil

	case models.PaymentStateIncoming, models.PaymentStateConfirmed:
		// the registrar sees funds we have no local record of. Resending
		// could double-pay an irreversible transfer, so park the order for
		// manual reconciliation instead.
		errStatus := models.OrderError
		if err := e.store.Patch(ctx, order.ID, models.OrderPatch{OrderStatus: &errStatus}); err != nil {
			return "", err
		}
		log.Error("ambiguous send state: registrar sees funds with no local tx hash",
			"payment_id", paymentID.String(), "status", status.Raw)
		e.emit(ctx, events.Event{
			Type:      events.TypeError,
			OrderID:   order.ID,
			Domain:    order.FQDN(),
			PaymentID: paymentID,
			Detail:    "ambiguous send state: " + status.Raw,
		})
		return metrics.OutcomeError, nil

	default:
		// top-up was never funded: safe to broadcast
		if order.NjallaPaymentAddress == nil || *order.NjallaPaymentAddress == "" {
			return "", dErrors.New(dErrors.CodeInvariantViolation, "payment id persisted without an address")
		}
		return e.sendTransfer(ctx, log, order, paymentID, *order.NjallaPaymentAddress)
	}
}

// sendTransfer broadcasts the outbound transfer for an existing top-up,
// reusing the frozen amount when one was persisted.
func (e *Engine) sendTransfer(ctx context.Context, log *slog.Logger, order *models.DomainOrder, paymentID id.PaymentID, address string) (string, error) {
	var amount decimal.Decimal
	if order.NjallaPaymentAmount != nil && order.NjallaPaymentAmount.Sign() > 0 {
		// frozen at first computation; never recomputed for the same
		// top-up so the margin cannot compound across retries
		amount = *order.NjallaPaymentAmount
	} else {
		rate, err := e.oracle.PriceInEUR(ctx, order.Currency)
		if err != nil {
			log.Warn("no usable rate, leaving order untouched", "currency", order.Currency, "error", err)
			return metrics.OutcomeNoop, nil
		}
		amount, err = CryptoAmount(order.PriceEUR, rate)
		if err != nil {
			log.Warn("amount computation refused", "error", err)
			return metrics.OutcomeNoop, nil
		}
		// freeze before broadcasting
		if err := e.store.Patch(ctx, order.ID, models.OrderPatch{NjallaPaymentAmount: &amount}); err != nil {
			return "", err
		}
	}

	txHash, err := e.wallet.Send(ctx, address, amount)
	if err != nil {
		// the transfer may still have been broadcast; the next tick asks
		// the registrar before any resend decision
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "wallet send failed")
	}

	processing := models.OrderProcessing
	if err := e.store.Patch(ctx, order.ID, models.OrderPatch{
		NjallaPaymentTxHash: &txHash,
		OrderStatus:         &processing,
	}); err != nil {
		// the hash exists on chain but not locally; the next tick lands in
		// the ambiguous-send branch and parks the order for reconciliation
		log.Error("failed to persist tx hash after broadcast", "tx_hash", txHash.String(), "error", err)
		return "", err
	}

	e.metrics.IncTransfersSent()
	log.Info("transfer broadcast", "payment_id", paymentID.String(), "tx_hash", txHash.String(), "amount", amount.String())
	e.emit(ctx, events.Event{
		Type:      events.TypeTransferSent,
		OrderID:   order.ID,
		Domain:    order.FQDN(),
		PaymentID: paymentID,
		TxHash:    txHash,
		Amount:    amount.String(),
	})
	return metrics.OutcomeAdvanced, nil
}

// pollPayment waits for the registrar to confirm a broadcast transfer.
func (e *Engine) pollPayment(ctx context.Context, log *slog.Logger, order *models.DomainOrder) (string, error) {
	paymentID := *order.NjallaPaymentID
	status, err := e.gateway.GetTopUp(ctx, paymentID)
	if err != nil {
		log.Warn("top-up poll failed, retrying next tick", "payment_id", paymentID.String(), "error", err)
		return metrics.OutcomeNoop, nil
	}

	switch status.State {
	case models.PaymentStateConfirmed:
		confirmed := true
		processing := models.OrderProcessing
		if err := e.store.Patch(ctx, order.ID, models.OrderPatch{
			NjallaPaymentConfirmed: &confirmed,
			OrderStatus:            &processing,
		}); err != nil {
			return "", err
		}
		log.Info("top-up confirmed", "payment_id", paymentID.String(), "status", status.Raw)
		e.emit(ctx, events.Event{
			Type:      events.TypePaymentConfirmed,
			OrderID:   order.ID,
			Domain:    order.FQDN(),
			PaymentID: paymentID,
		})
		return metrics.OutcomeAdvanced, nil

	case models.PaymentStateCancelled:
		if err := e.store.Patch(ctx, order.ID, failedPatch()); err != nil {
			return "", err
		}
		log.Error("registrar cancelled a funded top-up", "payment_id", paymentID.String(), "status", status.Raw)
		e.emit(ctx, events.Event{
			Type:      events.TypeFailed,
			OrderID:   order.ID,
			Domain:    order.FQDN(),
			PaymentID: paymentID,
			Detail:    "top-up cancelled after broadcast: " + status.Raw,
		})
		return metrics.OutcomeFailed, nil

	default:
		log.Info("top-up not confirmed yet", "payment_id", paymentID.String(), "status", status.Raw)
		return metrics.OutcomeNoop, nil
	}
}

// createPaymentAndSend handles a fresh order: create the registrar top-up,
// persist the payment anchors, then broadcast.
func (e *Engine) createPaymentAndSend(ctx context.Context, log *slog.Logger, order *models.DomainOrder) (string, error) {
	// re-read immediately before acting: another execution (overlapping
	// tick or duplicated scheduler) may have created a payment since this
	// work set was fetched
	fresh, err := e.store.Get(ctx, order.ID)
	if err != nil {
		return "", err
	}
	if fresh == nil {
		return "", dErrors.New(dErrors.CodeNotFound, "order vanished from the store")
	}
	if fresh.NjallaPaymentID != nil || fresh.NjallaPaymentTxHash != nil {
		log.Warn("another execution already holds a payment for this order, skipping")
		return metrics.OutcomeSkipped, nil
	}
	order = fresh

	// rate first: a missing or nonpositive rate aborts with no state
	// change, before anything exists at the registrar
	rate, err := e.oracle.PriceInEUR(ctx, order.Currency)
	if err != nil {
		log.Warn("no usable rate, leaving order untouched", "currency", order.Currency, "error", err)
		return metrics.OutcomeNoop, nil
	}
	amount, err := CryptoAmount(order.PriceEUR, rate)
	if err != nil {
		log.Warn("amount computation refused", "error", err)
		return metrics.OutcomeNoop, nil
	}

	topUp, err := e.gateway.CreateTopUp(ctx, order.PriceEUR, order.Currency)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create top-up failed")
	}

	// crash-safe ordering: persist id, address, and amount before any
	// broadcast. If the process dies here, the next tick resumes with a
	// known safe amount instead of creating a second payment.
	processing := models.OrderProcessing
	if err := e.store.Patch(ctx, order.ID, models.OrderPatch{
		NjallaPaymentID:      &topUp.ID,
		NjallaPaymentAddress: &topUp.Address,
		NjallaPaymentAmount:  &amount,
		OrderStatus:          &processing,
	}); err != nil {
		log.Error("failed to persist payment anchors for created top-up", "payment_id", topUp.ID.String(), "error", err)
		return "", err
	}

	e.metrics.IncPaymentsCreated()
	log.Info("top-up created", "payment_id", topUp.ID.String(), "amount", amount.String())
	e.emit(ctx, events.Event{
		Type:      events.TypePaymentCreated,
		OrderID:   order.ID,
		Domain:    order.FQDN(),
		PaymentID: topUp.ID,
		Amount:    amount.String(),
	})

	order.NjallaPaymentID = &topUp.ID
	order.NjallaPaymentAddress = &topUp.Address
	order.NjallaPaymentAmount = &amount
	return e.sendTransfer(ctx, log, order, topUp.ID, topUp.Address)
}

func (e *Engine) emit(ctx context.Context, event events.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock()
	}
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.Warn("order event publish failed",
			"type", string(event.Type), "order_id", event.OrderID.String(), "error", err)
	}
}

// failedPatch marks both statuses failed. This is the terminal path: with
// paymentStatus no longer paid the order leaves the work set for good,
// unlike the retryable error state which only touches orderStatus.
func failedPatch() models.OrderPatch {
	failed := models.OrderFailed
	paymentFailed := models.PaymentFailed
	return models.OrderPatch{
		OrderStatus:   &failed,
		PaymentStatus: &paymentFailed,
	}
}

// isTransient reports whether an error is a reach/latency problem that the
// next tick should simply retry without changing order state.
func isTransient(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeTimeout)
}
