// Package handler exposes the operator HTTP surface of the fulfillment
// engine: order inspection and manual re-drive of a single order.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veil/internal/fulfillment/models"
	"veil/internal/fulfillment/ports"
	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
	"veil/pkg/httputil"
)

// Processor re-drives a single order through the fulfillment policy.
type Processor interface {
	ProcessOrderNow(ctx context.Context, orderID id.OrderID) (*models.DomainOrder, error)
	Running() bool
}

// Handler wires fulfillment endpoints to the engine and order store.
type Handler struct {
	processor Processor
	store     ports.OrderStore
	logger    *slog.Logger
}

func New(processor Processor, store ports.OrderStore, logger *slog.Logger) *Handler {
	return &Handler{
		processor: processor,
		store:     store,
		logger:    logger,
	}
}

// Register mounts fulfillment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/orders/{orderID}", h.HandleGetOrder)
	r.Post("/orders/{orderID}/process", h.HandleProcessOrder)
}

// HandleGetOrder handles GET /orders/{orderID}.
func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.store.Get(r.Context(), orderID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "order lookup failed", "order_id", orderID.String(), "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "order lookup failed"))
		return
	}
	if order == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "order not found"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromOrder(order))
}

// HandleProcessOrder handles POST /orders/{orderID}/process. It runs the
// per-order policy synchronously, outside the engine schedule.
func (h *Handler) HandleProcessOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	order, err := h.processor.ProcessOrderNow(ctx, orderID)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual order processing failed",
			"order_id", orderID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "order processed on demand",
		"order_id", orderID.String(),
		"status", string(order.OrderStatus),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromOrder(order))
}
