package fulfillment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vendora-erp/vendora-erp/internal/platform/db"
	"github.com/vendora-erp/vendora-erp/internal/platform/httpx"
	"github.com/vendora-erp/vendora-erp/internal/shared"
)

// Handler exposes the workflow operations over HTTP. It stays thin: decode,
// validate, delegate, map the outcome.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	reconciler *Reconciler
	aggregator *Aggregator
	validate   *validator.Validate
}

// NewHandler constructs the fulfillment HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, reconciler *Reconciler, aggregator *Aggregator) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		reconciler: reconciler,
		aggregator: aggregator,
		validate:   validator.New(),
	}
}

// MountRoutes attaches fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/{id}/purchase-orders", h.convertOrder)
	r.Post("/orders/{id}/complete", h.completeOrder)
	r.Post("/invoices/{id}/approve", h.approveInvoice)
	r.Post("/dispatches/{id}/receipt", h.createReceipt)
	r.Get("/orders/{id}/workflow", h.orderWorkflow)
	r.Get("/purchase-orders/{id}/reconciliation", h.reconcilePO)
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) decodeActor(r *http.Request) (actorRequest, error) {
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return req, httpx.ErrValidation
	}
	if err := h.validate.Struct(req); err != nil {
		return req, httpx.ErrValidation
	}
	return req, nil
}

func (h *Handler) convertOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.decodeActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := shared.ContextWithActor(r.Context(), req.ActorID)
	ids, err := h.service.ConvertOrderToPurchaseOrders(ctx, orderID, req.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message":            "purchase orders created",
		"purchase_order_ids": ids,
	})
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.decodeActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := shared.ContextWithActor(r.Context(), req.ActorID)
	if err := h.service.CompleteOrder(ctx, orderID, req.ActorID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "order fulfilled"})
}

func (h *Handler) approveInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.decodeActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := shared.ContextWithActor(r.Context(), req.ActorID)
	payment, err := h.service.ApproveInvoice(ctx, invoiceID, req.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":        "invoice approved",
		"payment_id":     payment.ID,
		"payment_number": payment.Number,
	})
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	dispatchID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.decodeActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := shared.ContextWithActor(r.Context(), req.ActorID)
	grn, err := h.service.CreateGoodsReceipt(ctx, dispatchID, req.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message":    "goods receipt created",
		"grn_id":     grn.ID,
		"grn_number": grn.Number,
	})
}

func (h *Handler) orderWorkflow(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.aggregator.OrderWorkflow(r.Context(), orderID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) reconcilePO(w http.ResponseWriter, r *http.Request) {
	poID, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.reconciler.ReconcilePurchaseOrder(r.Context(), poID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

// respondErr maps domain errors onto the transport taxonomy. Internal detail
// is logged, not leaked.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, ErrPrecondition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Precondition Not Met", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, db.ErrTxConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "concurrent update detected, try again")
	default:
		h.logger.Error("fulfillment request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
