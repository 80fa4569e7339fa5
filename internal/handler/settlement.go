package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/brasaspos/api/internal/middleware"
	"github.com/brasaspos/api/internal/service"
	"github.com/brasaspos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SettlementServicer defines the service methods needed by settlement
// handlers. Satisfied by *service.SettlementService.
type SettlementServicer interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
	RegisterTip(ctx context.Context, restaurantID, paymentID uuid.UUID, sel service.TipSelection) (store.Payment, error)
}

// SettlementNotifier pushes settlement events to staff screens. Satisfied by
// *ws.Hub; nil disables notifications.
type SettlementNotifier interface {
	NotifyOrderSettled(restaurantID uuid.UUID, payload any)
}

// SettlementHandler handles checkout endpoints.
type SettlementHandler struct {
	svc SettlementServicer
	hub SettlementNotifier
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(svc SettlementServicer, hub SettlementNotifier) *SettlementHandler {
	return &SettlementHandler{svc: svc, hub: hub}
}

// RegisterOrderRoutes registers the settlement endpoint. Expected to be
// mounted inside the restaurant-scoped orders subrouter.
func (h *SettlementHandler) RegisterOrderRoutes(r chi.Router) {
	r.Post("/{id}/settlement", h.Settle)
}

// RegisterPaymentRoutes registers payment-scoped endpoints. Expected to be
// mounted at /restaurants/{rid}/payments.
func (h *SettlementHandler) RegisterPaymentRoutes(r chi.Router) {
	r.Post("/{pid}/tip", h.RegisterTip)
}

// --- Request / Response types ---

type billingRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
}

type tipRequest struct {
	Mode       string `json:"mode"`
	Percentage string `json:"percentage"`
	Amount     string `json:"amount"`
}

type settleRequest struct {
	PaymentMethod string          `json:"payment_method"`
	InvoiceKind   string          `json:"invoice_kind"`
	Billing       *billingRequest `json:"billing"`
	Tip           *tipRequest     `json:"tip"`
}

type settleResponse struct {
	Order      orderResponse   `json:"order"`
	Payment    paymentResponse `json:"payment"`
	FinalTotal string          `json:"final_total"`
	Tip        string          `json:"tip"`
	TipWarning string          `json:"tip_warning,omitempty"`
}

// --- Handlers ---

// Settle handles POST /restaurants/{rid}/orders/{id}/settlement.
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment_method is required"})
		return
	}

	tip, err := parseTip(req.Tip)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	svcReq := service.SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       orderID,
		OperatorID:    claims.UserID,
		PaymentMethod: req.PaymentMethod,
		InvoiceKind:   req.InvoiceKind,
		Tip:           tip,
	}
	if req.Billing != nil {
		svcReq.Billing = &service.BillingDetail{
			DocumentType:   req.Billing.DocumentType,
			DocumentNumber: req.Billing.DocumentNumber,
			Name:           req.Billing.Name,
			Email:          req.Billing.Email,
			Phone:          req.Billing.Phone,
			Address:        req.Billing.Address,
		}
	}

	result, err := h.svc.Settle(r.Context(), svcReq)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrAlreadySettled):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already settled"})
		case errors.Is(err, service.ErrOrderCancelled):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "cancelled orders cannot be settled"})
		case isSettleValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: settle order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := settleResponse{
		Order:      dbOrderToResponse(result.Order),
		Payment:    dbPaymentToResponse(result.Payment),
		FinalTotal: result.FinalTotal.String(),
		Tip:        result.Tip.String(),
		TipWarning: result.TipWarning,
	}

	if h.hub != nil {
		h.hub.NotifyOrderSettled(restaurantID, resp.Order)
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterTip handles POST /restaurants/{rid}/payments/{pid}/tip. A tip can
// be added or corrected after the charge; the newest selection replaces any
// earlier one.
func (h *SettlementHandler) RegisterTip(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	var req tipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sel, err := parseTip(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	payment, err := h.svc.RegisterTip(r.Context(), restaurantID, paymentID, sel)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound), errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
		case isTipValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: register tip: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dbPaymentToResponse(payment))
}

// --- Helpers ---

func parseTip(req *tipRequest) (service.TipSelection, error) {
	if req == nil || req.Mode == "" {
		return service.TipSelection{}, nil
	}
	sel := service.TipSelection{Mode: req.Mode}
	if req.Percentage != "" {
		pct, err := decimal.NewFromString(req.Percentage)
		if err != nil {
			return service.TipSelection{}, errors.New("invalid tip percentage")
		}
		sel.Percentage = pct
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return service.TipSelection{}, errors.New("invalid tip amount")
		}
		sel.Amount = amount
	}
	return sel, nil
}

func isSettleValidationError(err error) bool {
	return errors.Is(err, service.ErrNoOperator) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidInvoiceKind) ||
		errors.Is(err, service.ErrIncompleteInvoiceData) ||
		isTipValidationError(err)
}

func isTipValidationError(err error) bool {
	return errors.Is(err, service.ErrInvalidTipMode) ||
		errors.Is(err, service.ErrNegativeTipAmount) ||
		errors.Is(err, service.ErrNegativeTipPercent) ||
		errors.Is(err, service.ErrTipAmountNotAllowed) ||
		errors.Is(err, service.ErrTipPercentNotAllowed)
}
