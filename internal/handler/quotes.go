package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/brasaspos/api/internal/delivery"
	"github.com/brasaspos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DeliveryConfigStore defines the database methods needed to price
// deliveries. Satisfied by *store.Queries.
type DeliveryConfigStore interface {
	GetDeliveryConfig(ctx context.Context, restaurantID uuid.UUID) (store.DeliveryConfig, error)
}

// QuoteHandler prices prospective deliveries before an order exists.
type QuoteHandler struct {
	store DeliveryConfigStore
	calc  *delivery.Calculator
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(st DeliveryConfigStore, calc *delivery.Calculator) *QuoteHandler {
	return &QuoteHandler{store: st, calc: calc}
}

// RegisterRoutes registers quote endpoints on the given Chi router.
func (h *QuoteHandler) RegisterRoutes(r chi.Router) {
	r.Post("/quotes/delivery", h.Quote)
}

type quoteRequest struct {
	RestaurantID string  `json:"restaurant_id"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

type quoteResponse struct {
	DistanceKm       float64 `json:"distance_km"`
	BaseDistanceKm   float64 `json:"base_distance_km"`
	ExcessDistanceKm float64 `json:"excess_distance_km"`
	BaseCost         string  `json:"base_cost"`
	ExcessCost       string  `json:"excess_cost"`
	TotalCost        string  `json:"total_cost"`
	EstimatedMinutes int     `json:"estimated_minutes"`
}

// Quote handles POST /quotes/delivery. Public: customers price a delivery
// before committing to an order.
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant_id"})
		return
	}

	quote, status, msg := quoteDestination(r.Context(), h.store, h.calc, restaurantID,
		delivery.Coordinate{Lat: req.Lat, Lng: req.Lng})
	if msg != "" {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}

	writeJSON(w, http.StatusOK, toQuoteResponse(quote))
}

// quoteDestination loads the restaurant's pricing config and prices one
// destination. On failure it returns an HTTP status and message for the
// caller to write; msg is empty on success.
func quoteDestination(ctx context.Context, st DeliveryConfigStore, calc *delivery.Calculator, restaurantID uuid.UUID, dest delivery.Coordinate) (delivery.Quote, int, string) {
	cfg, err := st.GetDeliveryConfig(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return delivery.Quote{}, http.StatusServiceUnavailable, "delivery service is not available"
		}
		log.Printf("ERROR: get delivery config: %v", err)
		return delivery.Quote{}, http.StatusInternalServerError, "internal server error"
	}

	quote, err := calc.Quote(dest, toDeliveryConfig(cfg))
	if err != nil {
		if errors.Is(err, delivery.ErrServiceDisabled) {
			return delivery.Quote{}, http.StatusServiceUnavailable, "delivery service is not available"
		}
		log.Printf("ERROR: quote delivery: %v", err)
		return delivery.Quote{}, http.StatusInternalServerError, "internal server error"
	}
	if quote.OutOfCoverage {
		return delivery.Quote{}, http.StatusUnprocessableEntity, "destination is outside the coverage area"
	}

	return quote, 0, ""
}

func toDeliveryConfig(cfg store.DeliveryConfig) delivery.Config {
	return delivery.Config{
		Origin:         delivery.Coordinate{Lat: cfg.OriginLat, Lng: cfg.OriginLng},
		BaseDistanceKm: cfg.BaseDistanceKm,
		BaseCost:       numericToDecimal(cfg.BaseCost),
		PerKmExcess:    numericToDecimal(cfg.PerKmExcessRate),
		MaxCoverageKm:  cfg.MaxCoverageKm,
		Active:         cfg.Active,
	}
}

func toQuoteResponse(q delivery.Quote) quoteResponse {
	return quoteResponse{
		DistanceKm:       q.DistanceKm,
		BaseDistanceKm:   q.BaseDistanceKm,
		ExcessDistanceKm: q.ExcessDistanceKm,
		BaseCost:         q.BaseCost.String(),
		ExcessCost:       q.ExcessCost.String(),
		TotalCost:        q.TotalCost.String(),
		EstimatedMinutes: q.EstimatedMinutes,
	}
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
