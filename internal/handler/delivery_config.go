package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/brasaspos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DeliveryConfigAdminStore defines the database methods needed to manage
// delivery pricing. Satisfied by *store.Queries.
type DeliveryConfigAdminStore interface {
	GetDeliveryConfig(ctx context.Context, restaurantID uuid.UUID) (store.DeliveryConfig, error)
	UpsertDeliveryConfig(ctx context.Context, arg store.UpsertDeliveryConfigParams) (store.DeliveryConfig, error)
}

// DeliveryConfigHandler manages per-restaurant delivery pricing.
type DeliveryConfigHandler struct {
	store DeliveryConfigAdminStore
}

// NewDeliveryConfigHandler creates a new DeliveryConfigHandler.
func NewDeliveryConfigHandler(st DeliveryConfigAdminStore) *DeliveryConfigHandler {
	return &DeliveryConfigHandler{store: st}
}

// RegisterRoutes registers delivery-config endpoints. Expected to be mounted
// inside a restaurant-scoped subrouter: /restaurants/{rid}/delivery-config
func (h *DeliveryConfigHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Put)
}

type deliveryConfigRequest struct {
	OriginLat       float64 `json:"origin_lat"`
	OriginLng       float64 `json:"origin_lng"`
	BaseDistanceKm  float64 `json:"base_distance_km"`
	BaseCost        string  `json:"base_cost"`
	PerKmExcessRate string  `json:"per_km_excess_rate"`
	MaxCoverageKm   float64 `json:"max_coverage_km"`
	Active          bool    `json:"active"`
}

type deliveryConfigResponse struct {
	RestaurantID    uuid.UUID `json:"restaurant_id"`
	OriginLat       float64   `json:"origin_lat"`
	OriginLng       float64   `json:"origin_lng"`
	BaseDistanceKm  float64   `json:"base_distance_km"`
	BaseCost        string    `json:"base_cost"`
	PerKmExcessRate string    `json:"per_km_excess_rate"`
	MaxCoverageKm   float64   `json:"max_coverage_km"`
	Active          bool      `json:"active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Get handles GET /restaurants/{rid}/delivery-config.
func (h *DeliveryConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	cfg, err := h.store.GetDeliveryConfig(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "delivery config not found"})
			return
		}
		log.Printf("ERROR: get delivery config: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toDeliveryConfigResponse(cfg))
}

// Put handles PUT /restaurants/{rid}/delivery-config. Owner only; creating
// and updating are the same operation.
func (h *DeliveryConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	var req deliveryConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	baseCost, err := decimal.NewFromString(req.BaseCost)
	if err != nil || baseCost.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base_cost must be a non-negative number"})
		return
	}
	perKm, err := decimal.NewFromString(req.PerKmExcessRate)
	if err != nil || perKm.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "per_km_excess_rate must be a non-negative number"})
		return
	}
	if req.BaseDistanceKm < 0 || req.MaxCoverageKm < req.BaseDistanceKm {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "coverage must be at least the base distance"})
		return
	}

	cfg, err := h.store.UpsertDeliveryConfig(r.Context(), store.UpsertDeliveryConfigParams{
		RestaurantID:    restaurantID,
		OriginLat:       req.OriginLat,
		OriginLng:       req.OriginLng,
		BaseDistanceKm:  req.BaseDistanceKm,
		BaseCost:        decimalToNumeric(baseCost),
		PerKmExcessRate: decimalToNumeric(perKm),
		MaxCoverageKm:   req.MaxCoverageKm,
		Active:          req.Active,
	})
	if err != nil {
		log.Printf("ERROR: upsert delivery config: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toDeliveryConfigResponse(cfg))
}

func toDeliveryConfigResponse(cfg store.DeliveryConfig) deliveryConfigResponse {
	return deliveryConfigResponse{
		RestaurantID:    cfg.RestaurantID,
		OriginLat:       cfg.OriginLat,
		OriginLng:       cfg.OriginLng,
		BaseDistanceKm:  cfg.BaseDistanceKm,
		BaseCost:        numericToString(cfg.BaseCost),
		PerKmExcessRate: numericToString(cfg.PerKmExcessRate),
		MaxCoverageKm:   cfg.MaxCoverageKm,
		Active:          cfg.Active,
		UpdatedAt:       cfg.UpdatedAt,
	}
}
