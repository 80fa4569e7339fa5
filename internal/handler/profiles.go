package handler

import (
	"encoding/json"
	"net/http"

	"github.com/brasaspos/api/internal/profile"
	"github.com/go-chi/chi/v5"
)

// ProfileHandler serves the phone-keyed customer profile cache so the order
// screen can prefill repeat customers. The cache is convenience only; losing
// it loses nothing durable.
type ProfileHandler struct {
	cache *profile.MemoryCache
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(cache *profile.MemoryCache) *ProfileHandler {
	return &ProfileHandler{cache: cache}
}

// RegisterRoutes registers profile endpoints on the given Chi router.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles/{phone}", h.Get)
	r.Put("/profiles/{phone}", h.Put)
}

type profileRequest struct {
	Name        string  `json:"name"`
	LastAddress string  `json:"last_address"`
	LastLat     float64 `json:"last_lat"`
	LastLng     float64 `json:"last_lng"`
}

// Get handles GET /restaurants/{rid}/profiles/{phone}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}

	p, ok := h.cache.Get(phone)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Put handles PUT /restaurants/{rid}/profiles/{phone}.
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	h.cache.Put(profile.Profile{
		Phone:       phone,
		Name:        req.Name,
		LastAddress: req.LastAddress,
		LastLat:     req.LastLat,
		LastLng:     req.LastLng,
	})

	p, _ := h.cache.Get(phone)
	writeJSON(w, http.StatusOK, p)
}
