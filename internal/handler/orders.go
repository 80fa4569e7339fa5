package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/brasaspos/api/internal/delivery"
	"github.com/brasaspos/api/internal/middleware"
	"github.com/brasaspos/api/internal/service"
	"github.com/brasaspos/api/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	Transition(ctx context.Context, restaurantID, orderID uuid.UUID, target string) (store.Order, error)
	Cancel(ctx context.Context, restaurantID, orderID uuid.UUID, reason string) (store.Order, error)
	Delete(ctx context.Context, restaurantID, orderID uuid.UUID) error
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *store.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	GetOrderStatus(ctx context.Context, arg store.GetOrderParams) (store.OrderStatusRow, error)
	ListOrders(ctx context.Context, arg store.ListOrdersParams) ([]store.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]store.Payment, error)
}

// OrderNotifier pushes order events to connected staff screens. Satisfied by
// *ws.Hub; nil disables notifications.
type OrderNotifier interface {
	NotifyOrderUpdated(restaurantID uuid.UUID, order any)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	store    OrderStore
	cfgStore DeliveryConfigStore
	calc     *delivery.Calculator
	hub      OrderNotifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, st OrderStore, cfgStore DeliveryConfigStore, calc *delivery.Calculator, hub OrderNotifier) *OrderHandler {
	return &OrderHandler{svc: svc, store: st, cfgStore: cfgStore, calc: calc, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a restaurant-scoped subrouter:
// /restaurants/{rid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/status", h.Status)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/cancel", h.Cancel)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createOrderRequest struct {
	OrderType     string                   `json:"order_type"`
	TableNumber   string                   `json:"table_number"`
	CustomerName  string                   `json:"customer_name"`
	CustomerPhone string                   `json:"customer_phone"`
	Notes         string                   `json:"notes"`
	Delivery      *deliveryRequest         `json:"delivery"`
	Items         []createOrderItemRequest `json:"items"`
}

type deliveryRequest struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type createOrderItemRequest struct {
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Notes     string `json:"notes"`
}

type orderResponse struct {
	ID            uuid.UUID `json:"id"`
	RestaurantID  uuid.UUID `json:"restaurant_id"`
	OrderNumber   string    `json:"order_number"`
	Status        string    `json:"status"`
	OrderType     string    `json:"order_type"`
	TableNumber   *string   `json:"table_number"`
	CustomerName  *string   `json:"customer_name"`
	CustomerPhone *string   `json:"customer_phone"`
	Notes         *string   `json:"notes"`

	DeliveryAddress    *string  `json:"delivery_address"`
	DeliveryLat        *float64 `json:"delivery_lat"`
	DeliveryLng        *float64 `json:"delivery_lng"`
	DeliveryDistanceKm *float64 `json:"delivery_distance_km"`
	DeliveryFee        *string  `json:"delivery_fee"`
	DeliveryEtaMinutes *int32   `json:"delivery_eta_minutes"`

	Subtotal      string  `json:"subtotal"`
	Tip           *string `json:"tip"`
	TotalAmount   *string `json:"total_amount"`
	PaymentMethod *string `json:"payment_method"`
	InvoiceKind   string  `json:"invoice_kind"`
	CancelReason  *string `json:"cancel_reason"`

	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Quantity  int32     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
	Notes     *string   `json:"notes"`
}

type paymentResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	PaymentMethod string    `json:"payment_method"`
	Amount        string    `json:"amount"`
	InvoiceKind   string    `json:"invoice_kind"`
	Tip           *string   `json:"tip"`
	TipMode       *string   `json:"tip_mode"`
	BillingName   *string   `json:"billing_name"`
	BillingEmail  *string   `json:"billing_email"`
	ProcessedBy   uuid.UUID `json:"processed_by"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// orderDetailResponse extends orderResponse with payments for the GET detail endpoint.
type orderDetailResponse struct {
	orderResponse
	Payments []paymentResponse `json:"payments"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// orderStatusResponse is the lean body served to pollers.
type orderStatusResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// --- Handlers ---

// Create handles POST /restaurants/{rid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.OrderType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_type is required"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i, item := range req.Items {
		if item.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "name is required"),
			})
			return
		}
		if item.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": formatItemError(i, "quantity must be > 0"),
			})
			return
		}
	}

	svcReq := service.CreateOrderRequest{
		RestaurantID:  restaurantID,
		CreatedBy:     claims.UserID,
		OrderType:     req.OrderType,
		TableNumber:   req.TableNumber,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
	}
	svcReq.Items = make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		svcReq.Items[i] = service.CreateOrderItemRequest{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Notes:     item.Notes,
		}
	}

	// A delivery order needs a priced quote before the service sees it; the
	// quoted fee is folded into the order exactly once at creation.
	if req.Delivery != nil {
		quote, status, msg := quoteDestination(r.Context(), h.cfgStore, h.calc, restaurantID,
			delivery.Coordinate{Lat: req.Delivery.Lat, Lng: req.Delivery.Lng})
		if msg != "" {
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}
		svcReq.Delivery = &service.DeliveryDetails{
			Address: req.Delivery.Address,
			Lat:     req.Delivery.Lat,
			Lng:     req.Delivery.Lng,
			Quote:   quote,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		if isOrderValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, service.ErrQuoteOutOfCoverage) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "destination is outside the coverage area"})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(result.Order)
	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, item := range result.Items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}

	h.notify(restaurantID, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /restaurants/{rid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := store.ListOrdersParams{
		RestaurantID: restaurantID,
		Limit:        int32(limit),
		Offset:       int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("type"); s != "" {
		params.OrderType = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /restaurants/{rid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), store.GetOrderParams{
		ID:           orderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = make([]orderItemResponse, len(items))
	for i, item := range items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}

	paymentResps := make([]paymentResponse, len(payments))
	for i, p := range payments {
		paymentResps[i] = dbPaymentToResponse(p)
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		orderResponse: resp,
		Payments:      paymentResps,
	})
}

// Status handles GET /restaurants/{rid}/orders/{id}/status. Served lean so
// pollers on a 10-second tick stay cheap.
func (h *OrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	row, err := h.store.GetOrderStatus(r.Context(), store.GetOrderParams{
		ID:           orderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, orderStatusResponse{
		ID:        row.ID,
		Status:    row.Status,
		UpdatedAt: row.UpdatedAt,
	})
}

// UpdateStatus handles PATCH /restaurants/{rid}/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	updated, err := h.svc.Transition(r.Context(), restaurantID, orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrInvalidStatus):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		case errors.Is(err, service.ErrOrderTerminal), errors.Is(err, service.ErrIllegalTransition):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrConcurrentUpdate):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order status changed, please retry"})
		default:
			log.Printf("ERROR: update order status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := dbOrderToResponse(updated)
	h.notify(restaurantID, resp)
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /restaurants/{rid}/orders/{id}/cancel. Cancellation is
// a customer-remorse action with its own window, not a status transition.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		// Body is optional; a bare cancel carries no reason.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	cancelled, err := h.svc.Cancel(r.Context(), restaurantID, orderID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrNotCancellable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrCancellationExpired):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "cancellation window has expired"})
		default:
			log.Printf("ERROR: cancel order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := dbOrderToResponse(cancelled)
	h.notify(restaurantID, resp)
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /restaurants/{rid}/orders/{id}. Permanent removal,
// allowed only before the kitchen starts.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), restaurantID, orderID); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, service.ErrNotDeletable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "only orders the kitchen has not started can be deleted"})
		default:
			log.Printf("ERROR: delete order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *OrderHandler) pathIDs(w http.ResponseWriter, r *http.Request) (restaurantID, orderID uuid.UUID, ok bool) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return restaurantID, orderID, true
}

func (h *OrderHandler) notify(restaurantID uuid.UUID, order any) {
	if h.hub != nil {
		h.hub.NotifyOrderUpdated(restaurantID, order)
	}
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// isOrderValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidOrderType) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidUnitPrice) ||
		errors.Is(err, service.ErrMissingDelivery) ||
		errors.Is(err, service.ErrDeliveryOnDineIn)
}

func dbOrderToResponse(o store.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		RestaurantID: o.RestaurantID,
		OrderNumber:  o.OrderNumber,
		Status:       o.Status,
		OrderType:    o.OrderType,
		Subtotal:     numericToString(o.Subtotal),
		InvoiceKind:  o.InvoiceKind,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}

	if o.TableNumber.Valid {
		resp.TableNumber = &o.TableNumber.String
	}
	if o.CustomerName.Valid {
		resp.CustomerName = &o.CustomerName.String
	}
	if o.CustomerPhone.Valid {
		resp.CustomerPhone = &o.CustomerPhone.String
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.DeliveryAddress.Valid {
		resp.DeliveryAddress = &o.DeliveryAddress.String
	}
	if o.DeliveryLat.Valid {
		resp.DeliveryLat = &o.DeliveryLat.Float64
	}
	if o.DeliveryLng.Valid {
		resp.DeliveryLng = &o.DeliveryLng.Float64
	}
	if o.DeliveryDistanceKm.Valid {
		resp.DeliveryDistanceKm = &o.DeliveryDistanceKm.Float64
	}
	if o.DeliveryFee.Valid {
		s := numericToString(o.DeliveryFee)
		resp.DeliveryFee = &s
	}
	if o.DeliveryEtaMinutes.Valid {
		resp.DeliveryEtaMinutes = &o.DeliveryEtaMinutes.Int32
	}
	if o.Tip.Valid {
		s := numericToString(o.Tip)
		resp.Tip = &s
	}
	if o.TotalAmount.Valid {
		s := numericToString(o.TotalAmount)
		resp.TotalAmount = &s
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.CancelReason.Valid {
		resp.CancelReason = &o.CancelReason.String
	}

	return resp
}

func dbOrderItemToResponse(item store.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:        item.ID,
		Name:      item.Name,
		Quantity:  item.Quantity,
		UnitPrice: numericToString(item.UnitPrice),
		Subtotal:  numericToString(item.Subtotal),
	}
	if item.Notes.Valid {
		resp.Notes = &item.Notes.String
	}
	return resp
}

func dbPaymentToResponse(p store.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Amount:        numericToString(p.Amount),
		InvoiceKind:   p.InvoiceKind,
		ProcessedBy:   p.ProcessedBy,
		ProcessedAt:   p.ProcessedAt,
	}
	if p.Tip.Valid {
		s := numericToString(p.Tip)
		resp.Tip = &s
	}
	if p.TipMode.Valid {
		resp.TipMode = &p.TipMode.String
	}
	if p.BillingName.Valid {
		resp.BillingName = &p.BillingName.String
	}
	if p.BillingEmail.Valid {
		resp.BillingEmail = &p.BillingEmail.String
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0"
	}
	return val.(string)
}
