package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brasaspos/api/internal/delivery"
	"github.com/brasaspos/api/internal/enum"
	"github.com/brasaspos/api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems          = errors.New("items are required")
	ErrInvalidOrderType    = errors.New("invalid order_type")
	ErrInvalidQuantity     = errors.New("quantity must be > 0")
	ErrInvalidUnitPrice    = errors.New("invalid unit_price")
	ErrMissingDelivery     = errors.New("delivery details are required for DELIVERY orders")
	ErrQuoteOutOfCoverage  = errors.New("delivery quote is out of coverage")
	ErrDeliveryOnDineIn    = errors.New("dine-in orders cannot carry delivery details")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrOrderTerminal       = errors.New("order is already in a terminal state")
	ErrConcurrentUpdate    = errors.New("order changed concurrently, re-fetch and retry")
	ErrNotCancellable      = errors.New("order can no longer be cancelled")
	ErrCancellationExpired = errors.New("cancellation window has expired")
	ErrNotDeletable        = errors.New("only just-taken orders can be deleted")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order service needs.
// Satisfied by *store.Queries over a pool or transaction.
type OrderStore interface {
	NextOrderNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	UpdateOrderStatus(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error)
	CancelOrder(ctx context.Context, arg store.CancelOrderParams) (store.Order, error)
	DeleteTakenOrder(ctx context.Context, arg store.GetOrderParams) error
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db store.DBTX) OrderStore

// ── State machine ──

// nextStatus returns the single legal successor in the fulfillment graph.
// Dine-in orders skip the courier states.
func nextStatus(orderType, current string) (string, bool) {
	switch current {
	case enum.OrderStatusTaken:
		return enum.OrderStatusReady, true
	case enum.OrderStatusReady:
		if orderType == enum.OrderTypeDelivery {
			return enum.OrderStatusEnRoute, true
		}
		return enum.OrderStatusDelivered, true
	case enum.OrderStatusEnRoute:
		return enum.OrderStatusArrived, true
	case enum.OrderStatusArrived:
		return enum.OrderStatusDelivered, true
	}
	return "", false
}

// ValidateTransition checks that target is the immediate successor of
// current. Cancellation is not a transition; it goes through Cancel.
func ValidateTransition(orderType, current, target string) error {
	if enum.IsTerminalStatus(current) {
		return fmt.Errorf("%w: %s", ErrOrderTerminal, current)
	}
	next, ok := nextStatus(orderType, current)
	if !ok || target != next {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, target)
	}
	return nil
}

// CanCancel reports cancellation eligibility: the kitchen may still be
// holding the order (TAKEN/READY) and the window since creation has not
// elapsed.
func CanCancel(status string, createdAt, now time.Time, window time.Duration) bool {
	if status != enum.OrderStatusTaken && status != enum.OrderStatusReady {
		return false
	}
	return now.Sub(createdAt) <= window
}

// ── Requests / results ──

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	RestaurantID  uuid.UUID
	CreatedBy     uuid.UUID
	OrderType     string
	TableNumber   string
	CustomerName  string
	CustomerPhone string
	Notes         string
	Items         []CreateOrderItemRequest
	Delivery      *DeliveryDetails
}

// CreateOrderItemRequest is a single priced line.
type CreateOrderItemRequest struct {
	Name      string
	Quantity  int32
	UnitPrice string
	Notes     string
}

// DeliveryDetails carries the customer-confirmed quote. The quote is folded
// into the order at creation; the fee is never recomputed afterwards.
type DeliveryDetails struct {
	Address string
	Lat     float64
	Lng     float64
	Quote   delivery.Quote
}

// CreateOrderResult is the created order with its items.
type CreateOrderResult struct {
	Order store.Order
	Items []store.OrderItem
}

// OrderService owns the order lifecycle: creation, transitions,
// cancellation, deletion.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore

	// cancellationWindow gates Cancel; configuration, not a constant.
	cancellationWindow time.Duration

	now func() time.Time
}

// NewOrderService creates a new OrderService. st runs reads and
// single-statement writes outside transactions; newStore builds the
// transactional variant inside CreateOrder.
func NewOrderService(pool TxBeginner, st OrderStore, newStore NewOrderStore, cancellationWindow time.Duration) *OrderService {
	return &OrderService{
		pool:               pool,
		store:              st,
		newStore:           newStore,
		cancellationWindow: cancellationWindow,
		now:                time.Now,
	}
}

// CreateOrder validates, prices, and creates an order atomically. Retries on
// order_number unique-constraint races like any concurrent MAX-based
// numbering scheme needs.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.OrderType != enum.OrderTypeDineIn && req.OrderType != enum.OrderTypeDelivery {
		return nil, ErrInvalidOrderType
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.OrderType == enum.OrderTypeDelivery {
		if req.Delivery == nil {
			return nil, ErrMissingDelivery
		}
		if req.Delivery.Quote.OutOfCoverage {
			return nil, ErrQuoteOutOfCoverage
		}
	} else if req.Delivery != nil {
		return nil, ErrDeliveryOnDineIn
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks for a unique constraint violation on the
// order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_restaurant_id_order_number_key"
	}
	return false
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	st := s.newStore(tx)

	nextNum, err := st.NextOrderNumber(ctx, req.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("BRS-%03d", nextNum)

	// Price items and accumulate the subtotal.
	subtotal := decimal.Zero
	itemParams := make([]store.CreateOrderItemParams, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidUnitPrice)
		}
		lineSubtotal := unitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		subtotal = subtotal.Add(lineSubtotal)

		notes := pgtype.Text{}
		if item.Notes != "" {
			notes = pgtype.Text{String: item.Notes, Valid: true}
		}
		itemParams = append(itemParams, store.CreateOrderItemParams{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: decimalToNumeric(unitPrice),
			Subtotal:  decimalToNumeric(lineSubtotal),
			Notes:     notes,
		})
	}

	params := store.CreateOrderParams{
		RestaurantID: req.RestaurantID,
		OrderNumber:  orderNumber,
		OrderType:    req.OrderType,
		Subtotal:     decimalToNumeric(subtotal),
		CreatedBy:    req.CreatedBy,
	}
	if req.TableNumber != "" {
		params.TableNumber = pgtype.Text{String: req.TableNumber, Valid: true}
	}
	if req.CustomerName != "" {
		params.CustomerName = pgtype.Text{String: req.CustomerName, Valid: true}
	}
	if req.CustomerPhone != "" {
		params.CustomerPhone = pgtype.Text{String: req.CustomerPhone, Valid: true}
	}
	if req.Notes != "" {
		params.Notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	// Fold the confirmed quote into the order. This is the only point where
	// a delivery fee is ever written.
	if req.Delivery != nil {
		d := req.Delivery
		params.DeliveryAddress = pgtype.Text{String: d.Address, Valid: true}
		params.DeliveryLat = pgtype.Float8{Float64: d.Lat, Valid: true}
		params.DeliveryLng = pgtype.Float8{Float64: d.Lng, Valid: true}
		params.DeliveryDistanceKm = pgtype.Float8{Float64: d.Quote.DistanceKm, Valid: true}
		params.DeliveryFee = decimalToNumeric(d.Quote.TotalCost)
		params.DeliveryEtaMinutes = pgtype.Int4{Int32: int32(d.Quote.EstimatedMinutes), Valid: true}
	}

	order, err := st.CreateOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]store.OrderItem, 0, len(itemParams))
	for _, ip := range itemParams {
		ip.OrderID = order.ID
		item, err := st.CreateOrderItem(ctx, ip)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: items}, nil
}

// Transition advances an order to target, which must be the immediate
// successor of its current status. The write is conditional on the status
// the caller observed; a concurrent change surfaces as ErrConcurrentUpdate.
func (s *OrderService) Transition(ctx context.Context, restaurantID, orderID uuid.UUID, target string) (store.Order, error) {
	st := s.store
	if !isValidOrderStatus(target) {
		return store.Order{}, ErrInvalidStatus
	}

	current, err := st.GetOrder(ctx, store.GetOrderParams{ID: orderID, RestaurantID: restaurantID})
	if err != nil {
		return store.Order{}, err
	}

	if err := ValidateTransition(current.OrderType, current.Status, target); err != nil {
		return store.Order{}, err
	}

	updated, err := st.UpdateOrderStatus(ctx, store.UpdateOrderStatusParams{
		ID:           orderID,
		RestaurantID: restaurantID,
		Status:       target,
		FromStatus:   current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrConcurrentUpdate
		}
		return store.Order{}, err
	}
	return updated, nil
}

// Cancel cancels an order while the cancellation window still holds. The
// store applies status and window conditions in one statement; this method
// only classifies why a rejected attempt was rejected.
func (s *OrderService) Cancel(ctx context.Context, restaurantID, orderID uuid.UUID, reason string) (store.Order, error) {
	st := s.store
	reasonText := pgtype.Text{}
	if reason != "" {
		reasonText = pgtype.Text{String: reason, Valid: true}
	}

	cancelled, err := st.CancelOrder(ctx, store.CancelOrderParams{
		ID:           orderID,
		RestaurantID: restaurantID,
		Reason:       reasonText,
		CreatedAfter: s.now().Add(-s.cancellationWindow),
	})
	if err == nil {
		return cancelled, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Order{}, err
	}

	// Zero rows: not found, past READY, or window elapsed. Fetch to say which.
	current, fetchErr := st.GetOrder(ctx, store.GetOrderParams{ID: orderID, RestaurantID: restaurantID})
	if fetchErr != nil {
		return store.Order{}, fetchErr
	}
	if current.Status != enum.OrderStatusTaken && current.Status != enum.OrderStatusReady {
		return store.Order{}, fmt.Errorf("%w: status is %s", ErrNotCancellable, current.Status)
	}
	return store.Order{}, ErrCancellationExpired
}

// Delete permanently removes an order the kitchen has not started. This is
// destructive and distinct from cancellation.
func (s *OrderService) Delete(ctx context.Context, restaurantID, orderID uuid.UUID) error {
	st := s.store
	err := st.DeleteTakenOrder(ctx, store.GetOrderParams{ID: orderID, RestaurantID: restaurantID})
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if _, fetchErr := st.GetOrder(ctx, store.GetOrderParams{ID: orderID, RestaurantID: restaurantID}); fetchErr != nil {
		return fetchErr
	}
	return ErrNotDeletable
}

// ── Helpers ──

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusTaken, enum.OrderStatusReady, enum.OrderStatusEnRoute,
		enum.OrderStatusArrived, enum.OrderStatusDelivered, enum.OrderStatusCancelled:
		return true
	}
	return false
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

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
