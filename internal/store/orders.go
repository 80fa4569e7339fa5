package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, order_number, status, order_type,
	table_number, customer_name, customer_phone, notes,
	delivery_address, delivery_lat, delivery_lng, delivery_distance_km,
	delivery_fee, delivery_eta_minutes,
	subtotal, tip, total_amount, payment_method, invoice_kind,
	cancel_reason, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.OrderNumber, &o.Status, &o.OrderType,
		&o.TableNumber, &o.CustomerName, &o.CustomerPhone, &o.Notes,
		&o.DeliveryAddress, &o.DeliveryLat, &o.DeliveryLng, &o.DeliveryDistanceKm,
		&o.DeliveryFee, &o.DeliveryEtaMinutes,
		&o.Subtotal, &o.Tip, &o.TotalAmount, &o.PaymentMethod, &o.InvoiceKind,
		&o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

type CreateOrderParams struct {
	RestaurantID       uuid.UUID
	OrderNumber        string
	OrderType          string
	TableNumber        pgtype.Text
	CustomerName       pgtype.Text
	CustomerPhone      pgtype.Text
	Notes              pgtype.Text
	DeliveryAddress    pgtype.Text
	DeliveryLat        pgtype.Float8
	DeliveryLng        pgtype.Float8
	DeliveryDistanceKm pgtype.Float8
	DeliveryFee        pgtype.Numeric
	DeliveryEtaMinutes pgtype.Int4
	Subtotal           pgtype.Numeric
	CreatedBy          uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (
			restaurant_id, order_number, order_type,
			table_number, customer_name, customer_phone, notes,
			delivery_address, delivery_lat, delivery_lng, delivery_distance_km,
			delivery_fee, delivery_eta_minutes, subtotal, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+orderColumns,
		arg.RestaurantID, arg.OrderNumber, arg.OrderType,
		arg.TableNumber, arg.CustomerName, arg.CustomerPhone, arg.Notes,
		arg.DeliveryAddress, arg.DeliveryLat, arg.DeliveryLng, arg.DeliveryDistanceKm,
		arg.DeliveryFee, arg.DeliveryEtaMinutes, arg.Subtotal, arg.CreatedBy,
	)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice pgtype.Numeric
	Subtotal  pgtype.Numeric
	Notes     pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, name, quantity, unit_price, subtotal, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, order_id, name, quantity, unit_price, subtotal, notes`,
		arg.OrderID, arg.Name, arg.Quantity, arg.UnitPrice, arg.Subtotal, arg.Notes,
	).Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.Notes)
	return it, err
}

type GetOrderParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND restaurant_id = $2`,
		arg.ID, arg.RestaurantID,
	)
	return scanOrder(row)
}

// OrderStatusRow is the lean shape served to status pollers.
type OrderStatusRow struct {
	ID        uuid.UUID
	Status    string
	UpdatedAt time.Time
}

func (q *Queries) GetOrderStatus(ctx context.Context, arg GetOrderParams) (OrderStatusRow, error) {
	var r OrderStatusRow
	err := q.db.QueryRow(ctx, `
		SELECT id, status, updated_at
		FROM orders
		WHERE id = $1 AND restaurant_id = $2`,
		arg.ID, arg.RestaurantID,
	).Scan(&r.ID, &r.Status, &r.UpdatedAt)
	return r, err
}

type ListOrdersParams struct {
	RestaurantID uuid.UUID
	Status       pgtype.Text
	OrderType    pgtype.Text
	Limit        int32
	Offset       int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE restaurant_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::text IS NULL OR order_type = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		arg.RestaurantID, arg.Status, arg.OrderType, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, name, quantity, unit_price, subtotal, notes
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Status       string
	FromStatus   string
}

// UpdateOrderStatus advances the status only if the row still holds
// FromStatus. Zero rows updated surfaces as pgx.ErrNoRows: the status
// changed between the caller's read and this write.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, updated_at = now()
		WHERE id = $1 AND restaurant_id = $2 AND status = $4
		RETURNING `+orderColumns,
		arg.ID, arg.RestaurantID, arg.Status, arg.FromStatus,
	)
	return scanOrder(row)
}

type CancelOrderParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Reason       pgtype.Text
	// CreatedAfter is now minus the cancellation window; rows created
	// before it are past the window and stay untouched.
	CreatedAfter time.Time
}

// CancelOrder applies the cancellation-eligibility rule in one statement:
// only TAKEN/READY orders still inside the window are cancelled. Zero rows
// means ineligible; the caller fetches the order to report why.
func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'CANCELLED', cancel_reason = $3, updated_at = now()
		WHERE id = $1 AND restaurant_id = $2
		  AND status IN ('TAKEN', 'READY')
		  AND created_at >= $4
		RETURNING `+orderColumns,
		arg.ID, arg.RestaurantID, arg.Reason, arg.CreatedAfter,
	)
	return scanOrder(row)
}

// DeleteTakenOrder permanently removes an order the kitchen has not acted
// on. Distinct from cancellation; only TAKEN rows qualify.
func (q *Queries) DeleteTakenOrder(ctx context.Context, arg GetOrderParams) error {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM orders
		WHERE id = $1 AND restaurant_id = $2 AND status = 'TAKEN'`,
		arg.ID, arg.RestaurantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type SettleOrderParams struct {
	ID            uuid.UUID
	RestaurantID  uuid.UUID
	PaymentMethod string
	InvoiceKind   string
	TotalAmount   pgtype.Numeric
}

// SettleOrder applies the charge as a single statement: payment method,
// invoice kind, final total and the terminal status land together, guarded
// by the not-already-terminal condition. A concurrent settlement loses the
// race and gets pgx.ErrNoRows.
func (q *Queries) SettleOrder(ctx context.Context, arg SettleOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET payment_method = $3,
		    invoice_kind = $4,
		    total_amount = $5,
		    status = 'DELIVERED',
		    updated_at = now()
		WHERE id = $1 AND restaurant_id = $2
		  AND status NOT IN ('DELIVERED', 'CANCELLED')
		RETURNING `+orderColumns,
		arg.ID, arg.RestaurantID, arg.PaymentMethod, arg.InvoiceKind, arg.TotalAmount,
	)
	return scanOrder(row)
}

type SetOrderTipParams struct {
	ID  uuid.UUID
	Tip pgtype.Numeric
}

// SetOrderTip records the tip on the order after a successful charge.
func (q *Queries) SetOrderTip(ctx context.Context, arg SetOrderTipParams) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE orders SET tip = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.Tip,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// NextOrderNumber returns the next sequential order number for a restaurant.
func (q *Queries) NextOrderNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS int)), 0) + 1
		FROM orders
		WHERE restaurant_id = $1`,
		restaurantID,
	).Scan(&n)
	return n, err
}
