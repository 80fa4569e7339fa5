package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Order is one row of the orders table. Delivery fields are null for
// dine-in orders; payment fields are null until settlement.
type Order struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	OrderNumber  string
	Status       string
	OrderType    string

	TableNumber   pgtype.Text
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Notes         pgtype.Text

	DeliveryAddress    pgtype.Text
	DeliveryLat        pgtype.Float8
	DeliveryLng        pgtype.Float8
	DeliveryDistanceKm pgtype.Float8
	DeliveryFee        pgtype.Numeric
	DeliveryEtaMinutes pgtype.Int4

	Subtotal      pgtype.Numeric
	Tip           pgtype.Numeric
	TotalAmount   pgtype.Numeric
	PaymentMethod pgtype.Text
	InvoiceKind   string

	CancelReason pgtype.Text

	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a priced line on an order.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Name      string
	Quantity  int32
	UnitPrice pgtype.Numeric
	Subtotal  pgtype.Numeric
	Notes     pgtype.Text
}

// Payment is the settlement record for an order. Billing detail columns are
// populated only for formal invoices; the tip columns only once a tip is
// registered.
type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	PaymentMethod string
	Amount        pgtype.Numeric
	InvoiceKind   string

	Tip     pgtype.Numeric
	TipMode pgtype.Text

	BillingDocumentType   pgtype.Text
	BillingDocumentNumber pgtype.Text
	BillingName           pgtype.Text
	BillingEmail          pgtype.Text
	BillingPhone          pgtype.Text
	BillingAddress        pgtype.Text

	ProcessedBy uuid.UUID
	ProcessedAt time.Time
}

// User is an operator account.
type User struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	Role         string
	CreatedAt    time.Time
}

// DeliveryConfig is the restaurant's tiered delivery pricing row.
type DeliveryConfig struct {
	RestaurantID    uuid.UUID
	OriginLat       float64
	OriginLng       float64
	BaseDistanceKm  float64
	BaseCost        pgtype.Numeric
	PerKmExcessRate pgtype.Numeric
	MaxCoverageKm   float64
	Active          bool
	UpdatedAt       time.Time
}
