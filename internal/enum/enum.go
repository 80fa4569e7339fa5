package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusTaken     = "TAKEN"
	OrderStatusReady     = "READY"
	OrderStatusEnRoute   = "EN_ROUTE"
	OrderStatusArrived   = "ARRIVED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// IsTerminalStatus reports whether an order in this status can never
// transition again.
func IsTerminalStatus(s string) bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ── Group B: Fixed value sets (CHECK constrained in DB) ──

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeDelivery = "DELIVERY"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"
)

const (
	InvoiceKindNone    = "NONE"
	InvoiceKindReceipt = "RECEIPT"
	InvoiceKindInvoice = "INVOICE"
)

const (
	TipModeNone       = "NONE"
	TipModePercentage = "PERCENTAGE"
	TipModeFixed      = "FIXED"
)

// ── Group C: Operator roles ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
	UserRoleWaiter  = "WAITER"
)
