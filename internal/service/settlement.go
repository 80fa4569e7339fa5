package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/brasaspos/api/internal/enum"
	"github.com/brasaspos/api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by settlement.
var (
	ErrNoOperator            = errors.New("operator identity is required")
	ErrInvalidPaymentMethod  = errors.New("invalid payment_method")
	ErrInvalidInvoiceKind    = errors.New("invalid invoice_kind")
	ErrIncompleteInvoiceData = errors.New("incomplete invoice data")
	ErrAlreadySettled        = errors.New("order is already settled")
	ErrOrderCancelled        = errors.New("order is cancelled")
	ErrPaymentNotFound       = errors.New("payment not found")
)

// SettlementStore defines the DB methods settlement needs.
// Satisfied by *store.Queries over a pool or transaction.
type SettlementStore interface {
	GetOrder(ctx context.Context, arg store.GetOrderParams) (store.Order, error)
	SettleOrder(ctx context.Context, arg store.SettleOrderParams) (store.Order, error)
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (store.Payment, error)
	SetPaymentTip(ctx context.Context, arg store.SetPaymentTipParams) (store.Payment, error)
	SetOrderTip(ctx context.Context, arg store.SetOrderTipParams) error
}

// NewSettlementStore creates a SettlementStore from a DBTX (pool or tx).
type NewSettlementStore func(db store.DBTX) SettlementStore

// BillingDetail is the invoice recipient record required when a formal
// invoice is requested. Phone and address are optional.
type BillingDetail struct {
	DocumentType   string
	DocumentNumber string
	Name           string
	Email          string
	Phone          string
	Address        string
}

func (b BillingDetail) complete() bool {
	return strings.TrimSpace(b.DocumentType) != "" &&
		strings.TrimSpace(b.DocumentNumber) != "" &&
		strings.TrimSpace(b.Name) != "" &&
		strings.TrimSpace(b.Email) != ""
}

// SettleRequest is the validated input for charging an order.
type SettleRequest struct {
	RestaurantID  uuid.UUID
	OrderID       uuid.UUID
	OperatorID    uuid.UUID
	PaymentMethod string
	InvoiceKind   string
	Billing       *BillingDetail
	Tip           TipSelection
}

// SettleResult is the outcome of a successful charge. TipWarning is set when
// the follow-up tip registration failed; the charge itself stands.
type SettleResult struct {
	Order      store.Order
	Payment    store.Payment
	FinalTotal decimal.Decimal
	Tip        decimal.Decimal
	TipWarning string
}

// SettlementService charges orders: it validates preconditions, computes
// the final total, applies the charge and terminal transition as one unit,
// and registers the tip best-effort afterwards.
type SettlementService struct {
	pool     TxBeginner
	store    SettlementStore
	newStore NewSettlementStore
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(pool TxBeginner, st SettlementStore, newStore NewSettlementStore) *SettlementService {
	return &SettlementService{pool: pool, store: st, newStore: newStore}
}

// Settle charges an order. Preconditions run in a fixed order and
// short-circuit before any mutation; the charge itself is one conditional
// statement plus the payment insert inside a single transaction, so at most
// one settlement ever succeeds per order. The tip write happens after
// commit and never rolls the charge back.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	// 1. Operator identity.
	if req.OperatorID == uuid.Nil {
		return nil, ErrNoOperator
	}

	order, err := s.store.GetOrder(ctx, store.GetOrderParams{ID: req.OrderID, RestaurantID: req.RestaurantID})
	if err != nil {
		return nil, err
	}

	// 2. Not already terminal. Charging is tolerated from TAKEN or READY.
	switch order.Status {
	case enum.OrderStatusDelivered:
		return nil, ErrAlreadySettled
	case enum.OrderStatusCancelled:
		return nil, ErrOrderCancelled
	}

	// 3. Payment method.
	if !isValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	// 4. Invoice completeness.
	invoiceKind := req.InvoiceKind
	if invoiceKind == "" {
		invoiceKind = enum.InvoiceKindNone
	}
	if !isValidInvoiceKind(invoiceKind) {
		return nil, ErrInvalidInvoiceKind
	}
	if order.OrderType == enum.OrderTypeDineIn && invoiceKind == enum.InvoiceKindInvoice {
		if req.Billing == nil || !req.Billing.complete() {
			return nil, ErrIncompleteInvoiceData
		}
	}

	// Resolve the tip before any write so a bad selection rejects cleanly.
	subtotal := numericToDecimal(order.Subtotal)
	tip, err := req.Tip.Resolve(subtotal)
	if err != nil {
		return nil, err
	}

	deliveryFee := decimal.Zero
	if order.OrderType == enum.OrderTypeDelivery {
		deliveryFee = numericToDecimal(order.DeliveryFee)
	}
	finalTotal := subtotal.Add(deliveryFee).Add(tip)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	txStore := s.newStore(tx)

	// Payment method and terminal status land in one conditional statement.
	// Losing a settlement race means zero rows, never a double charge.
	settled, err := txStore.SettleOrder(ctx, store.SettleOrderParams{
		ID:            req.OrderID,
		RestaurantID:  req.RestaurantID,
		PaymentMethod: req.PaymentMethod,
		InvoiceKind:   invoiceKind,
		TotalAmount:   decimalToNumeric(finalTotal),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadySettled
		}
		return nil, fmt.Errorf("settle order: %w", err)
	}

	paymentParams := store.CreatePaymentParams{
		OrderID:       req.OrderID,
		PaymentMethod: req.PaymentMethod,
		Amount:        decimalToNumeric(finalTotal),
		InvoiceKind:   invoiceKind,
		ProcessedBy:   req.OperatorID,
	}
	if req.Billing != nil {
		b := req.Billing
		paymentParams.BillingDocumentType = optionalText(b.DocumentType)
		paymentParams.BillingDocumentNumber = optionalText(b.DocumentNumber)
		paymentParams.BillingName = optionalText(b.Name)
		paymentParams.BillingEmail = optionalText(b.Email)
		paymentParams.BillingPhone = optionalText(b.Phone)
		paymentParams.BillingAddress = optionalText(b.Address)
	}
	payment, err := txStore.CreatePayment(ctx, paymentParams)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &SettleResult{
		Order:      settled,
		Payment:    payment,
		FinalTotal: finalTotal,
		Tip:        tip,
	}

	// Best-effort follow-up: the charge is durable, the tip is enrichment.
	// A failure here is logged and surfaced, never rolled back into the
	// charge.
	if req.Tip.Mode != "" && req.Tip.Mode != enum.TipModeNone {
		updated, err := s.applyTip(ctx, payment.ID, payment.OrderID, req.Tip, tip)
		if err != nil {
			log.Printf("WARN: register tip for payment %s: %v", payment.ID, err)
			result.TipWarning = "charge succeeded but tip registration failed"
		} else {
			result.Payment = updated
		}
	}

	return result, nil
}

// RegisterTip records a tip against an existing settlement, independent of
// Settle's own follow-up. Percentage tips resolve against the order's
// subtotal at registration time.
func (s *SettlementService) RegisterTip(ctx context.Context, restaurantID, paymentID uuid.UUID, sel TipSelection) (store.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Payment{}, ErrPaymentNotFound
		}
		return store.Payment{}, err
	}

	order, err := s.store.GetOrder(ctx, store.GetOrderParams{ID: payment.OrderID, RestaurantID: restaurantID})
	if err != nil {
		return store.Payment{}, err
	}

	tip, err := sel.Resolve(numericToDecimal(order.Subtotal))
	if err != nil {
		return store.Payment{}, err
	}

	return s.applyTip(ctx, payment.ID, payment.OrderID, sel, tip)
}

func (s *SettlementService) applyTip(ctx context.Context, paymentID, orderID uuid.UUID, sel TipSelection, tip decimal.Decimal) (store.Payment, error) {
	updated, err := s.store.SetPaymentTip(ctx, store.SetPaymentTipParams{
		ID:      paymentID,
		Tip:     decimalToNumeric(tip),
		TipMode: pgtype.Text{String: sel.Mode, Valid: true},
	})
	if err != nil {
		return store.Payment{}, fmt.Errorf("set payment tip: %w", err)
	}
	if err := s.store.SetOrderTip(ctx, store.SetOrderTipParams{ID: orderID, Tip: decimalToNumeric(tip)}); err != nil {
		return store.Payment{}, fmt.Errorf("set order tip: %w", err)
	}
	return updated, nil
}

// ── Helpers ──

func isValidPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodTransfer:
		return true
	}
	return false
}

func isValidInvoiceKind(k string) bool {
	switch k {
	case enum.InvoiceKindNone, enum.InvoiceKindReceipt, enum.InvoiceKindInvoice:
		return true
	}
	return false
}

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
