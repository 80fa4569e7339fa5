package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brasaspos/api/internal/enum"
	"github.com/brasaspos/api/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// mockSettlementStore is a map-backed fake with mutex protection so the
// concurrent settlement test exercises the real conditional-update
// semantics: the first settle wins, later ones touch zero rows.
type mockSettlementStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]store.Order
	payments map[uuid.UUID]store.Payment

	setPaymentTipErr error
	setOrderTipErr   error
}

func newMockSettlementStore() *mockSettlementStore {
	return &mockSettlementStore{
		orders:   make(map[uuid.UUID]store.Order),
		payments: make(map[uuid.UUID]store.Payment),
	}
}

func (m *mockSettlementStore) GetOrder(_ context.Context, arg store.GetOrderParams) (store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.RestaurantID != arg.RestaurantID {
		return store.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockSettlementStore) SettleOrder(_ context.Context, arg store.SettleOrderParams) (store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.RestaurantID != arg.RestaurantID || enum.IsTerminalStatus(o.Status) {
		return store.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusDelivered
	o.PaymentMethod.String = arg.PaymentMethod
	o.PaymentMethod.Valid = true
	o.InvoiceKind = arg.InvoiceKind
	o.TotalAmount = arg.TotalAmount
	o.UpdatedAt = time.Now()
	m.orders[arg.ID] = o
	return o, nil
}

func (m *mockSettlementStore) CreatePayment(_ context.Context, arg store.CreatePaymentParams) (store.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := store.Payment{
		ID:            uuid.New(),
		OrderID:       arg.OrderID,
		PaymentMethod: arg.PaymentMethod,
		Amount:        arg.Amount,
		InvoiceKind:   arg.InvoiceKind,
		BillingEmail:  arg.BillingEmail,
		BillingName:   arg.BillingName,
		ProcessedBy:   arg.ProcessedBy,
		ProcessedAt:   time.Now(),
	}
	m.payments[p.ID] = p
	return p, nil
}

func (m *mockSettlementStore) GetPayment(_ context.Context, id uuid.UUID) (store.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return store.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockSettlementStore) SetPaymentTip(_ context.Context, arg store.SetPaymentTipParams) (store.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setPaymentTipErr != nil {
		return store.Payment{}, m.setPaymentTipErr
	}
	p, ok := m.payments[arg.ID]
	if !ok {
		return store.Payment{}, pgx.ErrNoRows
	}
	p.Tip = arg.Tip
	p.TipMode = arg.TipMode
	m.payments[arg.ID] = p
	return p, nil
}

func (m *mockSettlementStore) SetOrderTip(_ context.Context, arg store.SetOrderTipParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setOrderTipErr != nil {
		return m.setOrderTipErr
	}
	o, ok := m.orders[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Tip = arg.Tip
	m.orders[arg.ID] = o
	return nil
}

func newTestSettlementService(st *mockSettlementStore) *SettlementService {
	pool := &mockTxBeginner{tx: &mockTx{}}
	newStore := func(db store.DBTX) SettlementStore { return st }
	return NewSettlementService(pool, st, newStore)
}

func seedDeliveryOrder(st *mockSettlementStore, restaurantID uuid.UUID, subtotal, fee string) store.Order {
	o := store.Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		OrderNumber:  "BRS-001",
		Status:       enum.OrderStatusReady,
		OrderType:    enum.OrderTypeDelivery,
		Subtotal:     makeNumeric(subtotal),
		DeliveryFee:  makeNumeric(fee),
		InvoiceKind:  enum.InvoiceKindNone,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	st.orders[o.ID] = o
	return o
}

func seedDineInOrder(st *mockSettlementStore, restaurantID uuid.UUID, subtotal string) store.Order {
	o := store.Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		OrderNumber:  "BRS-002",
		Status:       enum.OrderStatusReady,
		OrderType:    enum.OrderTypeDineIn,
		Subtotal:     makeNumeric(subtotal),
		InvoiceKind:  enum.InvoiceKindNone,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	st.orders[o.ID] = o
	return o
}

// The worked end-to-end figures: subtotal 30000, fee 7000 for 5km against a
// 2km/4000/1000-per-km config, 10% tip 3000, cash settle totals 40000.
func TestSettle_DeliveryWithTip(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDeliveryOrder(st, restaurantID, "30000", "7000")
	svc := newTestSettlementService(st)

	result, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    uuid.New(),
		PaymentMethod: enum.PaymentMethodCash,
		Tip:           PercentTip(decimal.NewFromInt(10)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Tip.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("tip = %s, want 3000", result.Tip)
	}
	if !result.FinalTotal.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("final total = %s, want 40000", result.FinalTotal)
	}
	if result.Order.Status != enum.OrderStatusDelivered {
		t.Errorf("status = %s, want DELIVERED (settlement implies delivery)", result.Order.Status)
	}
	if !result.Order.PaymentMethod.Valid || result.Order.PaymentMethod.String != enum.PaymentMethodCash {
		t.Errorf("payment method = %+v, want CASH", result.Order.PaymentMethod)
	}
	if result.TipWarning != "" {
		t.Errorf("unexpected tip warning: %s", result.TipWarning)
	}
	if !result.Payment.TipMode.Valid || result.Payment.TipMode.String != enum.TipModePercentage {
		t.Errorf("payment tip mode = %+v, want PERCENTAGE", result.Payment.TipMode)
	}
	if !numericEquals(st.orders[order.ID].Tip, "3000") {
		t.Errorf("order tip = %s, want 3000", numericToDecimal(st.orders[order.ID].Tip))
	}
}

func TestSettle_DineInNoFee(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDineInOrder(st, restaurantID, "45000")
	svc := newTestSettlementService(st)

	result, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    uuid.New(),
		PaymentMethod: enum.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.FinalTotal.Equal(decimal.NewFromInt(45000)) {
		t.Errorf("final total = %s, want subtotal only 45000", result.FinalTotal)
	}
}

func TestSettle_Preconditions(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDineInOrder(st, restaurantID, "45000")
	svc := newTestSettlementService(st)
	operator := uuid.New()

	cases := []struct {
		name string
		req  SettleRequest
		want error
	}{
		{"anonymous operator", SettleRequest{RestaurantID: restaurantID, OrderID: order.ID, PaymentMethod: enum.PaymentMethodCash}, ErrNoOperator},
		{"bad payment method", SettleRequest{RestaurantID: restaurantID, OrderID: order.ID, OperatorID: operator, PaymentMethod: "CRYPTO"}, ErrInvalidPaymentMethod},
		{"bad invoice kind", SettleRequest{RestaurantID: restaurantID, OrderID: order.ID, OperatorID: operator, PaymentMethod: enum.PaymentMethodCash, InvoiceKind: "PROFORMA"}, ErrInvalidInvoiceKind},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.Settle(context.Background(), c.req); !errors.Is(err, c.want) {
				t.Errorf("err = %v, want %v", err, c.want)
			}
			// Preconditions must not mutate.
			if st.orders[order.ID].Status != enum.OrderStatusReady {
				t.Errorf("precondition failure mutated order to %s", st.orders[order.ID].Status)
			}
		})
	}
}

func TestSettle_InvoiceGating(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	svc := newTestSettlementService(st)
	operator := uuid.New()

	billing := BillingDetail{
		DocumentType:   "NIT",
		DocumentNumber: "900123456-7",
		Name:           "Inversiones El Fogon SAS",
		Email:          "", // missing
	}

	order := seedDineInOrder(st, restaurantID, "45000")
	_, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    operator,
		PaymentMethod: enum.PaymentMethodTransfer,
		InvoiceKind:   enum.InvoiceKindInvoice,
		Billing:       &billing,
	})
	if !errors.Is(err, ErrIncompleteInvoiceData) {
		t.Fatalf("missing email err = %v, want ErrIncompleteInvoiceData", err)
	}

	// The identical call with email populated succeeds. Phone and address
	// stay optional.
	billing.Email = "facturas@elfogon.co"
	result, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    operator,
		PaymentMethod: enum.PaymentMethodTransfer,
		InvoiceKind:   enum.InvoiceKindInvoice,
		Billing:       &billing,
	})
	if err != nil {
		t.Fatalf("complete billing should settle: %v", err)
	}
	if result.Payment.InvoiceKind != enum.InvoiceKindInvoice {
		t.Errorf("payment invoice kind = %s, want INVOICE", result.Payment.InvoiceKind)
	}
}

func TestSettle_MissingBillingRecord(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDineInOrder(st, restaurantID, "45000")
	svc := newTestSettlementService(st)

	_, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    uuid.New(),
		PaymentMethod: enum.PaymentMethodCash,
		InvoiceKind:   enum.InvoiceKindInvoice,
	})
	if !errors.Is(err, ErrIncompleteInvoiceData) {
		t.Fatalf("err = %v, want ErrIncompleteInvoiceData", err)
	}
}

func TestSettle_AlreadySettled(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDineInOrder(st, restaurantID, "45000")
	svc := newTestSettlementService(st)
	operator := uuid.New()

	req := SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    operator,
		PaymentMethod: enum.PaymentMethodCash,
	}
	if _, err := svc.Settle(context.Background(), req); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if _, err := svc.Settle(context.Background(), req); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second settle err = %v, want ErrAlreadySettled", err)
	}
}

func TestSettle_CancelledOrder(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDineInOrder(st, restaurantID, "45000")
	o := st.orders[order.ID]
	o.Status = enum.OrderStatusCancelled
	st.orders[order.ID] = o
	svc := newTestSettlementService(st)

	_, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    uuid.New(),
		PaymentMethod: enum.PaymentMethodCash,
	})
	if !errors.Is(err, ErrOrderCancelled) {
		t.Fatalf("err = %v, want ErrOrderCancelled", err)
	}
}

// At-most-one settlement under races: the conditional write decides, not
// the callers' earlier reads.
func TestSettle_ConcurrentAttempts(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDeliveryOrder(st, restaurantID, "30000", "7000")
	svc := newTestSettlementService(st)
	operator := uuid.New()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Settle(context.Background(), SettleRequest{
				RestaurantID:  restaurantID,
				OrderID:       order.ID,
				OperatorID:    operator,
				PaymentMethod: enum.PaymentMethodCash,
			})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadySettled):
			conflicts++
		default:
			t.Errorf("unexpected error kind: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}
	if len(st.payments) != 1 {
		t.Errorf("payment records = %d, want 1 (no double charge)", len(st.payments))
	}
}

// Tip registration is best-effort: its failure surfaces as a warning while
// the charge stands.
func TestSettle_TipFailureDoesNotUndoCharge(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDeliveryOrder(st, restaurantID, "30000", "7000")
	st.setPaymentTipErr = errors.New("payments table is having a moment")
	svc := newTestSettlementService(st)

	result, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    uuid.New(),
		PaymentMethod: enum.PaymentMethodCash,
		Tip:           FixedTip(decimal.NewFromInt(2000)),
	})
	if err != nil {
		t.Fatalf("charge must succeed despite tip failure: %v", err)
	}
	if result.TipWarning == "" {
		t.Error("expected a tip warning")
	}
	if st.orders[order.ID].Status != enum.OrderStatusDelivered {
		t.Errorf("charge rolled back: status = %s", st.orders[order.ID].Status)
	}
	// Final total still includes the tip the customer agreed to pay.
	if !result.FinalTotal.Equal(decimal.NewFromInt(39000)) {
		t.Errorf("final total = %s, want 39000", result.FinalTotal)
	}
}

func TestRegisterTip_LastSelectionWins(t *testing.T) {
	restaurantID := uuid.New()
	st := newMockSettlementStore()
	order := seedDineInOrder(st, restaurantID, "30000")
	svc := newTestSettlementService(st)

	result, err := svc.Settle(context.Background(), SettleRequest{
		RestaurantID:  restaurantID,
		OrderID:       order.ID,
		OperatorID:    uuid.New(),
		PaymentMethod: enum.PaymentMethodCash,
		Tip:           PercentTip(decimal.NewFromInt(20)),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !numericEquals(result.Payment.Tip, "6000") {
		t.Fatalf("initial tip = %s, want 6000", numericToDecimal(result.Payment.Tip))
	}

	// Re-register as fixed 5000: replaces the percentage entirely.
	updated, err := svc.RegisterTip(context.Background(), restaurantID, result.Payment.ID, FixedTip(decimal.NewFromInt(5000)))
	if err != nil {
		t.Fatalf("register tip: %v", err)
	}
	if !numericEquals(updated.Tip, "5000") {
		t.Errorf("tip = %s, want 5000, not a blend", numericToDecimal(updated.Tip))
	}
	if updated.TipMode.String != enum.TipModeFixed {
		t.Errorf("tip mode = %s, want FIXED", updated.TipMode.String)
	}
	if !numericEquals(st.orders[order.ID].Tip, "5000") {
		t.Errorf("order tip = %s, want 5000", numericToDecimal(st.orders[order.ID].Tip))
	}
}

func TestRegisterTip_UnknownPayment(t *testing.T) {
	st := newMockSettlementStore()
	svc := newTestSettlementService(st)

	_, err := svc.RegisterTip(context.Background(), uuid.New(), uuid.New(), FixedTip(decimal.NewFromInt(1000)))
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("err = %v, want ErrPaymentNotFound", err)
	}
}
