package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, payment_method, amount, invoice_kind,
	tip, tip_mode,
	billing_document_type, billing_document_number, billing_name,
	billing_email, billing_phone, billing_address,
	processed_by, processed_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.PaymentMethod, &p.Amount, &p.InvoiceKind,
		&p.Tip, &p.TipMode,
		&p.BillingDocumentType, &p.BillingDocumentNumber, &p.BillingName,
		&p.BillingEmail, &p.BillingPhone, &p.BillingAddress,
		&p.ProcessedBy, &p.ProcessedAt,
	)
	return p, err
}

type CreatePaymentParams struct {
	OrderID       uuid.UUID
	PaymentMethod string
	Amount        pgtype.Numeric
	InvoiceKind   string

	BillingDocumentType   pgtype.Text
	BillingDocumentNumber pgtype.Text
	BillingName           pgtype.Text
	BillingEmail          pgtype.Text
	BillingPhone          pgtype.Text
	BillingAddress        pgtype.Text

	ProcessedBy uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO payments (
			order_id, payment_method, amount, invoice_kind,
			billing_document_type, billing_document_number, billing_name,
			billing_email, billing_phone, billing_address, processed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+paymentColumns,
		arg.OrderID, arg.PaymentMethod, arg.Amount, arg.InvoiceKind,
		arg.BillingDocumentType, arg.BillingDocumentNumber, arg.BillingName,
		arg.BillingEmail, arg.BillingPhone, arg.BillingAddress, arg.ProcessedBy,
	)
	return scanPayment(row)
}

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	return scanPayment(row)
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY processed_at`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type SetPaymentTipParams struct {
	ID      uuid.UUID
	Tip     pgtype.Numeric
	TipMode pgtype.Text
}

// SetPaymentTip registers the tip against an existing settlement record.
// The last registration wins; a prior mode is overwritten, never blended.
func (q *Queries) SetPaymentTip(ctx context.Context, arg SetPaymentTipParams) (Payment, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE payments
		SET tip = $2, tip_mode = $3
		WHERE id = $1
		RETURNING `+paymentColumns,
		arg.ID, arg.Tip, arg.TipMode,
	)
	return scanPayment(row)
}
