package order

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"veil/internal/fulfillment/models"
	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
)

//go:embed schema.sql
var schema string

// PostgresStore persists domain orders in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed order store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the orders table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure orders schema: %w", err)
	}
	return nil
}

const orderColumns = `id, domain_name, tld, price_eur, currency, amount_crypto, years,
	payment_status, order_status,
	njalla_payment_id, njalla_payment_address, njalla_payment_amount,
	njalla_payment_tx_hash, njalla_payment_confirmed, njalla_task_id,
	unsupported_tld, created_at, paid_at, delivered_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, order *models.DomainOrder) error {
	if order == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "order is required")
	}
	query := `
		INSERT INTO domain_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(order.ID),
		order.DomainName,
		order.TLD,
		order.PriceEUR.String(),
		order.Currency,
		order.AmountCrypto.String(),
		order.Years,
		string(order.PaymentStatus),
		string(order.OrderStatus),
		nullPaymentID(order.NjallaPaymentID),
		nullString(order.NjallaPaymentAddress),
		nullAmount(order.NjallaPaymentAmount),
		nullTxHash(order.NjallaPaymentTxHash),
		order.NjallaPaymentConfirmed,
		nullTaskID(order.NjallaTaskID),
		order.UnsupportedTLD,
		order.CreatedAt,
		nullTime(order.PaidAt),
		nullTime(order.DeliveredAt),
		nullTime(order.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID id.OrderID) (*models.DomainOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM domain_orders WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(orderID))
	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) PaidUndelivered(ctx context.Context) ([]*models.DomainOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM domain_orders
		WHERE payment_status = 'paid' AND delivered_at IS NULL
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list paid undelivered orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.DomainOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// Patch applies a sparse field-level update: only the provided fields appear
// in the UPDATE so concurrent writers never clobber unrelated columns.
func (s *PostgresStore) Patch(ctx context.Context, orderID id.OrderID, patch models.OrderPatch) error {
	if patch.IsZero() {
		return nil
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.ClearPayment {
		sets = append(sets,
			"njalla_payment_id = NULL",
			"njalla_payment_address = NULL",
			"njalla_payment_amount = NULL",
		)
	}
	if patch.PaymentStatus != nil {
		set("payment_status", string(*patch.PaymentStatus))
	}
	if patch.OrderStatus != nil {
		set("order_status", string(*patch.OrderStatus))
	}
	if patch.NjallaPaymentID != nil {
		set("njalla_payment_id", patch.NjallaPaymentID.String())
	}
	if patch.NjallaPaymentAddress != nil {
		set("njalla_payment_address", *patch.NjallaPaymentAddress)
	}
	if patch.NjallaPaymentAmount != nil {
		set("njalla_payment_amount", patch.NjallaPaymentAmount.String())
	}
	if patch.NjallaPaymentTxHash != nil {
		set("njalla_payment_tx_hash", patch.NjallaPaymentTxHash.String())
	}
	if patch.NjallaPaymentConfirmed != nil {
		set("njalla_payment_confirmed", *patch.NjallaPaymentConfirmed)
	}
	if patch.NjallaTaskID != nil {
		set("njalla_task_id", patch.NjallaTaskID.String())
	}
	if patch.DeliveredAt != nil {
		set("delivered_at", *patch.DeliveredAt)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, uuid.UUID(orderID))
	query := fmt.Sprintf("UPDATE domain_orders SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patch order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("patch order rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.DomainOrder, error) {
	var (
		order        models.DomainOrder
		rawID        uuid.UUID
		priceEUR     string
		amountCrypto string
		paymentID    sql.NullString
		address      sql.NullString
		amount       sql.NullString
		txHash       sql.NullString
		taskID       sql.NullString
		paidAt       sql.NullTime
		deliveredAt  sql.NullTime
		expiresAt    sql.NullTime
	)
	err := row.Scan(
		&rawID,
		&order.DomainName,
		&order.TLD,
		&priceEUR,
		&order.Currency,
		&amountCrypto,
		&order.Years,
		&order.PaymentStatus,
		&order.OrderStatus,
		&paymentID,
		&address,
		&amount,
		&txHash,
		&order.NjallaPaymentConfirmed,
		&taskID,
		&order.UnsupportedTLD,
		&order.CreatedAt,
		&paidAt,
		&deliveredAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	order.ID = id.OrderID(rawID)
	if order.PriceEUR, err = decimal.NewFromString(priceEUR); err != nil {
		return nil, fmt.Errorf("parse price_eur: %w", err)
	}
	if order.AmountCrypto, err = decimal.NewFromString(amountCrypto); err != nil {
		return nil, fmt.Errorf("parse amount_crypto: %w", err)
	}
	if paymentID.Valid {
		v := id.PaymentID(paymentID.String)
		order.NjallaPaymentID = &v
	}
	if address.Valid {
		order.NjallaPaymentAddress = &address.String
	}
	if amount.Valid {
		parsed, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("parse njalla_payment_amount: %w", err)
		}
		order.NjallaPaymentAmount = &parsed
	}
	if txHash.Valid {
		v := id.TxHash(txHash.String)
		order.NjallaPaymentTxHash = &v
	}
	if taskID.Valid {
		v := id.TaskID(taskID.String)
		order.NjallaTaskID = &v
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	if expiresAt.Valid {
		order.ExpiresAt = &expiresAt.Time
	}
	return &order, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullPaymentID(p *id.PaymentID) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func nullTxHash(p *id.TxHash) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func nullTaskID(p *id.TaskID) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func nullAmount(p *decimal.Decimal) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
