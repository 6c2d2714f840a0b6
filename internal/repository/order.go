package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID) ([]model.Order, error)
	ListAll(ctx context.Context) ([]model.Order, error)
	CountByProduct(ctx context.Context, productID uuid.UUID) (int, error)
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

// The product join is LEFT so orders of hard-deleted products still resolve,
// with a zero supplier.
const orderSelect = `SELECT o.id, o.buyer_id, o.product_id, o.quantity, o.total_price, o.status,
		o.order_date, o.updated_at, p.supplier_id
	FROM orders o LEFT JOIN products p ON p.id = o.product_id`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	var supplierID *uuid.UUID
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.ProductID, &o.Quantity, &o.TotalPrice, &o.Status,
		&o.OrderDate, &o.UpdatedAt, &supplierID,
	)
	if err != nil {
		return nil, err
	}
	if supplierID != nil {
		o.SupplierID = *supplierID
	}
	return o, nil
}

func (r *pgOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	order.ID = uuid.New()
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, buyer_id, product_id, quantity, total_price, status, order_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING order_date, updated_at`,
		order.ID, order.BuyerID, order.ProductID, order.Quantity, order.TotalPrice, order.Status,
	).Scan(&order.OrderDate, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetForUpdate locks only the order row; the product row stays free for
// concurrent checkouts.
func (r *pgOrderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return o, nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.buyer_id = $1 ORDER BY o.order_date DESC`, buyerID)
}

func (r *pgOrderRepo) ListBySupplier(ctx context.Context, supplierID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx, orderSelect+` WHERE p.supplier_id = $1 ORDER BY o.order_date DESC`, supplierID)
}

func (r *pgOrderRepo) ListAll(ctx context.Context) ([]model.Order, error) {
	return r.list(ctx, orderSelect+` ORDER BY o.order_date DESC`)
}

func (r *pgOrderRepo) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *pgOrderRepo) CountByProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE product_id = $1`, productID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}
