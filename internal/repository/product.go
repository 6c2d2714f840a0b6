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

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error)
	ListActive(ctx context.Context) ([]model.Product, error)
	ListDeleted(ctx context.Context, supplierID uuid.UUID) ([]model.Product, error)
	Update(ctx context.Context, tx pgx.Tx, product *model.Product) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, id uuid.UUID) (bool, error)
	HardDelete(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) (bool, error)
	IncrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) (bool, error)
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

const productColumns = `id, supplier_id, name, description, price, quantity, image_path, created_at, deleted_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(
		&p.ID, &p.SupplierID, &p.Name, &p.Description, &p.Price,
		&p.Quantity, &p.ImagePath, &p.CreatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, supplier_id, name, description, price, quantity, image_path, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.SupplierID, product.Name, product.Description,
		product.Price, product.Quantity, product.ImagePath,
	).Scan(&product.CreatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetByID resolves soft-deleted products too; callers decide visibility.
func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetForUpdate locks the product row until tx ends.
func (r *pgProductRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) ListActive(ctx context.Context) ([]model.Product, error) {
	return r.list(ctx,
		`SELECT `+productColumns+` FROM products WHERE deleted_at IS NULL ORDER BY created_at DESC`)
}

// ListDeleted returns soft-deleted products; uuid.Nil lists every supplier's.
func (r *pgProductRepo) ListDeleted(ctx context.Context, supplierID uuid.UUID) ([]model.Product, error) {
	if supplierID == uuid.Nil {
		return r.list(ctx,
			`SELECT `+productColumns+` FROM products WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC`)
	}
	return r.list(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE supplier_id = $1 AND deleted_at IS NOT NULL ORDER BY deleted_at DESC`, supplierID)
}

func (r *pgProductRepo) list(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *pgProductRepo) Update(ctx context.Context, tx pgx.Tx, product *model.Product) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET name=$2, description=$3, price=$4, quantity=$5, image_path=$6 WHERE id=$1`,
		product.ID, product.Name, product.Description, product.Price, product.Quantity, product.ImagePath,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET deleted_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("soft delete product: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgProductRepo) Restore(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("restore product: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgProductRepo) HardDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// DecrementStock is a single guarded statement; false means the row was not
// changed because it is missing, soft-deleted or short on stock.
func (r *pgProductRepo) DecrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) (bool, error) {
	ct, err := tx.Exec(ctx,
		`UPDATE products SET quantity = quantity - $2
		 WHERE id = $1 AND deleted_at IS NULL AND quantity >= $2`,
		productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *pgProductRepo) IncrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) (bool, error) {
	ct, err := tx.Exec(ctx,
		`UPDATE products SET quantity = quantity + $2 WHERE id = $1`,
		productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("increment stock: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
