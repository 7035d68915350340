package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, type, tax_classes FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, type, tax_classes FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (name, price, type, tax_classes)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	upsertProductSQL = `INSERT INTO products (id, name, price, type, tax_classes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			type = EXCLUDED.type, tax_classes = EXCLUDED.tax_classes`

	// Explicit ids bypass the sequence; move it past them.
	syncProductSeqSQL = `SELECT setval(pg_get_serial_sequence('products', 'id'),
		GREATEST((SELECT COALESCE(MAX(id), 0) FROM products), 1))`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// Save inserts the product, or replaces it when p.ID is set.
func (r *ProductRepository) Save(ctx context.Context, p *product.Product) error {
	classes := p.TaxClasses
	if classes == nil {
		classes = []string{}
	}
	if p.ID == 0 {
		err := r.pool.QueryRow(ctx, insertProductSQL, p.Name, p.Price, string(p.Type), classes).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("inserting product %q: %w", p.Name, err)
		}
		return nil
	}
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, string(p.Type), classes); err != nil {
		return fmt.Errorf("saving product %d: %w", p.ID, err)
	}
	if _, err := r.pool.Exec(ctx, syncProductSeqSQL); err != nil {
		return fmt.Errorf("syncing product sequence: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
		typ   string
	)
	err := row.Scan(&p.ID, &p.Name, &price, &typ, &p.TaxClasses)
	p.Price = price
	p.Type = item.Type(typ)
	return p, err
}
