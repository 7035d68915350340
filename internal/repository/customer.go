package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
)

const (
	customerColumns = `id, login, email, name, billing, shipping`

	getCustomerSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	listCustomersSQL = `SELECT ` + customerColumns + ` FROM customers ORDER BY id`

	insertCustomerSQL = `INSERT INTO customers (login, email, name, billing, shipping)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	updateCustomerSQL = `UPDATE customers SET login = $2, email = $3, name = $4, billing = $5, shipping = $6
		WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
// Addresses are stored as JSONB documents.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Find returns the customer with the given id.
func (r *CustomerRepository) Find(ctx context.Context, id int64) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &fault.NotFoundError{Kind: "customer", ID: strconv.FormatInt(id, 10)}
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	return &c, nil
}

// List returns all registered customers ordered by ID.
func (r *CustomerRepository) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, listCustomersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// Save inserts the customer, or updates it when c.ID is set.
func (r *CustomerRepository) Save(ctx context.Context, c *customer.Customer) error {
	billing, err := json.Marshal(c.Billing)
	if err != nil {
		return fmt.Errorf("encoding billing address: %w", err)
	}
	shipping, err := json.Marshal(c.Shipping)
	if err != nil {
		return fmt.Errorf("encoding shipping address: %w", err)
	}

	if c.ID == customer.GuestID {
		err := r.pool.QueryRow(ctx, insertCustomerSQL, c.Login, c.Email, c.Name, billing, shipping).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("inserting customer %q: %w", c.Login, err)
		}
		return nil
	}
	tag, err := r.pool.Exec(ctx, updateCustomerSQL, c.ID, c.Login, c.Email, c.Name, billing, shipping)
	if err != nil {
		return fmt.Errorf("updating customer %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &fault.NotFoundError{Kind: "customer", ID: strconv.FormatInt(c.ID, 10)}
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c                 customer.Customer
		billing, shipping []byte
	)
	if err := row.Scan(&c.ID, &c.Login, &c.Email, &c.Name, &billing, &shipping); err != nil {
		return c, err
	}
	if err := json.Unmarshal(billing, &c.Billing); err != nil {
		return c, fmt.Errorf("decoding billing address of customer %d: %w", c.ID, err)
	}
	if err := json.Unmarshal(shipping, &c.Shipping); err != nil {
		return c, fmt.Errorf("decoding shipping address of customer %d: %w", c.ID, err)
	}
	return c, nil
}
