package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/order"
)

const (
	headerColumns = `id, number, title, status, customer_note, created_at`

	lockHeaderSQL = `SELECT ` + headerColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	getHeaderSQL = `SELECT ` + headerColumns + ` FROM orders WHERE id = $1`

	listHeadersSQL = `SELECT ` + headerColumns + ` FROM orders
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	createHeaderSQL = `INSERT INTO orders (number, title, status, customer_note, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	updateHeaderSQL = `UPDATE orders SET
		title = COALESCE($2, title),
		status = COALESCE($3, status),
		number = COALESCE($4, number)
		WHERE id = $1`

	deleteItemsExceptSQL = `DELETE FROM order_items WHERE order_id = $1 AND NOT (id = ANY($2))`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, product_type, title, price, tax, quantity, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	updateItemSQL = `UPDATE order_items SET
		product_id = $3, product_type = $4, title = $5, price = $6, tax = $7, quantity = $8, cost = $9
		WHERE id = $1 AND order_id = $2`

	listItemsSQL = `SELECT id, order_id, product_id, product_type, title, price, tax, quantity, cost
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	pruneItemMetaSQL = `DELETE FROM order_item_meta WHERE item_id = $1 AND NOT (meta_key = ANY($2))`

	upsertItemMetaSQL = `INSERT INTO order_item_meta (item_id, meta_key, meta_value) VALUES ($1, $2, $3)
		ON CONFLICT (item_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`

	listItemMetaSQL = `SELECT m.item_id, m.meta_key, m.meta_value
		FROM order_item_meta m JOIN order_items i ON i.id = m.item_id
		WHERE i.order_id = ANY($1)`

	upsertOrderMetaSQL = `INSERT INTO order_meta (order_id, meta_key, meta_value) VALUES ($1, $2, $3)
		ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`

	listOrderMetaSQL = `SELECT order_id, meta_key, meta_value FROM order_meta WHERE order_id = ANY($1)`

	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listNumbersSQL = `SELECT number FROM orders`

	hasNumberSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE number = $1)`

	ordersNumberKey = "orders_number_key"
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderStore implements order.Store backed by PostgreSQL. Order events are
// written to the outbox table in the same transaction as the order.
type OrderStore struct {
	pool      *pgxpool.Pool
	numbering Numbering
	topic     string
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool, numbering Numbering, topic string) *OrderStore {
	if numbering == "" {
		numbering = NumberingCounter
	}
	return &OrderStore{pool: pool, numbering: numbering, topic: topic}
}

// InTx runs fn in a read-committed transaction.
func (r *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx, numbering: r.numbering, topic: r.topic})
	})
}

// Load reads the order with all its items and fields from one snapshot.
func (r *OrderStore) Load(ctx context.Context, id int64) (*order.Record, error) {
	var rec order.Record
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getHeaderSQL, id)
		if err != nil {
			return fmt.Errorf("getting order %d: %w", id, err)
		}
		h, err := pgx.CollectExactlyOneRow(rows, scanHeader)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &fault.NotFoundError{Kind: "order", ID: strconv.FormatInt(id, 10)}
			}
			return fmt.Errorf("getting order %d: %w", id, err)
		}

		recs, err := loadChildren(ctx, tx, []order.Header{h})
		if err != nil {
			return err
		}
		rec = recs[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the orders matching f, newest first.
func (r *OrderStore) List(ctx context.Context, f order.Filter) ([]order.Record, error) {
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}

	var out []order.Record
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, listHeadersSQL,
			statuses, nullTime(f.CreatedFrom), nullTime(f.CreatedBefore), limit,
		)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		headers, err := pgx.CollectRows(rows, scanHeader)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		out, err = loadChildren(ctx, tx, headers)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Numbers streams every assigned order number to fn.
func (r *OrderStore) Numbers(ctx context.Context, fn func(number int64)) error {
	rows, err := r.pool.Query(ctx, listNumbersSQL)
	if err != nil {
		return fmt.Errorf("querying order numbers: %w", err)
	}
	var n int64
	_, err = pgx.ForEachRow(rows, []any{&n}, func() error {
		fn(n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning order numbers: %w", err)
	}
	return nil
}

// HasNumber reports whether an order with the given number exists.
func (r *OrderStore) HasNumber(ctx context.Context, number int64) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, hasNumberSQL, number).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking order number %d: %w", number, err)
	}
	return ok, nil
}

// loadChildren attaches items, item meta and order fields to headers,
// keeping the order of headers.
func loadChildren(ctx context.Context, tx pgx.Tx, headers []order.Header) ([]order.Record, error) {
	out := make([]order.Record, len(headers))
	if len(headers) == 0 {
		return out, nil
	}
	ids := make([]int64, len(headers))
	index := make(map[int64]int, len(headers))
	for i, h := range headers {
		ids[i] = h.ID
		index[h.ID] = i
		out[i] = order.Record{Header: h, Fields: make(map[string]string)}
	}

	itemMeta := make(map[int64]map[string]string)
	rows, err := tx.Query(ctx, listItemMetaSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order item meta: %w", err)
	}
	metas, err := pgx.CollectRows(rows, scanMetaRow)
	if err != nil {
		return nil, fmt.Errorf("listing order item meta: %w", err)
	}
	for _, m := range metas {
		if itemMeta[m.owner] == nil {
			itemMeta[m.owner] = make(map[string]string)
		}
		itemMeta[m.owner][m.key] = m.value
	}

	rows, err = tx.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	for _, it := range items {
		it.rec.Meta = itemMeta[it.rec.ID]
		i := index[it.orderID]
		out[i].Items = append(out[i].Items, it.rec)
	}

	rows, err = tx.Query(ctx, listOrderMetaSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order meta: %w", err)
	}
	fields, err := pgx.CollectRows(rows, scanMetaRow)
	if err != nil {
		return nil, fmt.Errorf("listing order meta: %w", err)
	}
	for _, m := range fields {
		out[index[m.owner]].Fields[m.key] = m.value
	}
	return out, nil
}

type orderTx struct {
	tx        pgx.Tx
	numbering Numbering
	topic     string
}

func (t *orderTx) NextOrderNumber(ctx context.Context) (int64, error) {
	return nextOrderNumber(ctx, t.tx, t.numbering)
}

func (t *orderTx) LockHeader(ctx context.Context, id int64) (order.Header, error) {
	rows, err := t.tx.Query(ctx, lockHeaderSQL, id)
	if err != nil {
		return order.Header{}, fmt.Errorf("locking order %d: %w", id, err)
	}
	h, err := pgx.CollectExactlyOneRow(rows, scanHeader)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Header{}, &fault.NotFoundError{Kind: "order", ID: strconv.FormatInt(id, 10)}
		}
		return order.Header{}, fmt.Errorf("locking order %d: %w", id, err)
	}
	return h, nil
}

func (t *orderTx) CreateHeader(ctx context.Context, h order.Header) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, createHeaderSQL,
		h.Number, h.Title, string(h.Status), h.CustomerNote, h.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, ordersNumberKey) {
			return 0, fmt.Errorf("creating order %d: %w", h.Number, order.ErrNumberTaken)
		}
		return 0, fmt.Errorf("creating order %d: %w", h.Number, err)
	}
	return id, nil
}

func (t *orderTx) UpdateHeader(ctx context.Context, id int64, p order.HeaderPatch) error {
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	_, err := t.tx.Exec(ctx, updateHeaderSQL, id, p.Title, status, p.Number)
	if err != nil {
		if isUniqueViolation(err, ordersNumberKey) {
			return fmt.Errorf("updating order %d: %w", id, order.ErrNumberTaken)
		}
		return fmt.Errorf("updating order %d: %w", id, err)
	}
	return nil
}

func (t *orderTx) DeleteItemsExcept(ctx context.Context, orderID int64, keep []int64) error {
	if keep == nil {
		keep = []int64{}
	}
	if _, err := t.tx.Exec(ctx, deleteItemsExceptSQL, orderID, keep); err != nil {
		return fmt.Errorf("deleting items of order %d: %w", orderID, err)
	}
	return nil
}

func (t *orderTx) UpsertItem(ctx context.Context, orderID int64, it order.ItemRecord) (int64, error) {
	var productID *int64
	if it.ProductID != 0 {
		productID = &it.ProductID
	}

	if it.ID == 0 {
		var id int64
		err := t.tx.QueryRow(ctx, insertItemSQL,
			orderID, productID, string(it.Type), it.Name, it.Price, it.Tax, it.Quantity, it.Cost,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("inserting item %q: %w", it.Name, err)
		}
		return id, nil
	}

	tag, err := t.tx.Exec(ctx, updateItemSQL,
		it.ID, orderID, productID, string(it.Type), it.Name, it.Price, it.Tax, it.Quantity, it.Cost,
	)
	if err != nil {
		return 0, fmt.Errorf("updating item %d: %w", it.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, &fault.NotFoundError{Kind: "order item", ID: strconv.FormatInt(it.ID, 10)}
	}
	return it.ID, nil
}

func (t *orderTx) UpsertItemMeta(ctx context.Context, itemID int64, meta map[string]string) error {
	keys := sortedKeys(meta)
	if _, err := t.tx.Exec(ctx, pruneItemMetaSQL, itemID, keys); err != nil {
		return fmt.Errorf("pruning meta of item %d: %w", itemID, err)
	}
	if err := t.upsertMeta(ctx, upsertItemMetaSQL, itemID, keys, meta); err != nil {
		return fmt.Errorf("writing meta of item %d: %w", itemID, err)
	}
	return nil
}

func (t *orderTx) UpsertOrderMeta(ctx context.Context, orderID int64, fields map[string]string) error {
	if err := t.upsertMeta(ctx, upsertOrderMetaSQL, orderID, sortedKeys(fields), fields); err != nil {
		return fmt.Errorf("writing meta of order %d: %w", orderID, err)
	}
	return nil
}

func (t *orderTx) upsertMeta(ctx context.Context, query string, owner int64, keys []string, values map[string]string) error {
	if len(keys) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, k := range keys {
		b.Queue(query, owner, k, values[k])
	}
	return t.tx.SendBatch(ctx, b).Close()
}

func (t *orderTx) AppendEvent(ctx context.Context, e order.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", e.ID, err)
	}
	_, err = t.tx.Exec(ctx, insertOutboxSQL,
		e.ID, t.topic, strconv.FormatInt(e.OrderID, 10), payload, e.At,
	)
	if err != nil {
		return fmt.Errorf("appending event %s: %w", e.ID, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanHeader(row pgx.CollectableRow) (order.Header, error) {
	var (
		h      order.Header
		status string
	)
	err := row.Scan(&h.ID, &h.Number, &h.Title, &status, &h.CustomerNote, &h.CreatedAt)
	h.Status = order.Status(status)
	return h, err
}

type itemRow struct {
	orderID int64
	rec     order.ItemRecord
}

func scanItem(row pgx.CollectableRow) (itemRow, error) {
	var (
		r         itemRow
		productID *int64
		typ       string
		price     decimal.Decimal
		tax       decimal.Decimal
		cost      decimal.Decimal
	)
	err := row.Scan(&r.rec.ID, &r.orderID, &productID, &typ, &r.rec.Name, &price, &tax, &r.rec.Quantity, &cost)
	if productID != nil {
		r.rec.ProductID = *productID
	}
	r.rec.Type = item.Type(typ)
	r.rec.Price = price
	r.rec.Tax = tax
	r.rec.Cost = cost
	return r, err
}

type metaRow struct {
	owner int64
	key   string
	value string
}

func scanMetaRow(row pgx.CollectableRow) (metaRow, error) {
	var m metaRow
	err := row.Scan(&m.owner, &m.key, &m.value)
	return m, err
}
