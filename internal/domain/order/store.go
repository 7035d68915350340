package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNumberTaken is returned by a Tx when the order number it was asked to
// store already belongs to another order.
var ErrNumberTaken = errors.New("order number already taken")

// Numberer allocates order numbers. Every number it returns is greater than
// all numbers allocated before it. Implementations backed by a plain
// MAX()+1 read are only safe with a single writer; under concurrency they
// rely on the unique constraint and on Save retrying ErrNumberTaken.
type Numberer interface {
	NextOrderNumber(ctx context.Context) (int64, error)
}

// Tx is the unit of work a save runs in. Nothing written through a Tx is
// visible to other readers until the surrounding Store.InTx returns nil.
type Tx interface {
	Numberer

	// LockHeader loads and locks the header of an existing order. It
	// returns a *fault.NotFoundError when the order does not exist.
	LockHeader(ctx context.Context, id int64) (Header, error)
	// CreateHeader inserts a header and returns the new identity.
	CreateHeader(ctx context.Context, h Header) (int64, error)
	// UpdateHeader writes only the columns set in p.
	UpdateHeader(ctx context.Context, id int64, p HeaderPatch) error
	// DeleteItemsExcept removes every item of the order whose identity is
	// not in keep. An empty keep removes all items.
	DeleteItemsExcept(ctx context.Context, orderID int64, keep []int64) error
	// UpsertItem updates the item in place when it has an identity and
	// inserts it otherwise. It returns the identity of the stored row.
	UpsertItem(ctx context.Context, orderID int64, it ItemRecord) (int64, error)
	// UpsertItemMeta makes the item's meta rows equal to meta. Existing
	// keys are replaced in place, missing keys are removed.
	UpsertItemMeta(ctx context.Context, itemID int64, meta map[string]string) error
	// UpsertOrderMeta replaces or inserts each field. Keys not in fields
	// are left alone.
	UpsertOrderMeta(ctx context.Context, orderID int64, fields map[string]string) error
	// AppendEvent queues an event for publication after commit.
	AppendEvent(ctx context.Context, e Event) error
}

// Filter selects orders for listing.
type Filter struct {
	// Statuses restricts the result; empty means any status.
	Statuses      []Status
	CreatedFrom   time.Time
	CreatedBefore time.Time
	Limit         int
}

// Store is the storage backend of the order service.
type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Load returns the stored order or a *fault.NotFoundError.
	Load(ctx context.Context, id int64) (*Record, error)
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]Record, error)
}

// EventType names an order event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is published to downstream consumers once the save that produced
// it has committed.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	OrderID        int64           `json:"order_id"`
	Number         int64           `json:"number"`
	Status         Status          `json:"status"`
	PreviousStatus Status          `json:"previous_status,omitempty"`
	Total          decimal.Decimal `json:"total"`
	At             time.Time       `json:"at"`
	// RequestID is the ID of the HTTP request that caused the save, if any.
	RequestID string `json:"request_id,omitempty"`
}

type requestIDKey struct{}

// WithRequestID returns ctx carrying the ID of the request that saves an
// order. Events recorded by that save carry the ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
