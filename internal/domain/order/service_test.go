package order

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

var errBoom = errors.New("boom")

type memItem struct {
	orderID int64
	rec     ItemRecord
}

type memState struct {
	nextOrder int64
	nextItem  int64
	headers   map[int64]Header
	items     []memItem
	fields    map[int64]map[string]string
	events    []Event
}

func (s *memState) clone() *memState {
	out := &memState{
		nextOrder: s.nextOrder,
		nextItem:  s.nextItem,
		headers:   make(map[int64]Header, len(s.headers)),
		items:     make([]memItem, len(s.items)),
		fields:    make(map[int64]map[string]string, len(s.fields)),
		events:    append([]Event(nil), s.events...),
	}
	for k, v := range s.headers {
		out.headers[k] = v
	}
	for i, it := range s.items {
		it.rec.Meta = copyMap(it.rec.Meta)
		out.items[i] = it
	}
	for k, v := range s.fields {
		out.fields[k] = copyMap(v)
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mockStore keeps orders in memory. Each InTx works on a copy of the state
// that replaces the committed state only when the callback succeeds.
type mockStore struct {
	mu    sync.Mutex
	state *memState

	failOn    string
	conflicts int
	calls     []string
}

func newMockStore() *mockStore {
	return &mockStore{state: &memState{
		headers: make(map[int64]Header),
		fields:  make(map[int64]map[string]string),
	}}
}

func (m *mockStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &mockTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *mockStore) Load(_ context.Context, id int64) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.state.headers[id]
	if !ok {
		return nil, &fault.NotFoundError{Kind: "order", ID: strconv.FormatInt(id, 10)}
	}
	rec := &Record{Header: h, Fields: copyMap(m.state.fields[id])}
	for _, it := range m.state.items {
		if it.orderID == id {
			r := it.rec
			r.Meta = copyMap(r.Meta)
			rec.Items = append(rec.Items, r)
		}
	}
	return rec, nil
}

func (m *mockStore) List(ctx context.Context, f Filter) ([]Record, error) {
	m.mu.Lock()
	var ids []int64
	for id, h := range m.state.headers {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, h.Status) {
			continue
		}
		if !f.CreatedFrom.IsZero() && h.CreatedAt.Before(f.CreatedFrom) {
			continue
		}
		if !f.CreatedBefore.IsZero() && !h.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := m.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (m *mockStore) events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.state.events...)
}

func (m *mockStore) itemCount(orderID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.state.items {
		if it.orderID == orderID {
			n++
		}
	}
	return n
}

type mockTx struct {
	store *mockStore
	state *memState
}

func (t *mockTx) call(op string) error {
	t.store.calls = append(t.store.calls, op)
	if t.store.failOn == op {
		return errBoom
	}
	return nil
}

func (t *mockTx) NextOrderNumber(context.Context) (int64, error) {
	if err := t.call("NextOrderNumber"); err != nil {
		return 0, err
	}
	var max int64
	for _, h := range t.state.headers {
		if h.Number > max {
			max = h.Number
		}
	}
	return max + 1, nil
}

func (t *mockTx) LockHeader(_ context.Context, id int64) (Header, error) {
	if err := t.call("LockHeader"); err != nil {
		return Header{}, err
	}
	h, ok := t.state.headers[id]
	if !ok {
		return Header{}, &fault.NotFoundError{Kind: "order", ID: strconv.FormatInt(id, 10)}
	}
	return h, nil
}

func (t *mockTx) CreateHeader(_ context.Context, h Header) (int64, error) {
	if err := t.call("CreateHeader"); err != nil {
		return 0, err
	}
	if t.store.conflicts > 0 {
		t.store.conflicts--
		return 0, ErrNumberTaken
	}
	for _, stored := range t.state.headers {
		if stored.Number == h.Number {
			return 0, ErrNumberTaken
		}
	}
	t.state.nextOrder++
	h.ID = t.state.nextOrder
	t.state.headers[h.ID] = h
	return h.ID, nil
}

func (t *mockTx) UpdateHeader(_ context.Context, id int64, p HeaderPatch) error {
	if err := t.call("UpdateHeader"); err != nil {
		return err
	}
	h := t.state.headers[id]
	if p.Title != nil {
		h.Title = *p.Title
	}
	if p.Status != nil {
		h.Status = *p.Status
	}
	if p.Number != nil {
		h.Number = *p.Number
	}
	t.state.headers[id] = h
	return nil
}

func (t *mockTx) DeleteItemsExcept(_ context.Context, orderID int64, keep []int64) error {
	if err := t.call("DeleteItemsExcept"); err != nil {
		return err
	}
	kept := t.state.items[:0]
	for _, it := range t.state.items {
		if it.orderID != orderID || slices.Contains(keep, it.rec.ID) {
			kept = append(kept, it)
		}
	}
	t.state.items = kept
	return nil
}

func (t *mockTx) UpsertItem(_ context.Context, orderID int64, rec ItemRecord) (int64, error) {
	if err := t.call("UpsertItem"); err != nil {
		return 0, err
	}
	if rec.ID != 0 {
		for i, it := range t.state.items {
			if it.orderID == orderID && it.rec.ID == rec.ID {
				rec.Meta = it.rec.Meta
				t.state.items[i].rec = rec
				return rec.ID, nil
			}
		}
		return 0, &fault.NotFoundError{Kind: "order item", ID: strconv.FormatInt(rec.ID, 10)}
	}
	t.state.nextItem++
	rec.ID = t.state.nextItem
	rec.Meta = nil
	t.state.items = append(t.state.items, memItem{orderID: orderID, rec: rec})
	return rec.ID, nil
}

func (t *mockTx) UpsertItemMeta(_ context.Context, itemID int64, meta map[string]string) error {
	if err := t.call("UpsertItemMeta"); err != nil {
		return err
	}
	for i, it := range t.state.items {
		if it.rec.ID == itemID {
			t.state.items[i].rec.Meta = copyMap(meta)
			return nil
		}
	}
	return &fault.NotFoundError{Kind: "order item", ID: strconv.FormatInt(itemID, 10)}
}

func (t *mockTx) UpsertOrderMeta(_ context.Context, orderID int64, fields map[string]string) error {
	if err := t.call("UpsertOrderMeta"); err != nil {
		return err
	}
	stored := t.state.fields[orderID]
	if stored == nil {
		stored = make(map[string]string)
		t.state.fields[orderID] = stored
	}
	for k, v := range fields {
		stored[k] = v
	}
	return nil
}

func (t *mockTx) AppendEvent(_ context.Context, e Event) error {
	if err := t.call("AppendEvent"); err != nil {
		return err
	}
	t.state.events = append(t.state.events, e)
	return nil
}

var fixedNow = time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s, err := NewService(store, opts...)
	require.NoError(t, err)
	return s
}

func newOrder() *Order {
	o := New()
	o.Items = []*item.Item{waffles(2), coffee()}
	o.Shipping = &shipping.Selection{MethodID: shipping.FlatRateID, Name: "Flat rate", Rate: dec("5.00")}
	o.PaymentMethod = "cod"
	return o
}

func TestService_Save_New(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	require.NoError(t, svc.Save(ctx, o))

	assert.NotZero(t, o.ID)
	assert.Equal(t, int64(1), o.Number)
	assert.NotEmpty(t, o.Key)
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.Equal(t, fixedNow, o.UpdatedAt)
	for _, it := range o.Items {
		assert.NotZero(t, it.ID)
	}

	got, err := svc.Find(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Order #1", got.Title())
	assert.Equal(t, o.Key, got.Key)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "cod", got.PaymentMethod)
	require.Len(t, got.Items, 2)
	assert.Equal(t, o.Items[0].ID, got.Items[0].ID)
	assert.Equal(t, "Waffle", got.Items[0].Name)
	assert.True(t, got.Items[0].Taxes["standard"].Equal(dec("1.00")))
	assert.Equal(t, "large", got.Items[1].Meta["size"])
	assert.True(t, got.Total().Equal(dec("29.50")))

	events := store.events()
	require.Len(t, events, 1)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, o.ID, events[0].OrderID)
	assert.True(t, events[0].Total.Equal(dec("29.50")))
}

func TestService_Save_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	require.NoError(t, svc.Save(ctx, o))
	ids := []int64{o.Items[0].ID, o.Items[1].ID}
	first, err := store.Load(ctx, o.ID)
	require.NoError(t, err)

	store.calls = nil
	require.NoError(t, svc.Save(ctx, o))
	second, err := store.Load(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, ids, []int64{o.Items[0].ID, o.Items[1].ID})
	assert.Len(t, store.events(), 1)
	assert.NotContains(t, store.calls, "UpdateHeader")
	assert.NotContains(t, store.calls, "NextOrderNumber")
}

func TestService_Save_RemovesItems(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	require.NoError(t, svc.Save(ctx, o))
	coffeeID := o.Items[1].ID

	require.NoError(t, o.UpdateQuantity(o.Items[0].ID, 0))
	require.NoError(t, svc.Save(ctx, o))

	got, err := svc.Find(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, coffeeID, got.Items[0].ID)

	o.Items = nil
	require.NoError(t, svc.Save(ctx, o))
	assert.Zero(t, store.itemCount(o.ID))
}

func TestService_Save_ItemMetaPruned(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	require.NoError(t, svc.Save(ctx, o))

	delete(o.Items[1].Meta, "size")
	require.NoError(t, o.Items[1].SetMeta("milk", "oat"))
	require.NoError(t, svc.Save(ctx, o))

	got, err := svc.Find(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"milk": "oat"}, got.Items[1].Meta)
}

func TestService_Save_Numbering(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	var orders []*Order
	for range 3 {
		o := newOrder()
		require.NoError(t, svc.Save(ctx, o))
		orders = append(orders, o)
	}
	for i, o := range orders {
		assert.Equal(t, int64(i+1), o.Number)
	}

	// A stored number is never reassigned.
	o := orders[0]
	o.Number = 42
	require.NoError(t, svc.Save(ctx, o))
	assert.Equal(t, int64(1), o.Number)

	got, err := svc.Find(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Number)
}

func TestService_Save_NumberConflict(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantErr   bool
	}{
		{name: "Retried", conflicts: 2},
		{name: "Exhausted", conflicts: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newMockStore()
			store.conflicts = tt.conflicts
			svc := newService(t, store, WithNumberAttempts(3))

			o := newOrder()
			err := svc.Save(ctx, o)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, int64(1), o.Number)
				return
			}
			require.Error(t, err)
			assert.True(t, fault.IsPersistence(err))
			assert.ErrorIs(t, err, ErrNumberTaken)
			assert.Zero(t, o.ID)
			assert.Zero(t, o.Number)
		})
	}
}

func TestService_Save_Rollback(t *testing.T) {
	for _, op := range []string{
		"NextOrderNumber",
		"CreateHeader",
		"UpsertItem",
		"UpsertItemMeta",
		"UpsertOrderMeta",
		"AppendEvent",
	} {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			store := newMockStore()
			store.failOn = op
			svc := newService(t, store)

			o := newOrder()
			err := svc.Save(ctx, o)
			require.Error(t, err)
			assert.True(t, fault.IsPersistence(err))
			assert.ErrorIs(t, err, errBoom)

			assert.Zero(t, o.ID)
			assert.Zero(t, o.Number)
			assert.Empty(t, o.Key)
			for _, it := range o.Items {
				assert.Zero(t, it.ID)
			}
			recs, err := store.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Empty(t, recs)
			assert.Empty(t, store.events())
		})
	}
}

func TestService_Save_RollbackExisting(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	require.NoError(t, svc.Save(ctx, o))
	before, err := store.Load(ctx, o.ID)
	require.NoError(t, err)

	store.failOn = "UpsertOrderMeta"
	o.Items = o.Items[:1]
	require.NoError(t, o.SetStatus(StatusProcessing))
	require.Error(t, svc.Save(ctx, o))

	after, err := store.Load(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_Save_StatusChange(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-7")
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	require.NoError(t, svc.Save(ctx, o))
	require.NoError(t, o.SetStatus(StatusCompleted))
	require.NoError(t, svc.Save(ctx, o))

	assert.Equal(t, fixedNow, o.CompletedAt)

	events := store.events()
	require.Len(t, events, 2)
	assert.Equal(t, EventStatusChanged, events[1].Type)
	assert.Equal(t, StatusCompleted, events[1].Status)
	assert.Equal(t, StatusPending, events[1].PreviousStatus)
	assert.Equal(t, "req-7", events[1].RequestID)

	got, err := svc.Find(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.True(t, got.CompletedAt.Equal(fixedNow))
}

func TestService_Save_Invalid(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	o.Items[0].Quantity = 0
	err := svc.Save(ctx, o)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
	assert.Empty(t, store.calls)
}

func TestService_Save_UnknownOrder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMockStore())

	o := newOrder()
	o.ID = 77
	err := svc.Save(ctx, o)
	require.Error(t, err)
	assert.True(t, fault.IsPersistence(err))
	assert.True(t, fault.IsNotFound(err))
}

func TestService_Save_EscapesFields(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newService(t, store)

	o := newOrder()
	o.PaymentMethod = "co\x00d\xff"
	require.NoError(t, svc.Save(ctx, o))

	rec, err := store.Load(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "cod�", rec.Fields[FieldPayment])
}

func TestService_Find(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMockStore())

	_, err := svc.Find(ctx, 404)
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
	assert.False(t, fault.IsPersistence(err))
}

func TestService_Queries(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()

	seed := []struct {
		created time.Time
		status  Status
	}{
		{created: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), status: StatusPending},
		{created: time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), status: StatusCancelled},
		{created: time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), status: StatusRefunded},
		{created: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), status: StatusProcessing},
		{created: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), status: StatusPending},
		{created: time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), status: StatusCompleted},
	}
	ids := make([]int64, len(seed))
	for i, s := range seed {
		svc := newService(t, store)
		o := newOrder()
		o.Status = s.status
		o.CreatedAt = s.created
		require.NoError(t, svc.Save(ctx, o))
		ids[i] = o.ID
	}
	svc := newService(t, store)

	got, err := svc.FindFromMonth(ctx, time.May)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[0], got[0].ID)

	pending, err := svc.FindOldPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[4], pending[0].ID)

	processing, err := svc.FindOldProcessing(ctx)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, ids[3], processing[0].ID)

	all, err := svc.FindByQuery(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, len(seed))
	assert.Equal(t, ids[len(ids)-1], all[0].ID)
}
