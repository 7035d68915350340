package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/payment"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

const (
	defaultNumberAttempts = 3
	defaultStaleAfter     = 30 * 24 * time.Hour
)

// PaymentMethods resolves payment methods chosen at checkout.
type PaymentMethods interface {
	Get(id string) (payment.Method, error)
}

// ShippingMethods resolves shipping methods captured on carts.
type ShippingMethods interface {
	Get(id string) (shipping.Method, error)
}

// Service creates, saves and queries orders.
type Service struct {
	store           Store
	now             func() time.Time
	attempts        int
	staleAfter      time.Duration
	requireShipping bool
	payments        PaymentMethods
	shipping        ShippingMethods

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	saves          metric.Int64Counter
	conflicts      metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNumberAttempts sets how many times a first save is attempted when
// the allocated number turns out to be taken.
func WithNumberAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithStaleAfter sets the age after which pending and processing orders
// are reported as old.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithShippingRequired makes CreateFromCart reject carts without a
// resolvable shipping method.
func WithShippingRequired(required bool) Option {
	return func(s *Service) { s.requireShipping = required }
}

// WithPaymentMethods sets the registry payment choices are resolved against.
func WithPaymentMethods(p PaymentMethods) Option {
	return func(s *Service) { s.payments = p }
}

// WithShippingMethods sets the registry cart shipping selections are
// checked against.
func WithShippingMethods(m ShippingMethods) Option {
	return func(s *Service) { s.shipping = m }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// NewService creates an order Service on top of store.
func NewService(store Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:          store,
		now:            time.Now,
		attempts:       defaultNumberAttempts,
		staleAfter:     defaultStaleAfter,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	const scope = "github.com/xenking/kart-orders/internal/domain/order"
	s.tracer = s.tracerProvider.Tracer(scope)
	meter := s.meterProvider.Meter(scope)

	var err error
	if s.saves, err = meter.Int64Counter("kart.order.saves",
		metric.WithDescription("Order saves by result"),
	); err != nil {
		return nil, errors.Wrap(err, "create saves counter")
	}
	if s.conflicts, err = meter.Int64Counter("kart.order.number_conflicts",
		metric.WithDescription("First saves retried because the order number was taken"),
	); err != nil {
		return nil, errors.Wrap(err, "create conflicts counter")
	}
	return s, nil
}

// Save persists o in a single transaction: header, number, items, item
// meta and order fields commit together or not at all. On success o
// carries its identity, number and item identities; on failure o is
// unchanged. Storage failures are reported as *fault.PersistenceError.
func (s *Service) Save(ctx context.Context, o *Order) error {
	ctx, span := s.tracer.Start(ctx, "order.Save",
		trace.WithAttributes(attribute.Int64("order.id", o.ID)),
	)
	defer span.End()

	err := s.save(ctx, o)

	result := "ok"
	if err != nil {
		result = "error"
		if fault.IsValidation(err) {
			result = "invalid"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int64("order.id", o.ID),
			attribute.Int64("order.number", o.Number),
		)
	}
	s.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return err
}

func (s *Service) save(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	now := s.now()

	for attempt := 1; ; attempt++ {
		w := o.Clone()
		assigned, err := s.saveOnce(ctx, w, now)
		if err == nil {
			apply(o, w)
			return nil
		}
		if assigned && errors.Is(err, ErrNumberTaken) && attempt < s.attempts {
			s.conflicts.Add(ctx, 1)
			continue
		}
		return &fault.PersistenceError{Op: "save order", Err: err}
	}
}

// saveOnce runs one save attempt against w, a scratch copy of the order.
// It reports whether a fresh number was allocated.
func (s *Service) saveOnce(ctx context.Context, w *Order, now time.Time) (bool, error) {
	w.UpdatedAt = now
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if w.Status == StatusCompleted && w.CompletedAt.IsZero() {
		w.CompletedAt = now
	}
	if w.Key == "" {
		w.Key = uuid.NewString()
	}

	var assigned bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var stored *Header
		if !w.IsNew() {
			h, err := tx.LockHeader(ctx, w.ID)
			if err != nil {
				return errors.Wrap(err, "lock header")
			}
			stored = &h
			if h.Number != 0 {
				w.Number = h.Number
			}
			if !h.CreatedAt.IsZero() {
				w.CreatedAt = h.CreatedAt
			}
		}

		if w.Number == 0 {
			n, err := tx.NextOrderNumber(ctx)
			if err != nil {
				return errors.Wrap(err, "next order number")
			}
			w.Number = n
			assigned = true
		}

		state, err := w.StateToSave()
		if err != nil {
			return err
		}

		var events []Event
		if stored == nil {
			id, err := tx.CreateHeader(ctx, state.Header)
			if err != nil {
				return errors.Wrap(err, "create header")
			}
			w.ID = id
			events = append(events, s.event(ctx, EventCreated, w, "", now))
		} else {
			patch := diffHeader(*stored, state.Header)
			if !patch.IsEmpty() {
				if err := tx.UpdateHeader(ctx, w.ID, patch); err != nil {
					return errors.Wrap(err, "update header")
				}
			}
			if patch.Status != nil {
				events = append(events, s.event(ctx, EventStatusChanged, w, stored.Status, now))
			}
		}

		if err := reconcileItems(ctx, tx, w); err != nil {
			return err
		}
		if err := tx.UpsertOrderMeta(ctx, w.ID, escapeAll(state.Fields)); err != nil {
			return errors.Wrap(err, "upsert order meta")
		}
		for _, e := range events {
			if err := tx.AppendEvent(ctx, e); err != nil {
				return errors.Wrap(err, "append event")
			}
		}
		return nil
	})
	return assigned, err
}

// reconcileItems makes the stored items of w equal to w.Items, matching by
// identity. New items get their identity written back onto w.
func reconcileItems(ctx context.Context, tx Tx, w *Order) error {
	keep := make([]int64, 0, len(w.Items))
	for _, it := range w.Items {
		if it.ID != 0 {
			keep = append(keep, it.ID)
		}
	}
	if err := tx.DeleteItemsExcept(ctx, w.ID, keep); err != nil {
		return errors.Wrap(err, "delete removed items")
	}

	for _, it := range w.Items {
		id, err := tx.UpsertItem(ctx, w.ID, itemRecord(it))
		if err != nil {
			return errors.Wrapf(err, "upsert item %q", it.Name)
		}
		it.ID = id
		if err := tx.UpsertItemMeta(ctx, id, escapeAll(it.MetaRows())); err != nil {
			return errors.Wrapf(err, "upsert meta of item %d", id)
		}
	}
	return nil
}

func (s *Service) event(ctx context.Context, typ EventType, w *Order, prev Status, now time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		OrderID:        w.ID,
		Number:         w.Number,
		Status:         w.Status,
		PreviousStatus: prev,
		Total:          w.Total(),
		At:             now,
		RequestID:      requestIDFrom(ctx),
	}
}

// apply copies what a committed save assigned from w back onto o.
func apply(o, w *Order) {
	o.ID = w.ID
	o.Number = w.Number
	o.Key = w.Key
	o.CreatedAt = w.CreatedAt
	o.UpdatedAt = w.UpdatedAt
	o.CompletedAt = w.CompletedAt
	for i, it := range o.Items {
		it.ID = w.Items[i].ID
	}
}

// escape makes a value storable as PostgreSQL text.
func escape(v string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(v, "\x00", ""), "�")
}

func escapeAll(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[escape(k)] = escape(v)
	}
	return out
}

// Find returns the order with the given id.
func (s *Service) Find(ctx context.Context, id int64) (*Order, error) {
	rec, err := s.store.Load(ctx, id)
	if err != nil {
		if fault.IsNotFound(err) {
			return nil, err
		}
		return nil, &fault.PersistenceError{Op: "load order", Err: err}
	}
	o, err := Restore(*rec)
	if err != nil {
		return nil, &fault.PersistenceError{Op: "decode order", Err: err}
	}
	return o, nil
}

// FindByQuery lists orders matching f.
func (s *Service) FindByQuery(ctx context.Context, f Filter) ([]*Order, error) {
	recs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, &fault.PersistenceError{Op: "list orders", Err: err}
	}
	out := make([]*Order, 0, len(recs))
	for _, rec := range recs {
		o, err := Restore(rec)
		if err != nil {
			return nil, &fault.PersistenceError{Op: "decode order", Err: err}
		}
		out = append(out, o)
	}
	return out, nil
}

// FindFromMonth lists the orders created in month of the current year,
// leaving out cancelled and refunded ones.
func (s *Service) FindFromMonth(ctx context.Context, month time.Month) ([]*Order, error) {
	now := s.now()
	from := time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())

	statuses := make([]Status, 0, len(Statuses))
	for _, st := range Statuses {
		if st != StatusCancelled && st != StatusRefunded {
			statuses = append(statuses, st)
		}
	}
	return s.FindByQuery(ctx, Filter{
		Statuses:      statuses,
		CreatedFrom:   from,
		CreatedBefore: from.AddDate(0, 1, 0),
	})
}

// FindOldPending lists pending orders older than the stale age.
func (s *Service) FindOldPending(ctx context.Context) ([]*Order, error) {
	return s.findOld(ctx, StatusPending)
}

// FindOldProcessing lists processing orders older than the stale age.
func (s *Service) FindOldProcessing(ctx context.Context) ([]*Order, error) {
	return s.findOld(ctx, StatusProcessing)
}

func (s *Service) findOld(ctx context.Context, st Status) ([]*Order, error) {
	return s.FindByQuery(ctx, Filter{
		Statuses:      []Status{st},
		CreatedBefore: s.now().Add(-s.staleAfter),
	})
}
