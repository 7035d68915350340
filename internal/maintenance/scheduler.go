// Package maintenance runs periodic order housekeeping.
package maintenance

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// DefaultSchedule runs the sweep once an hour.
const DefaultSchedule = "@every 1h"

// Orders is the part of the order service the sweep needs.
type Orders interface {
	FindOldPending(ctx context.Context) ([]*order.Order, error)
	FindOldProcessing(ctx context.Context) ([]*order.Order, error)
	Save(ctx context.Context, o *order.Order) error
}

// Result counts the orders a sweep moved.
type Result struct {
	OnHold    int
	Completed int
	Failed    int
}

// Scheduler puts stale pending orders on hold and completes stale
// processing orders.
type Scheduler struct {
	orders  Orders
	lg      *zap.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler creates a Scheduler running on the given cron schedule.
func NewScheduler(orders Orders, lg *zap.Logger, schedule string, timeout time.Duration) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	s := &Scheduler{
		orders:  orders,
		lg:      lg,
		cron:    cron.New(),
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, errors.Wrapf(err, "schedule %q", schedule)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.Sweep(ctx)
	if err != nil {
		s.lg.Error("Order sweep failed", zap.Error(err))
		return
	}
	s.lg.Info("Order sweep done",
		zap.Int("on_hold", res.OnHold),
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
	)
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.lg.Info("Maintenance scheduler started")

	<-ctx.Done()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(s.timeout):
	}
	s.lg.Info("Maintenance scheduler stopped")
	return nil
}

// Sweep moves stale orders once. A failed save is logged and counted; the
// sweep goes on with the next order.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	var res Result

	pending, err := s.orders.FindOldPending(ctx)
	if err != nil {
		return res, errors.Wrap(err, "find old pending")
	}
	for _, o := range pending {
		if s.move(ctx, o, order.StatusOnHold) {
			res.OnHold++
		} else {
			res.Failed++
		}
	}

	processing, err := s.orders.FindOldProcessing(ctx)
	if err != nil {
		return res, errors.Wrap(err, "find old processing")
	}
	for _, o := range processing {
		if s.move(ctx, o, order.StatusCompleted) {
			res.Completed++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (s *Scheduler) move(ctx context.Context, o *order.Order, to order.Status) bool {
	from := o.Status
	if err := o.SetStatus(to); err != nil {
		s.lg.Warn("Set order status", zap.Int64("order_id", o.ID), zap.Error(err))
		return false
	}
	if err := s.orders.Save(ctx, o); err != nil {
		s.lg.Warn("Save order",
			zap.Int64("order_id", o.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return false
	}
	return true
}
