package legacy

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// Orders saves converted orders.
type Orders interface {
	Save(ctx context.Context, o *order.Order) error
}

// Stats counts the outcome of an import.
type Stats struct {
	Read     int64
	Imported int64
	Skipped  int64
	Failed   int64
}

// Importer streams a dump of exported orders, one JSON record per line,
// and saves each converted order.
type Importer struct {
	conv    *Converter
	orders  Orders
	skip    *Skipper
	lg      *zap.Logger
	workers int
}

// NewImporter creates an Importer running up to workers saves at once. A
// nil skip imports every record.
func NewImporter(conv *Converter, orders Orders, skip *Skipper, lg *zap.Logger, workers int) *Importer {
	if workers <= 0 {
		workers = 1
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Importer{conv: conv, orders: orders, skip: skip, lg: lg, workers: workers}
}

// maxLine bounds one record of the dump.
const maxLine = 16 << 20

// Import reads r until EOF. A record that fails to decode, convert or save
// is logged and counted; only read errors and cancellation stop the run.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Stats, error) {
	var (
		stats                     Stats
		imported, skipped, failed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)

	var line int64
	for scanner.Scan() {
		if err := gctx.Err(); err != nil {
			break
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		stats.Read++

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			im.lg.Warn("Skipping undecodable record", zap.Int64("line", line), zap.Error(err))
			failed.Add(1)
			continue
		}

		g.Go(func() error {
			switch done, err := im.importOne(gctx, rec); {
			case err != nil:
				im.lg.Error("Import order failed", zap.Int64("legacy_id", rec.ID), zap.Error(err))
				failed.Add(1)
			case done:
				imported.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	scanErr := scanner.Err()
	_ = g.Wait()

	stats.Imported = imported.Load()
	stats.Skipped = skipped.Load()
	stats.Failed = failed.Load()

	if scanErr != nil {
		return stats, errors.Wrap(scanErr, "read dump")
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// importOne converts and saves rec. It reports false when the order was
// imported before.
func (im *Importer) importOne(ctx context.Context, rec Record) (bool, error) {
	if im.skip != nil {
		seen, err := im.skip.Imported(ctx, rec.ID)
		if err != nil {
			return false, err
		}
		if seen {
			return false, nil
		}
	}
	o, err := im.conv.Convert(ctx, rec)
	if err != nil {
		return false, errors.Wrap(err, "convert")
	}
	if err := im.orders.Save(ctx, o); err != nil {
		return false, errors.Wrap(err, "save")
	}
	return true, nil
}
