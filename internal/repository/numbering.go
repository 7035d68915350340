package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
)

// Numbering selects how order numbers are allocated.
type Numbering string

const (
	// NumberingCounter increments a single-row counter. The row lock
	// serializes concurrent first saves until they commit, and folding in
	// MAX(number) keeps the counter ahead of imported numbers.
	NumberingCounter Numbering = "counter"
	// NumberingMaxScan reads MAX(number)+1. It is only safe with a single
	// writer; concurrent writers rely on the unique constraint and on the
	// order service retrying.
	NumberingMaxScan Numbering = "max-scan"
)

// ParseNumbering validates a configured numbering strategy. Empty means
// NumberingCounter.
func ParseNumbering(s string) (Numbering, error) {
	switch n := Numbering(s); n {
	case "":
		return NumberingCounter, nil
	case NumberingCounter, NumberingMaxScan:
		return n, nil
	default:
		return "", errors.Errorf("unknown numbering strategy %q", s)
	}
}

const (
	nextNumberCounterSQL = `UPDATE order_number_counter
		SET last = GREATEST(last, (SELECT COALESCE(MAX(number), 0) FROM orders)) + 1
		WHERE id = 1
		RETURNING last`

	nextNumberMaxScanSQL = `SELECT COALESCE(MAX(number), 0) + 1 FROM orders`
)

func nextOrderNumber(ctx context.Context, tx pgx.Tx, n Numbering) (int64, error) {
	query := nextNumberCounterSQL
	if n == NumberingMaxScan {
		query = nextNumberMaxScanSQL
	}
	var next int64
	if err := tx.QueryRow(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("allocating order number (%s): %w", n, err)
	}
	return next, nil
}
