package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// OrderEventStore implements domain.OrderEventStore using PostgreSQL.
type OrderEventStore struct {
	pool *pgxpool.Pool
}

// NewOrderEventStore creates a new OrderEventStore backed by the given
// connection pool.
func NewOrderEventStore(pool *pgxpool.Pool) *OrderEventStore {
	return &OrderEventStore{pool: pool}
}

// Log appends one order lifecycle event to the audit log.
func (s *OrderEventStore) Log(ctx context.Context, ev domain.OrderEvent) error {
	const query = `
		INSERT INTO order_events (pair, order_id, kind, side, price, amount, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		ev.Pair, ev.OrderID, ev.Kind, string(ev.Side), ev.Price, ev.Amount, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: log order event for %s: %w", ev.OrderID, err)
	}
	return nil
}

const orderEventSelectCols = `id, pair, order_id, kind, side, price, amount, detail, created_at`

func scanOrderEventRows(rows pgx.Rows) ([]domain.OrderEvent, error) {
	var events []domain.OrderEvent
	for rows.Next() {
		var ev domain.OrderEvent
		var side string
		if err := rows.Scan(&ev.ID, &ev.Pair, &ev.OrderID, &ev.Kind, &side, &ev.Price, &ev.Amount, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Side = domain.OrderSide(side)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListByPair returns order events for a given pair with pagination.
func (s *OrderEventStore) ListByPair(ctx context.Context, pair string, opts domain.ListOpts) ([]domain.OrderEvent, error) {
	query := `SELECT ` + orderEventSelectCols + ` FROM order_events WHERE pair = $1`
	args := []any{pair}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order events by pair: %w", err)
	}
	defer rows.Close()

	events, err := scanOrderEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order events by pair: %w", err)
	}
	return events, nil
}

// ListBefore returns all order events created strictly before cutoff,
// across all pairs. Used by the S3 archiver ahead of DeleteBefore.
func (s *OrderEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderEventSelectCols+` FROM order_events WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order events before %s: %w", before, err)
	}
	defer rows.Close()

	events, err := scanOrderEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order events before %s: %w", before, err)
	}
	return events, nil
}

// DeleteBefore removes all order events created strictly before cutoff and
// returns the number of rows deleted.
func (s *OrderEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM order_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete order events before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.OrderEventStore = (*OrderEventStore)(nil)
