package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/internal/errs"
)

// PostgresLedger stores idempotency entries in the idempotency_ledger table
// (key TEXT PRIMARY KEY, outcome TEXT, reserved_at TIMESTAMPTZ NOT NULL,
// committed_at TIMESTAMPTZ). The primary-key conflict makes Reserve atomic
// across processes.
type PostgresLedger struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresLedger creates a Postgres-backed ledger
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool, ttl: DefaultReservationTTL}
}

// Reserve implements Ledger
func (p *PostgresLedger) Reserve(ctx context.Context, key string) (Reservation, error) {
	if key == "" {
		return Reservation{}, errs.Validation("key", "empty idempotency key")
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO idempotency_ledger (key, reserved_at)
		VALUES ($1, NOW())
		ON CONFLICT (key) DO NOTHING`,
		key,
	)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reserve key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return Reservation{Acquired: true}, nil
	}

	// Key exists: either committed, in flight, or stale. Reclaim stale
	// reservations and committed failures in one conditional update so two
	// racing callers cannot both win.
	tag, err = p.pool.Exec(ctx, `
		UPDATE idempotency_ledger
		SET reserved_at = NOW(), committed_at = NULL, outcome = NULL
		WHERE key = $1
		  AND (
			(committed_at IS NULL AND reserved_at < NOW() - $2::interval)
			OR outcome = $3
		  )`,
		key, p.ttl.String(), OutcomeFailed,
	)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to reclaim key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return Reservation{Acquired: true}, nil
	}

	var outcome *string
	var committedAt *time.Time
	err = p.pool.QueryRow(ctx, `
		SELECT outcome, committed_at FROM idempotency_ledger WHERE key = $1`,
		key,
	).Scan(&outcome, &committedAt)
	if err == pgx.ErrNoRows {
		// Pruned between statements; treat as a fresh miss and let the
		// caller retry the reserve.
		return Reservation{}, errs.Transient("ledger reserve", fmt.Errorf("key %s vanished during reserve", key))
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to read ledger entry: %w", err)
	}

	res := Reservation{}
	if committedAt != nil {
		res.Committed = true
		if outcome != nil {
			res.Outcome = *outcome
		}
	}
	return res, nil
}

// Commit implements Ledger
func (p *PostgresLedger) Commit(ctx context.Context, key string, outcome string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE idempotency_ledger
		SET outcome = $2, committed_at = NOW()
		WHERE key = $1`,
		key, outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to commit key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("ledger entry", key)
	}
	return nil
}

// DeleteOlderThan implements Ledger
func (p *PostgresLedger) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM idempotency_ledger
		WHERE committed_at IS NOT NULL AND committed_at < NOW() - $1::interval`,
		age.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}
