package contextcache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Cache backed by the context_cache table. Expired rows are
// filtered on read and lazily reaped on write, so no background sweeper is
// needed.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres cache on an existing pool. The pool's
// lifecycle (connect, close) stays with the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get fetches a live entry for key.
func (c *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `SELECT payload FROM context_cache WHERE cache_key = $1 AND expires_at > NOW()`

	var payload []byte
	if err := c.pool.QueryRow(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// Set upserts the entry and refreshes its expiry.
func (c *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const stmt = `INSERT INTO context_cache (cache_key, payload, expires_at)
        VALUES ($1, $2, NOW() + $3)
        ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`

	if _, err := c.pool.Exec(ctx, stmt, key, value, ttl); err != nil {
		return err
	}

	// Opportunistic reap keeps the table from accumulating dead entries.
	_, err := c.pool.Exec(ctx, `DELETE FROM context_cache WHERE expires_at <= NOW()`)
	return err
}
