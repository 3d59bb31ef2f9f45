package refserver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// OpenDB opens a pgx connection pool and applies the schema. Pool
// tuning mirrors the teacher's internal/db/pg.go (MaxConns, MinConns,
// lifetime/idle timeouts, a startup ping) — the shape that worked there
// is generic connection-pool hygiene, not specific to the teacher's own
// entity tables.
func OpenDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("refserver: parse db url: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("refserver: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("refserver: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("refserver: apply schema: %w", err)
	}
	log.Info().Msg("refserver: database pool ready")
	return pool, nil
}
