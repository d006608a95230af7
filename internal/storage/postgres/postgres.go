// Package postgres is the PostgreSQL storage driver. Queue counters are updated with
// single atomic statements, and row triggers announce every committed change through
// LISTEN/NOTIFY so all instances see the same feed in commit order.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Config selects the database and pool size.
type Config struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// Connect opens a pool and retries the first ping while the database starts up.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres.Connect: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.Connect: %w", err)
	}
	for i := 1; ; i++ {
		pctx, cancel := context.WithTimeout(ctx, pingTTL)
		err = pool.Ping(pctx)
		cancel()
		if err == nil {
			return pool, nil
		}
		if i == maxRetries {
			pool.Close()
			return nil, fmt.Errorf("database unreachable after %d attempts: %w", maxRetries, err)
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("postgres.Connect: %w", ctx.Err())
		}
	}
}

// Migrate applies the schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

// Store bundles the repositories sharing one pool and one change listener.
type Store struct {
	pool      *pgxpool.Pool
	log       *logger.Logger
	rows      rowLoader
	Orders    *OrderRepository
	Templates *TemplateRepository
	Queue     *QueueRepository
	Directory *Directory
}

func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		pool: pool,
		log:  log.WithComponent("postgres"),
		Orders: &OrderRepository{
			db:     pool,
			broker: feed.NewBroker[*models.PreOrder]("preorders", log),
		},
		Templates: &TemplateRepository{
			db:     pool,
			broker: feed.NewBroker[*models.RecurringTemplate]("templates", log),
		},
		Queue: &QueueRepository{
			db:     pool,
			broker: feed.NewBroker[*models.VendorQueueState]("queue", log),
		},
		Directory: &Directory{db: pool},
	}
	s.rows = repoRows{s}
	return s
}

// Close ends every subscription. The pool is owned by the caller.
func (s *Store) Close() {
	s.Orders.broker.Close()
	s.Templates.broker.Close()
	s.Queue.broker.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
