package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore serves the same interfaces as SQLiteStore from a pgx pool.
type PostgresStore struct {
	*store
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{
		store: &store{c: pgxConn{pool: pool}, d: postgresDialect, now: time.Now},
		pool:  pool,
	}
	if err := migrate(ctx, s.c, s.d, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgxConn struct {
	pool *pgxpool.Pool
}

func (c pgxConn) exec(ctx context.Context, query string, args ...any) error {
	_, err := c.pool.Exec(ctx, query, args...)
	return err
}

func (c pgxConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (c pgxConn) queryRow(ctx context.Context, query string, args ...any) scanner {
	return c.pool.QueryRow(ctx, query, args...)
}

func (pgxConn) isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
