// Package store persists parsed records to a Postgres-compatible database.
// A small pool backs every query; each upsert is its own transaction,
// re-run by crdbpgx on a serialization failure and retried once on a
// unique-violation race.
package store

import (
	"context"
	"errors"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.capitolfeed.build/go/ctxutil"
	"go.capitolfeed.build/go/skerr"
)

// Store wraps a small connection pool to the ingestion database.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against dsn. A small pool is intentional --
// this workload is a handful of sequential writers, not a web service.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing database dsn")
	}
	cfg.MaxConns = 10

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, skerr.Wrapf(err, "connecting to database")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pgxpool.Pool for components (such as
// migrations) that need direct access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// withRetryTx runs fn inside a transaction. crdbpgx re-runs it on a
// serialization failure; a unique-violation race (SQLSTATE 23505) gets
// exactly one further attempt here -- the policy this store commits to for
// every upsert.
func withRetryTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	ctxutil.ConfirmContextHasDeadline(ctx)
	err := crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, fn)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		err = crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, fn)
	}
	if err != nil {
		return skerr.Wrap(err)
	}
	return nil
}

