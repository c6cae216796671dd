package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/d2avids/helper-bot/internal/match"
)

// Querier — общий срез pgx.Tx и *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Runner исполняет обработку одного входящего события внутри одной
// транзакции: commit на успехе, rollback на любом другом пути.
type Runner struct {
	pool *pgxpool.Pool
}

func NewRunner(pool *pgxpool.Pool) *Runner { return &Runner{pool: pool} }

func (r *Runner) InTx(ctx context.Context, fn func(ctx context.Context, st match.Stores) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, match.Stores{
			Users: &Users{q: tx},
			Slots: &Slots{q: tx},
		})
	})
}
