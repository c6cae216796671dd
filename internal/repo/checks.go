package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/d2avids/helper-bot/internal/sched"
)

// Checks — долговременная очередь отложенных проверок. Работает на пуле,
// вне транзакций событий: постановка переживает рестарт процесса.
type Checks struct{ pool *pgxpool.Pool }

func NewChecks(p *pgxpool.Pool) *Checks { return &Checks{pool: p} }

func (r *Checks) Enqueue(ctx context.Context, c sched.Check) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deferred_check(id, fire_at, requester_tg_id, helper_id)
		VALUES($1,$2,$3,$4)
	`, c.ID, c.FireAt, c.RequesterTelegramID, c.HelperID)
	return err
}

// ClaimDue забирает созревшие проверки условным апдейтом: каждая строка
// выдаётся ровно один раз, даже если тики пересекутся.
func (r *Checks) ClaimDue(ctx context.Context, now time.Time) ([]sched.Check, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE deferred_check
		SET pending = FALSE
		WHERE pending AND fire_at <= $1
		RETURNING id, fire_at, requester_tg_id, helper_id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sched.Check
	for rows.Next() {
		var c sched.Check
		if err := rows.Scan(&c.ID, &c.FireAt, &c.RequesterTelegramID, &c.HelperID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
