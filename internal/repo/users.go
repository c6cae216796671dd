package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/d2avids/helper-bot/internal/domain"
)

type Users struct{ q Querier }

func NewUsers(q Querier) *Users { return &Users{q: q} }

// GetOrCreate: upsert по telegram_id. Гонка одновременных создание
// схлопывается в одну строку на уровне стора.
func (r *Users) GetOrCreate(ctx context.Context, telegramID int64, username string) (domain.User, error) {
	var u domain.User
	err := r.q.QueryRow(ctx, `
		INSERT INTO users(telegram_id, username)
		VALUES($1,$2)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username=EXCLUDED.username
		RETURNING id, telegram_id, username, created_at
	`, telegramID, username).Scan(&u.ID, &u.TelegramID, &u.Username, &u.CreatedAt)
	return u, err
}

func (r *Users) ByID(ctx context.Context, id int64) (domain.User, error) {
	return r.scanOne(r.q.QueryRow(ctx,
		`SELECT id, telegram_id, username, created_at FROM users WHERE id=$1`, id))
}

func (r *Users) ByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	return r.scanOne(r.q.QueryRow(ctx,
		`SELECT id, telegram_id, username, created_at FROM users WHERE telegram_id=$1`, telegramID))
}

func (r *Users) scanOne(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}
