package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/d2avids/helper-bot/internal/domain"
	"github.com/d2avids/helper-bot/internal/match"
)

type Slots struct{ q Querier }

func NewSlots(q Querier) *Slots { return &Slots{q: q} }

const slotColumns = `ts.id, ts.user_id, ts.kind, ts.start_time, ts.end_time, ts.matched, ts.matched_user_id, ts.created_at`

func (r *Slots) Create(ctx context.Context, s *domain.TimeSlot) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO time_slot(user_id, kind, start_time, end_time)
		VALUES($1,$2,$3,$4)
		RETURNING id, created_at
	`, s.UserID, string(s.Kind), s.Start, s.End).Scan(&s.ID, &s.CreatedAt)
}

// Candidates: непомеченные слоты данного типа, пересекающие [start, end]
// (границы включительно), по порядку создания.
func (r *Slots) Candidates(ctx context.Context, kind domain.SlotKind, start, end time.Time) ([]match.CandidateSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`, COALESCE(u.username,''), u.telegram_id
		FROM time_slot ts
		JOIN users u ON u.id = ts.user_id
		WHERE ts.kind = $1
		  AND NOT ts.matched
		  AND ts.start_time <= $3
		  AND ts.end_time >= $2
		ORDER BY ts.created_at, ts.id
	`, string(kind), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.CandidateSlot
	for rows.Next() {
		var c match.CandidateSlot
		if err := scanSlot(rows, &c.Slot, &c.OwnerHandle, &c.OwnerTelegram); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ByOwnerTime — слот по ключу выбора кандидата (владелец, точные границы, тип).
func (r *Slots) ByOwnerTime(ctx context.Context, ownerID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slot ts
		WHERE ts.user_id = $1 AND ts.kind = $2 AND ts.start_time = $3 AND ts.end_time = $4
		LIMIT 1
	`, ownerID, string(kind), start, end)
	return r.one(row)
}

// LatestUnmatchedOverlap: самый свежий непомеченный слот владельца
// (по telegram id), пересекающий [start, end].
func (r *Slots) LatestUnmatchedOverlap(ctx context.Context, ownerTelegramID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slot ts
		JOIN users u ON u.id = ts.user_id
		WHERE u.telegram_id = $1
		  AND ts.kind = $2
		  AND NOT ts.matched
		  AND ts.start_time <= $4
		  AND ts.end_time >= $3
		ORDER BY ts.created_at DESC, ts.id DESC
		LIMIT 1
	`, ownerTelegramID, string(kind), start, end)
	return r.one(row)
}

// LatestMatchedBy: самый свежий помеченный REQUEST владельца с данным контрагентом.
func (r *Slots) LatestMatchedBy(ctx context.Context, ownerTelegramID int64, counterpartID int64) (domain.TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slot ts
		JOIN users u ON u.id = ts.user_id
		WHERE u.telegram_id = $1
		  AND ts.kind = 'request'
		  AND ts.matched
		  AND ts.matched_user_id = $2
		ORDER BY ts.created_at DESC, ts.id DESC
		LIMIT 1
	`, ownerTelegramID, counterpartID)
	return r.one(row)
}

// EarliestUnmatchedOverlap: непомеченный слот владельца с самым ранним
// началом, пересекающий [start, end].
func (r *Slots) EarliestUnmatchedOverlap(ctx context.Context, ownerID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slot ts
		WHERE ts.user_id = $1
		  AND ts.kind = $2
		  AND NOT ts.matched
		  AND ts.start_time <= $4
		  AND ts.end_time >= $3
		ORDER BY ts.start_time, ts.id
		LIMIT 1
	`, ownerID, string(kind), start, end)
	return r.one(row)
}

// MarkMatched — условный апдейт: проигранная гонка отдаёт ErrConcurrentMatch.
func (r *Slots) MarkMatched(ctx context.Context, slotID, counterpartUserID int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE time_slot
		SET matched = TRUE, matched_user_id = $2
		WHERE id = $1 AND NOT matched
	`, slotID, counterpartUserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentMatch
	}
	return nil
}

func (r *Slots) one(row pgx.Row) (domain.TimeSlot, error) {
	var s domain.TimeSlot
	var kind string
	err := row.Scan(&s.ID, &s.UserID, &kind, &s.Start, &s.End, &s.Matched, &s.MatchedUserID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TimeSlot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TimeSlot{}, err
	}
	s.Kind = domain.SlotKind(kind)
	return s, nil
}

func scanSlot(rows pgx.Rows, s *domain.TimeSlot, handle *string, tg *int64) error {
	var kind string
	if err := rows.Scan(&s.ID, &s.UserID, &kind, &s.Start, &s.End, &s.Matched, &s.MatchedUserID, &s.CreatedAt, handle, tg); err != nil {
		return err
	}
	s.Kind = domain.SlotKind(kind)
	return nil
}
