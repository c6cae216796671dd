package sched

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d2avids/helper-bot/internal/clock"
)

// Check — отложенная одноразовая проверка статуса встречи.
// Несёт только идентичности участников; соединение со стором
// обработчик берёт сам в момент срабатывания.
type Check struct {
	ID                  uuid.UUID
	FireAt              time.Time
	RequesterTelegramID int64
	HelperID            int64
}

// Store — долговременная очередь проверок. ClaimDue обязан отдавать
// каждую проверку не более одного раза (условный апдейт в сторе).
type Store interface {
	Enqueue(ctx context.Context, c Check) error
	ClaimDue(ctx context.Context, now time.Time) ([]Check, error)
}

// Handler вызывается ровно один раз на проверку. Ошибка логируется,
// повторов нет.
type Handler func(ctx context.Context, c Check) error

// Scheduler пишет проверки в стор и опрашивает его тикером.
// Проверки переживают рестарт процесса: невыстрелившие строки
// подбираются первым же тиком. Просроченный FireAt срабатывает
// на ближайшем тике.
type Scheduler struct {
	store Store
	clk   clock.Clock
	every time.Duration
	log   *zap.Logger
}

func New(store Store, clk clock.Clock, pollEvery time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{store: store, clk: clk, every: pollEvery, log: log}
}

func (s *Scheduler) Schedule(ctx context.Context, at time.Time, requesterTG, helperID int64) error {
	c := Check{
		ID:                  uuid.New(),
		FireAt:              at,
		RequesterTelegramID: requesterTG,
		HelperID:            helperID,
	}
	if err := s.store.Enqueue(ctx, c); err != nil {
		return err
	}
	s.log.Debug("check scheduled", zap.String("id", c.ID.String()), zap.Time("fire_at", at))
	return nil
}

// Run крутит опрос до отмены контекста. Первый проход — сразу,
// чтобы после рестарта не ждать целый интервал.
func (s *Scheduler) Run(ctx context.Context, h Handler) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.tick(ctx, h)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, h)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, h Handler) {
	due, err := s.store.ClaimDue(ctx, s.clk.Now())
	if err != nil {
		s.log.Error("claim due checks", zap.Error(err))
		return
	}
	for _, c := range due {
		s.fire(ctx, h, c)
	}
}

func (s *Scheduler) fire(ctx context.Context, h Handler, c Check) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("check handler panic", zap.String("id", c.ID.String()), zap.Any("panic", r))
		}
	}()
	if err := h(ctx, c); err != nil {
		s.log.Error("deferred check failed", zap.String("id", c.ID.String()), zap.Error(err))
	}
}
