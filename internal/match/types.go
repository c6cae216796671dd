package match

import (
	"context"
	"time"

	"github.com/d2avids/helper-bot/internal/domain"
)

// Identity — внешняя идентичность участника (Telegram).
type Identity struct {
	TelegramID int64
	Username   string
}

// Candidate — слот противоположного типа, пересекающийся с запросом.
// Показывается просителю кнопкой.
type Candidate struct {
	HelperID     int64 // внутренний id владельца оффера
	HelperHandle string
	Start        time.Time
	End          time.Time
}

// Selection — типизированный токен выбора кандидата. Сериализуется
// в callback data только на транспортной границе.
type Selection struct {
	HelperID int64
	Start    time.Time
	End      time.Time
}

// ConfirmReply — типизированный токен ответа "да/нет" после встречи.
type ConfirmReply struct {
	Yes                 bool
	RequesterTelegramID int64
	HelperID            int64
}

// CheckRef — содержимое отложенной проверки: только идентичности,
// никаких живых хэндлов стора.
type CheckRef struct {
	RequesterTelegramID int64
	HelperID            int64
}

// CandidateSlot — слот вместе с владельцем, как его отдаёт стор.
type CandidateSlot struct {
	Slot          domain.TimeSlot
	OwnerHandle   string
	OwnerTelegram int64
}

// UserDirectory резолвит/создаёт участника по внешней идентичности.
type UserDirectory interface {
	GetOrCreate(ctx context.Context, telegramID int64, username string) (domain.User, error)
	ByID(ctx context.Context, id int64) (domain.User, error)
	ByTelegramID(ctx context.Context, telegramID int64) (domain.User, error)
}

type SlotStore interface {
	Create(ctx context.Context, slot *domain.TimeSlot) error
	// Candidates: непомеченные слоты типа kind, пересекающие [start, end],
	// по возрастанию created_at.
	Candidates(ctx context.Context, kind domain.SlotKind, start, end time.Time) ([]CandidateSlot, error)
	// ByOwnerTime: слот по ключу выбора (владелец, точные границы, тип).
	ByOwnerTime(ctx context.Context, ownerID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error)
	// LatestUnmatchedOverlap: самый свежий непомеченный слот владельца
	// (по telegram id), пересекающий [start, end].
	LatestUnmatchedOverlap(ctx context.Context, ownerTelegramID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error)
	// LatestMatchedBy: самый свежий помеченный REQUEST владельца с данным контрагентом.
	LatestMatchedBy(ctx context.Context, ownerTelegramID int64, counterpartID int64) (domain.TimeSlot, error)
	// EarliestUnmatchedOverlap: непомеченный слот владельца (внутренний id)
	// с самым ранним началом, пересекающий [start, end].
	EarliestUnmatchedOverlap(ctx context.Context, ownerID int64, kind domain.SlotKind, start, end time.Time) (domain.TimeSlot, error)
	// MarkMatched — условный апдейт (matched=false → true).
	// Ноль затронутых строк = ErrConcurrentMatch.
	MarkMatched(ctx context.Context, slotID, counterpartUserID int64) error
}

// Stores — репозитории, привязанные к транзакции одного входящего события.
type Stores struct {
	Users UserDirectory
	Slots SlotStore
}

// Runner исполняет fn внутри одной транзакционной единицы,
// освобождаемой на любом пути выхода.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}

// Scheduler ставит одноразовую отложенную проверку.
type Scheduler interface {
	Schedule(ctx context.Context, at time.Time, ref CheckRef) error
}

// Notifier — исходящие уведомления (транспорт вне ядра, fire-and-forget).
type Notifier interface {
	PromptCandidates(ctx context.Context, telegramID int64, cands []Candidate) error
	PromptConfirmation(ctx context.Context, telegramID int64, counterpartHandle string, ref CheckRef) error
	NotifyModerator(ctx context.Context, requesterHandle, helperHandle string, start, end time.Time) error
}
