package dialog

import (
	"context"
	"sync"
)

// Step — шаг диалога с пользователем. Явный конечный автомат вместо
// неявных переменных состояния: один шаг на чат.
type Step string

const (
	StepIdle         Step = ""
	StepAwaitRequest Step = "await_request_range"
	StepAwaitOffer   Step = "await_offer_range"
	StepChoosing     Step = "choosing_candidate"
)

// Store хранит текущий шаг диалога по telegram id чата.
type Store interface {
	Get(ctx context.Context, chatID int64) (Step, error)
	Set(ctx context.Context, chatID int64, step Step) error
	Clear(ctx context.Context, chatID int64) error
}

// Memory — стор для тестов и запуска без redis.
type Memory struct {
	mu    sync.Mutex
	steps map[int64]Step
}

func NewMemory() *Memory {
	return &Memory{steps: make(map[int64]Step)}
}

func (m *Memory) Get(_ context.Context, chatID int64) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps[chatID], nil
}

func (m *Memory) Set(_ context.Context, chatID int64, step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[chatID] = step
	return nil
}

func (m *Memory) Clear(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, chatID)
	return nil
}
