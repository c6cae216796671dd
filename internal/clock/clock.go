package clock

import "time"

// Clock отдаёт "бото-локальное" время: процессный сдвиг от UTC в часах,
// один на всех пользователей. Инжектится, чтобы в тестах подменять время.
type Clock interface {
	Now() time.Time
}

type Offset struct {
	Hours int
}

func (c Offset) Now() time.Time {
	return time.Now().UTC().Add(time.Duration(c.Hours) * time.Hour)
}

// Fixed — часы для тестов.
type Fixed struct {
	T time.Time
}

func (c Fixed) Now() time.Time { return c.T }
