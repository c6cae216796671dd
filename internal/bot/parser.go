package bot

import (
	"regexp"
	"time"

	"github.com/d2avids/helper-bot/internal/domain"
)

// Формат слота: "YYYY-MM-DD HH:MM-HH:MM", строго с нулями, один день.
var reTimeSlot = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (([01]\d|2[0-3]):([0-5]\d))-(([01]\d|2[0-3]):([0-5]\d))$`)

// ParseTimeSlot разбирает пользовательский ввод временного слота.
// Любая проблема (кривая дата, кривое время, начало не раньше конца) —
// domain.ErrInvalidFormat: пользователя просто перепросят.
func ParseTimeSlot(text string) (start, end time.Time, err error) {
	m := reTimeSlot.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidFormat
	}
	datePart, startPart, endPart := m[1], m[2], m[5]

	// лексикографическое сравнение HH:MM — начало строго раньше конца
	if startPart >= endPart {
		return time.Time{}, time.Time{}, domain.ErrInvalidFormat
	}
	if _, err := time.Parse("2006-01-02", datePart); err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidFormat
	}

	start, err = time.Parse("2006-01-02 15:04", datePart+" "+startPart)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidFormat
	}
	end, err = time.Parse("2006-01-02 15:04", datePart+" "+endPart)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidFormat
	}
	return start, end, nil
}
