package match

// State — этап жизненного цикла пары запрос/оффер.
//
// Proposed → Tentative → AwaitingConfirmation → Confirmed | Disputed.
//
// Tentative помечает только слот просителя; слот помощника блокируется
// лишь при ответе на проверку (см. DESIGN.md).
type State int

const (
	StateProposed State = iota
	StateTentative
	StateAwaitingConfirmation
	StateConfirmed
	StateDisputed
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateTentative:
		return "tentative"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateDisputed
}
