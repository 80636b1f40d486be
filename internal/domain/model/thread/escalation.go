package thread

import "time"

// Escalation records an unhandled limit violation while the thread is
// suspended awaiting approval. Cleared on resume.
type Escalation struct {
	LimitCode    string    `json:"limit_code"`
	CurrentValue float64   `json:"current_value"`
	CurrentMax   float64   `json:"current_max"`
	ProposedMax  float64   `json:"proposed_max"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewEscalation proposes doubling the exhausted limit.
func NewEscalation(violation LimitViolation, message string, now time.Time) Escalation {
	return Escalation{
		LimitCode:    violation.Code,
		CurrentValue: violation.Current,
		CurrentMax:   violation.Max,
		ProposedMax:  violation.Max * 2,
		Message:      message,
		CreatedAt:    now.UTC(),
	}
}
