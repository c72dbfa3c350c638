package observability

import (
	"time"

	"github.com/rs/zerolog"
)

// Outcome labels the terminal state of one request/reply exchange.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeSent      Outcome = "sent"
)

// LogExchange records one exchange at a level matching its outcome and
// feeds the exchange metrics.
func LogExchange(logger zerolog.Logger, op string, counter uint16, outcome Outcome, polls int, duration time.Duration, err error) {
	RecordExchange(op, outcome, duration)

	event := logger.Debug()
	switch outcome {
	case OutcomeFailed:
		event = logger.Warn()
	case OutcomeTimedOut:
		event = logger.Error()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("op", op).
		Uint16("counter", counter).
		Str("outcome", string(outcome)).
		Int("polls", polls).
		Dur("duration", duration).
		Msg("exchange")
}
