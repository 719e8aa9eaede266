package dispatcher

// Outcome classifies one delivery attempt for the worker. The worker
// branches on the value: schedule a retry, or stop. Attempt failures are
// data, not errors; an error return from Attempt means the dispatcher
// itself could not run (storage unavailable etc.).
type Outcome int

const (
	// OutcomeSuccess: 2xx response, delivery finalized.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry: attempt failed, budget remains, delivery stays pending.
	OutcomeRetry
	// OutcomeTerminal: delivery finalized as failed (exhausted attempts,
	// inactive/missing destination) or was already terminal.
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Result is the observable outcome of one attempt.
type Result struct {
	Outcome    Outcome
	Attempts   int    // attempts recorded so far, after this invocation
	StatusCode int    // last HTTP status, 0 when no response was received
	Detail     string // transport error text or classification note
}
