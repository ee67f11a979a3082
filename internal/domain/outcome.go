package domain

// Outcome tells the dispatcher what to do with the rest of the
// handler chain after one handler returns. Failure is signalled by a
// non-nil error alongside, never by an Outcome value.
type Outcome int

const (
	// Continue lets lower-priority handlers see the event.
	Continue Outcome = iota
	// Stop consumes the event; no further handlers run.
	Stop
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}
