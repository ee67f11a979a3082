package command

import (
	"context"

	"github.com/kavik/groupwarden-go/internal/domain"
)

// Handler is the unit of behavior bound to incoming events. Execute
// receives a per-event Execution carrying the state snapshot and the
// staging buffer for outbound actions; the returned outcome decides
// whether lower-priority handlers still see the event.
type Handler interface {
	Name() string
	Description() string
	Execute(ctx context.Context, exec *Execution) (domain.Outcome, error)
}

// Descriptor binds a handler to the events it should receive.
type Descriptor struct {
	Handler Handler

	// Commands lists the command words (without prefix) routed to the
	// handler. Matching is case-insensitive.
	Commands []string

	// Kinds lists the non-command event kinds routed to the handler.
	Kinds []domain.EventKind

	// Match optionally narrows the routed events further. A nil Match
	// accepts everything the Commands/Kinds selection produced.
	Match func(ev *domain.Event) bool

	// Priority orders handlers that match the same event. Higher runs
	// first.
	Priority int

	// Exclusive marks the handler as claiming its selector for itself.
	// Two exclusive handlers may not share a command or kind at equal
	// priority.
	Exclusive bool

	// Tags are free-form labels used for help grouping and logging.
	Tags []string
}

// Matches reports whether the descriptor's own predicate accepts the
// event. Selector overlap (commands, kinds) is resolved by the
// registry index before this is consulted.
func (d *Descriptor) Matches(ev *domain.Event) bool {
	if d.Match == nil {
		return true
	}
	return d.Match(ev)
}
