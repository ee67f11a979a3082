package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
)

// Greeter welcomes joining members, says goodbye to leaving ones, and
// re-bans banned users who slip back in.
type Greeter struct {
	deps *Dependencies
}

func NewGreeter(deps *Dependencies) *Greeter {
	return &Greeter{deps: deps}
}

func (c *Greeter) Name() string {
	return "greeter"
}

func (c *Greeter) Description() string {
	return "Greets joining and leaving members"
}

func (c *Greeter) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event
	st := exec.State

	if len(ev.NewMembers) > 0 {
		var welcome []string
		for _, member := range ev.NewMembers {
			if st.IsBanned(member.ID) {
				exec.Stage(domain.NewRestrictUser(ev.ChatID, member.ID, domain.RestrictBan, time.Time{}))
				c.deps.logger().Info("Re-banned returning banned user",
					zap.Int64("chat_id", ev.ChatID),
					zap.Int64("user_id", member.ID),
				)
				continue
			}
			name := member.Name
			if name == "" {
				name = userLabel(ev, member.ID)
			}
			welcome = append(welcome, name)
		}
		if len(welcome) > 0 {
			exec.Reply(c.deps.Formatter.FormatWelcome(welcome, st.Rules != ""))
		}
		return domain.Stop, nil
	}

	if ev.LeftMember != nil {
		name := ev.LeftMember.Name
		if name == "" {
			name = userLabel(ev, ev.LeftMember.ID)
		}
		exec.Reply(c.deps.Formatter.FormatFarewell(name))
		return domain.Stop, nil
	}

	return domain.Continue, nil
}
