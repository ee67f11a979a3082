package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
)

// ActivityRecorder counts every plain message into the per-user
// activity stats. It never consumes the event.
type ActivityRecorder struct {
	deps *Dependencies
}

func NewActivityRecorder(deps *Dependencies) *ActivityRecorder {
	return &ActivityRecorder{deps: deps}
}

func (c *ActivityRecorder) Name() string {
	return "activity_recorder"
}

func (c *ActivityRecorder) Description() string {
	return "Records per-user message counters"
}

func (c *ActivityRecorder) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		st.TouchStats(ev.UserID, at)
		return nil
	}); err != nil {
		return domain.Continue, err
	}
	return domain.Continue, nil
}

// MuteEnforcer deletes messages sent by currently muted users and
// consumes the event so nothing else reacts to them.
type MuteEnforcer struct {
	deps *Dependencies
}

func NewMuteEnforcer(deps *Dependencies) *MuteEnforcer {
	return &MuteEnforcer{deps: deps}
}

func (c *MuteEnforcer) Name() string {
	return "mute_enforcer"
}

func (c *MuteEnforcer) Description() string {
	return "Removes messages from muted users"
}

func (c *MuteEnforcer) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !exec.State.IsMuted(ev.UserID, time.Now()) {
		return domain.Continue, nil
	}

	if ev.MessageID != 0 {
		exec.Stage(domain.NewDeleteMessage(ev.ChatID, ev.MessageID))
	}
	c.deps.logger().Debug("Suppressed message from muted user",
		zap.Int64("chat_id", ev.ChatID),
		zap.Int64("user_id", ev.UserID),
	)
	return domain.Stop, nil
}
