package command

import (
	"context"
	"sort"
	"time"

	"github.com/kavik/groupwarden-go/internal/adapter"
	"github.com/kavik/groupwarden-go/internal/domain"
)

type IDCommand struct {
	deps *Dependencies
}

func NewIDCommand(deps *Dependencies) *IDCommand {
	return &IDCommand{deps: deps}
}

func (c *IDCommand) Name() string {
	return "id"
}

func (c *IDCommand) Description() string {
	return "Shows chat and user identifiers"
}

func (c *IDCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event
	exec.Reply(c.deps.Formatter.FormatIDs(ev.ChatID, ev.UserID, ev.MessageID))
	return domain.Stop, nil
}

type WhoisCommand struct {
	deps *Dependencies
}

func NewWhoisCommand(deps *Dependencies) *WhoisCommand {
	return &WhoisCommand{deps: deps}
}

func (c *WhoisCommand) Name() string {
	return "whois"
}

func (c *WhoisCommand) Description() string {
	return "Shows a user's moderation record"
}

func (c *WhoisCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	target, _ := resolveTarget(ev)
	if target == 0 {
		target = ev.UserID
	}

	exec.Reply(c.deps.Formatter.FormatWhois(userLabel(ev, target), target, exec.State, c.deps.warnThreshold(), time.Now()))
	return domain.Stop, nil
}

type ChatStatsCommand struct {
	deps *Dependencies
}

func NewChatStatsCommand(deps *Dependencies) *ChatStatsCommand {
	return &ChatStatsCommand{deps: deps}
}

func (c *ChatStatsCommand) Name() string {
	return "stats"
}

func (c *ChatStatsCommand) Description() string {
	return "Shows chat activity rankings"
}

func (c *ChatStatsCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event
	st := exec.State

	var total int64
	entries := make([]adapter.StatEntry, 0, len(st.Stats))
	for userID, stats := range st.Stats {
		if stats == nil {
			continue
		}
		total += stats.Messages
		entries = append(entries, adapter.StatEntry{
			Name:     userLabel(ev, userID),
			Messages: stats.Messages,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Messages != entries[j].Messages {
			return entries[i].Messages > entries[j].Messages
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > 10 {
		entries = entries[:10]
	}

	exec.Reply(c.deps.Formatter.FormatChatStats(total, entries))
	return domain.Stop, nil
}
