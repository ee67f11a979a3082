package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/util"
)

// errNoChange aborts a mutation whose precondition no longer holds,
// leaving the version untouched.
var errNoChange = errors.New("no change")

// resolveTarget picks the moderation target from the replied-to user
// or a leading numeric argument. The remaining args carry reason or
// duration text.
func resolveTarget(ev *domain.Event) (int64, []string) {
	if ev.ReplyToUserID != 0 {
		return ev.ReplyToUserID, ev.Args
	}
	if len(ev.Args) > 0 {
		raw := strings.TrimPrefix(ev.Args[0], "@")
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id, ev.Args[1:]
		}
	}
	return 0, ev.Args
}

// userLabel names a user for replies. Only the sender's display name
// travels with the event, so other users fall back to their id.
func userLabel(ev *domain.Event, userID int64) string {
	if userID == ev.UserID && ev.SenderName != "" {
		return ev.SenderName
	}
	return fmt.Sprintf("user %d", userID)
}

type WarnCommand struct {
	deps *Dependencies
}

func NewWarnCommand(deps *Dependencies) *WarnCommand {
	return &WarnCommand{deps: deps}
}

func (c *WarnCommand) Name() string {
	return "warn"
}

func (c *WarnCommand) Description() string {
	return "Warns a user; enough warnings removes them"
}

func (c *WarnCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, rest := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}
	if target == ev.UserID {
		exec.Reply(c.deps.Formatter.FormatError("You cannot moderate yourself."))
		return domain.Stop, nil
	}

	threshold := c.deps.warnThreshold()
	reason := strings.Join(rest, " ")

	var (
		ran    bool
		count  int
		kicked bool
	)
	err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		ran = true
		st.Warnings[target]++
		count = st.Warnings[target]
		if count >= threshold {
			// The kick resets the slate so a rejoin starts clean.
			delete(st.Warnings, target)
			kicked = true
		}
		return nil
	})
	if err != nil {
		return domain.Continue, err
	}

	label := userLabel(ev, target)
	if !ran {
		// Replayed delivery: the warning already committed.
		exec.Reply(c.deps.Formatter.FormatWarnCount(label, exec.State.Warnings[target], threshold))
		return domain.Stop, nil
	}

	if kicked {
		exec.Stage(domain.NewRestrictUser(ev.ChatID, target, domain.RestrictKick, time.Time{}))
		exec.Reply(c.deps.Formatter.FormatWarnLimitKick(label, threshold))
		c.deps.logger().Info("User removed at warn limit",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("user_id", target),
			zap.Int("threshold", threshold),
		)
	} else {
		exec.Reply(c.deps.Formatter.FormatWarned(label, count, threshold, reason))
	}
	return domain.Stop, nil
}

type UnwarnCommand struct {
	deps *Dependencies
}

func NewUnwarnCommand(deps *Dependencies) *UnwarnCommand {
	return &UnwarnCommand{deps: deps}
}

func (c *UnwarnCommand) Name() string {
	return "unwarn"
}

func (c *UnwarnCommand) Description() string {
	return "Removes one warning from a user"
}

func (c *UnwarnCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, _ := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}

	var remaining int
	err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		if st.Warnings[target] == 0 {
			return errNoChange
		}
		st.Warnings[target]--
		remaining = st.Warnings[target]
		if remaining == 0 {
			delete(st.Warnings, target)
		}
		return nil
	})

	label := userLabel(ev, target)
	switch {
	case errors.Is(err, errNoChange):
		exec.Reply(c.deps.Formatter.FormatNoWarnings(label))
	case err != nil:
		return domain.Continue, err
	default:
		exec.Reply(c.deps.Formatter.FormatUnwarned(label, remaining))
	}
	return domain.Stop, nil
}

type WarnsCommand struct {
	deps *Dependencies
}

func NewWarnsCommand(deps *Dependencies) *WarnsCommand {
	return &WarnsCommand{deps: deps}
}

func (c *WarnsCommand) Name() string {
	return "warns"
}

func (c *WarnsCommand) Description() string {
	return "Shows a user's warning count"
}

func (c *WarnsCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	target, _ := resolveTarget(ev)
	if target == 0 {
		target = ev.UserID
	}

	label := userLabel(ev, target)
	count := exec.State.Warnings[target]
	if count == 0 {
		exec.Reply(c.deps.Formatter.FormatNoWarnings(label))
	} else {
		exec.Reply(c.deps.Formatter.FormatWarnCount(label, count, c.deps.warnThreshold()))
	}
	return domain.Stop, nil
}

type MuteCommand struct {
	deps *Dependencies
}

func NewMuteCommand(deps *Dependencies) *MuteCommand {
	return &MuteCommand{deps: deps}
}

func (c *MuteCommand) Name() string {
	return "mute"
}

func (c *MuteCommand) Description() string {
	return "Mutes a user for a duration"
}

func (c *MuteCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, rest := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}
	if target == ev.UserID {
		exec.Reply(c.deps.Formatter.FormatError("You cannot moderate yourself."))
		return domain.Stop, nil
	}

	duration := c.deps.defaultMute()
	if len(rest) > 0 {
		parsed, err := util.ParseModDuration(rest[0])
		if err != nil {
			exec.Reply(c.deps.Formatter.FormatUsage("mute [reply|id] [duration, e.g. 30m 2h 7d]"))
			return domain.Stop, nil
		}
		duration = parsed
	}
	if duration > constants.ModerationConfig.MaxMuteDuration {
		duration = constants.ModerationConfig.MaxMuteDuration
	}

	until := time.Now().Add(duration)
	if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		st.MutedUntil[target] = until
		return nil
	}); err != nil {
		return domain.Continue, err
	}

	exec.Stage(domain.NewRestrictUser(ev.ChatID, target, domain.RestrictMute, until))
	exec.Reply(c.deps.Formatter.FormatMuted(userLabel(ev, target), duration))
	return domain.Stop, nil
}

type UnmuteCommand struct {
	deps *Dependencies
}

func NewUnmuteCommand(deps *Dependencies) *UnmuteCommand {
	return &UnmuteCommand{deps: deps}
}

func (c *UnmuteCommand) Name() string {
	return "unmute"
}

func (c *UnmuteCommand) Description() string {
	return "Lifts a user's mute"
}

func (c *UnmuteCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, _ := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}

	err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		if _, ok := st.MutedUntil[target]; !ok {
			return errNoChange
		}
		delete(st.MutedUntil, target)
		return nil
	})

	label := userLabel(ev, target)
	switch {
	case errors.Is(err, errNoChange):
		exec.Reply(c.deps.Formatter.FormatError(fmt.Sprintf("%s is not muted.", label)))
	case err != nil:
		return domain.Continue, err
	default:
		exec.Stage(domain.NewRestrictUser(ev.ChatID, target, domain.RestrictUnmute, time.Time{}))
		exec.Reply(c.deps.Formatter.FormatUnmuted(label))
	}
	return domain.Stop, nil
}

type BanCommand struct {
	deps *Dependencies
}

func NewBanCommand(deps *Dependencies) *BanCommand {
	return &BanCommand{deps: deps}
}

func (c *BanCommand) Name() string {
	return "ban"
}

func (c *BanCommand) Description() string {
	return "Bans a user from the chat"
}

func (c *BanCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, _ := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}
	if target == ev.UserID {
		exec.Reply(c.deps.Formatter.FormatError("You cannot moderate yourself."))
		return domain.Stop, nil
	}

	if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		st.Banned[target] = struct{}{}
		delete(st.Warnings, target)
		delete(st.MutedUntil, target)
		return nil
	}); err != nil {
		return domain.Continue, err
	}

	exec.Stage(domain.NewRestrictUser(ev.ChatID, target, domain.RestrictBan, time.Time{}))
	exec.Reply(c.deps.Formatter.FormatBanned(userLabel(ev, target)))
	return domain.Stop, nil
}

type UnbanCommand struct {
	deps *Dependencies
}

func NewUnbanCommand(deps *Dependencies) *UnbanCommand {
	return &UnbanCommand{deps: deps}
}

func (c *UnbanCommand) Name() string {
	return "unban"
}

func (c *UnbanCommand) Description() string {
	return "Lifts a user's ban"
}

func (c *UnbanCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, _ := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}

	err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		if _, ok := st.Banned[target]; !ok {
			return errNoChange
		}
		delete(st.Banned, target)
		return nil
	})

	label := userLabel(ev, target)
	switch {
	case errors.Is(err, errNoChange):
		exec.Reply(c.deps.Formatter.FormatError(fmt.Sprintf("%s is not banned.", label)))
	case err != nil:
		return domain.Continue, err
	default:
		exec.Stage(domain.NewRestrictUser(ev.ChatID, target, domain.RestrictUnban, time.Time{}))
		exec.Reply(c.deps.Formatter.FormatUnbanned(label))
	}
	return domain.Stop, nil
}

type KickCommand struct {
	deps *Dependencies
}

func NewKickCommand(deps *Dependencies) *KickCommand {
	return &KickCommand{deps: deps}
}

func (c *KickCommand) Name() string {
	return "kick"
}

func (c *KickCommand) Description() string {
	return "Removes a user without banning them"
}

func (c *KickCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	target, _ := resolveTarget(ev)
	if target == 0 {
		exec.Reply(c.deps.Formatter.FormatNoTarget())
		return domain.Stop, nil
	}
	if target == ev.UserID {
		exec.Reply(c.deps.Formatter.FormatError("You cannot moderate yourself."))
		return domain.Stop, nil
	}

	exec.Stage(domain.NewRestrictUser(ev.ChatID, target, domain.RestrictKick, time.Time{}))
	exec.Reply(c.deps.Formatter.FormatKicked(userLabel(ev, target)))
	return domain.Stop, nil
}
