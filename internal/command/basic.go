package command

import (
	"context"
	"strings"

	"github.com/kavik/groupwarden-go/internal/domain"
)

type StartCommand struct {
	deps *Dependencies
}

func NewStartCommand(deps *Dependencies) *StartCommand {
	return &StartCommand{deps: deps}
}

func (c *StartCommand) Name() string {
	return "start"
}

func (c *StartCommand) Description() string {
	return "Introduces the bot"
}

func (c *StartCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	exec.Reply(c.deps.Formatter.FormatStart(c.deps.BotName))
	return domain.Stop, nil
}

type HelpCommand struct {
	deps *Dependencies
}

func NewHelpCommand(deps *Dependencies) *HelpCommand {
	return &HelpCommand{deps: deps}
}

func (c *HelpCommand) Name() string {
	return "help"
}

func (c *HelpCommand) Description() string {
	return "Shows the command list"
}

func (c *HelpCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	exec.Reply(c.deps.Formatter.FormatHelp())
	return domain.Stop, nil
}

type PingCommand struct {
	deps *Dependencies
}

func NewPingCommand(deps *Dependencies) *PingCommand {
	return &PingCommand{deps: deps}
}

func (c *PingCommand) Name() string {
	return "ping"
}

func (c *PingCommand) Description() string {
	return "Checks that the bot is alive"
}

func (c *PingCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	exec.Reply(c.deps.Formatter.FormatPing())
	return domain.Stop, nil
}

type RulesCommand struct {
	deps *Dependencies
}

func NewRulesCommand(deps *Dependencies) *RulesCommand {
	return &RulesCommand{deps: deps}
}

func (c *RulesCommand) Name() string {
	return "rules"
}

func (c *RulesCommand) Description() string {
	return "Shows the chat rules"
}

func (c *RulesCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	exec.Reply(c.deps.Formatter.FormatRules(exec.State.Rules))
	return domain.Stop, nil
}

type SetRulesCommand struct {
	deps *Dependencies
}

func NewSetRulesCommand(deps *Dependencies) *SetRulesCommand {
	return &SetRulesCommand{deps: deps}
}

func (c *SetRulesCommand) Name() string {
	return "setrules"
}

func (c *SetRulesCommand) Description() string {
	return "Sets the chat rules"
}

func (c *SetRulesCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	rules := strings.TrimSpace(ev.Text)
	if rules == "" {
		exec.Reply(c.deps.Formatter.FormatUsage("setrules <text>"))
		return domain.Stop, nil
	}

	if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		st.Rules = rules
		return nil
	}); err != nil {
		return domain.Continue, err
	}

	exec.Reply(c.deps.Formatter.FormatRulesSet())
	return domain.Stop, nil
}
