package command

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/util"
)

type AskCommand struct {
	deps *Dependencies
}

func NewAskCommand(deps *Dependencies) *AskCommand {
	return &AskCommand{deps: deps}
}

func (c *AskCommand) Name() string {
	return "ai"
}

func (c *AskCommand) Description() string {
	return "Asks the assistant a question"
}

func (c *AskCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	question := strings.TrimSpace(ev.Text)
	if question == "" {
		exec.Reply(c.deps.Formatter.FormatUsage("ai <question>"))
		return domain.Stop, nil
	}
	if c.deps.AI == nil {
		exec.Reply(c.deps.Formatter.FormatError("The assistant is not configured."))
		return domain.Stop, nil
	}

	question = util.TruncateString(question, constants.AIInputLimits.MaxQueryLength)

	answer, err := c.deps.AI.Answer(ctx, question)
	if err != nil {
		c.deps.logger().Warn("Assistant request failed",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err),
		)
		exec.Reply(c.deps.Formatter.FormatDegraded("The assistant", err))
		return domain.Stop, nil
	}

	exec.Reply(c.deps.Formatter.FormatAnswer(answer))
	return domain.Stop, nil
}
