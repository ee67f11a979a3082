package command

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/kavik/groupwarden-go/internal/domain"
)

var slapPhrases = []string{
	"%s slaps %s with a large trout! 🐟",
	"%s slaps %s around a bit. 👋",
	"%s bonks %s on the head. 🔨",
}

var hugPhrases = []string{
	"%s gives %s a warm hug. 🤗",
	"%s wraps %s in a blanket of friendship. 🫂",
}

// funTarget names the recipient of a slap or hug: the replied-to
// user, the joined args, or the sender themselves.
func funTarget(ev *domain.Event) string {
	if ev.ReplyToUserID != 0 {
		return userLabel(ev, ev.ReplyToUserID)
	}
	if len(ev.Args) > 0 {
		return strings.Join(ev.Args, " ")
	}
	return "themselves"
}

type DiceCommand struct {
	deps *Dependencies
}

func NewDiceCommand(deps *Dependencies) *DiceCommand {
	return &DiceCommand{deps: deps}
}

func (c *DiceCommand) Name() string {
	return "dice"
}

func (c *DiceCommand) Description() string {
	return "Rolls a die"
}

func (c *DiceCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	sides := 6
	if len(exec.Event.Args) > 0 {
		if n, err := strconv.Atoi(exec.Event.Args[0]); err == nil && n >= 2 && n <= 1000 {
			sides = n
		}
	}

	roll := rand.IntN(sides) + 1
	exec.Reply(fmt.Sprintf("🎲 Rolled a d%d: %d", sides, roll))
	return domain.Stop, nil
}

type CoinCommand struct {
	deps *Dependencies
}

func NewCoinCommand(deps *Dependencies) *CoinCommand {
	return &CoinCommand{deps: deps}
}

func (c *CoinCommand) Name() string {
	return "coin"
}

func (c *CoinCommand) Description() string {
	return "Flips a coin"
}

func (c *CoinCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	face := "Heads"
	if rand.IntN(2) == 1 {
		face = "Tails"
	}
	exec.Reply(fmt.Sprintf("🪙 %s!", face))
	return domain.Stop, nil
}

type SlapCommand struct {
	deps *Dependencies
}

func NewSlapCommand(deps *Dependencies) *SlapCommand {
	return &SlapCommand{deps: deps}
}

func (c *SlapCommand) Name() string {
	return "slap"
}

func (c *SlapCommand) Description() string {
	return "Slaps someone, gently"
}

func (c *SlapCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event
	actor := userLabel(ev, ev.UserID)
	phrase := slapPhrases[rand.IntN(len(slapPhrases))]
	exec.Reply(fmt.Sprintf(phrase, actor, funTarget(ev)))
	return domain.Stop, nil
}

type HugCommand struct {
	deps *Dependencies
}

func NewHugCommand(deps *Dependencies) *HugCommand {
	return &HugCommand{deps: deps}
}

func (c *HugCommand) Name() string {
	return "hug"
}

func (c *HugCommand) Description() string {
	return "Hugs someone"
}

func (c *HugCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event
	actor := userLabel(ev, ev.UserID)
	phrase := hugPhrases[rand.IntN(len(hugPhrases))]
	exec.Reply(fmt.Sprintf(phrase, actor, funTarget(ev)))
	return domain.Stop, nil
}
