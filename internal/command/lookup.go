package command

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/util"
)

type WeatherCommand struct {
	deps *Dependencies
}

func NewWeatherCommand(deps *Dependencies) *WeatherCommand {
	return &WeatherCommand{deps: deps}
}

func (c *WeatherCommand) Name() string {
	return "weather"
}

func (c *WeatherCommand) Description() string {
	return "Shows current weather for a city"
}

func (c *WeatherCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	city := strings.TrimSpace(ev.Text)
	if city == "" {
		exec.Reply(c.deps.Formatter.FormatUsage("weather <city>"))
		return domain.Stop, nil
	}
	city = util.TruncateString(city, constants.StringLimits.CityQuery)

	report, err := c.deps.Weather.Current(ctx, city)
	if err != nil {
		c.deps.logger().Warn("Weather lookup failed",
			zap.String("city", city),
			zap.Error(err),
		)
		exec.Reply(c.deps.Formatter.FormatDegraded("The weather service", err))
		return domain.Stop, nil
	}

	exec.Reply(c.deps.Formatter.FormatWeather(report))
	return domain.Stop, nil
}

type DefineCommand struct {
	deps *Dependencies
}

func NewDefineCommand(deps *Dependencies) *DefineCommand {
	return &DefineCommand{deps: deps}
}

func (c *DefineCommand) Name() string {
	return "define"
}

func (c *DefineCommand) Description() string {
	return "Looks up a dictionary definition"
}

func (c *DefineCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if len(ev.Args) == 0 {
		exec.Reply(c.deps.Formatter.FormatUsage("define <word>"))
		return domain.Stop, nil
	}

	term := util.TruncateString(strings.ToLower(ev.Args[0]), constants.StringLimits.WordQuery)
	def, err := c.deps.Dictionary.Define(ctx, term)
	if err != nil {
		c.deps.logger().Warn("Definition lookup failed",
			zap.String("term", term),
			zap.Error(err),
		)
		exec.Reply(c.deps.Formatter.FormatDegraded("The dictionary", err))
		return domain.Stop, nil
	}

	exec.Reply(c.deps.Formatter.FormatDefinition(def))
	return domain.Stop, nil
}

type TranslateCommand struct {
	deps *Dependencies
}

func NewTranslateCommand(deps *Dependencies) *TranslateCommand {
	return &TranslateCommand{deps: deps}
}

func (c *TranslateCommand) Name() string {
	return "translate"
}

func (c *TranslateCommand) Description() string {
	return "Translates text into a target language"
}

func (c *TranslateCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if len(ev.Args) < 2 {
		exec.Reply(c.deps.Formatter.FormatUsage("translate <lang> <text>"))
		return domain.Stop, nil
	}

	target := strings.ToLower(ev.Args[0])
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ev.Text), ev.Args[0]))
	if text == "" {
		exec.Reply(c.deps.Formatter.FormatUsage("translate <lang> <text>"))
		return domain.Stop, nil
	}

	tr, err := c.deps.Translator.Translate(ctx, text, "auto", target)
	if err != nil {
		c.deps.logger().Warn("Translation failed",
			zap.String("target", target),
			zap.Error(err),
		)
		exec.Reply(c.deps.Formatter.FormatDegraded("The translator", err))
		return domain.Stop, nil
	}

	exec.Reply(c.deps.Formatter.FormatTranslation(tr))
	return domain.Stop, nil
}
