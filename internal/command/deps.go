package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/adapter"
	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
)

// WeatherProvider returns current conditions for a city.
type WeatherProvider interface {
	Current(ctx context.Context, city string) (*domain.WeatherReport, error)
}

// DefinitionProvider looks up dictionary definitions.
type DefinitionProvider interface {
	Define(ctx context.Context, term string) (*domain.Definition, error)
}

// TranslationProvider translates text between languages.
type TranslationProvider interface {
	Translate(ctx context.Context, text, source, target string) (*domain.Translation, error)
}

// AnswerProvider produces a short answer to a free-form question.
type AnswerProvider interface {
	Answer(ctx context.Context, question string) (string, error)
}

// AdminChecker reports whether a user administers a chat.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Dependencies carries the shared services handlers draw on. All
// external lookups go through the gateway-backed providers so handler
// code never touches transport directly.
type Dependencies struct {
	Weather    WeatherProvider
	Dictionary DefinitionProvider
	Translator TranslationProvider
	AI         AnswerProvider
	Admins     AdminChecker
	Formatter  *adapter.ResponseFormatter

	BotName       string
	Prefix        string
	WarnThreshold int
	DefaultMute   time.Duration

	Logger *zap.Logger
}

// logger returns the configured logger or a nop fallback.
func (d *Dependencies) logger() *zap.Logger {
	if d == nil || d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// warnThreshold returns the configured warn limit with a sane default.
func (d *Dependencies) warnThreshold() int {
	if d != nil && d.WarnThreshold > 0 {
		return d.WarnThreshold
	}
	return constants.ModerationConfig.WarnThreshold
}

// defaultMute returns the mute duration used when none is given.
func (d *Dependencies) defaultMute() time.Duration {
	if d != nil && d.DefaultMute > 0 {
		return d.DefaultMute
	}
	return constants.ModerationConfig.DefaultMuteDuration
}

// isAdmin runs the admin check and treats lookup failures as not
// admin so moderation commands fail closed.
func (d *Dependencies) isAdmin(ctx context.Context, chatID, userID int64) bool {
	if d.Admins == nil {
		return false
	}
	ok, err := d.Admins.IsAdmin(ctx, chatID, userID)
	if err != nil {
		d.logger().Warn("Admin check failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return ok
}
