// Package sink delivers outbound actions to the chat platform.
// Actions for one chat leave in the order they were accepted; chats
// do not block each other. Delivery is at least once: a failed
// attempt is retried, then logged and dropped so one bad action
// cannot wedge a chat's queue.
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/lane"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

// PlatformClient is the slice of the bot API the sink delivers
// through.
type PlatformClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	RestrictUser(ctx context.Context, chatID, userID int64, mode domain.RestrictMode, until time.Time) error
}

// Config tunes delivery behavior. Zero values fall back to the
// package defaults.
type Config struct {
	Attempts        int
	RetryDelay      time.Duration
	DeliveryTimeout time.Duration
	LaneBuffer      int
	LaneIdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = constants.SinkConfig.DeliveryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = constants.SinkConfig.RetryDelay
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = constants.SinkConfig.DeliveryTimeout
	}
	if c.LaneBuffer <= 0 {
		c.LaneBuffer = constants.SinkConfig.LaneBuffer
	}
	if c.LaneIdleTimeout <= 0 {
		c.LaneIdleTimeout = constants.SinkConfig.LaneIdleTimeout
	}
	return c
}

// Sink queues outbound actions per chat and delivers them in order.
type Sink struct {
	client PlatformClient
	config Config
	lanes  *lane.Group[domain.OutboundAction]
	logger *zap.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewSink(client PlatformClient, config Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()

	s := &Sink{
		client: client,
		config: config,
		logger: logger,
	}
	s.lanes = lane.NewGroup[domain.OutboundAction](config.LaneBuffer, config.LaneIdleTimeout, s.deliver, logger)
	return s
}

// Emit queues an action onto its chat's lane. Actions with no chat id
// are dropped.
func (s *Sink) Emit(action domain.OutboundAction) {
	if action.ChatID == 0 {
		s.dropped.Add(1)
		s.logger.Warn("Dropping action without chat id", zap.String("kind", action.Kind.String()))
		return
	}
	if err := s.lanes.Submit(action.ChatID, action); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("Dropping action after shutdown",
			zap.Int64("chat_id", action.ChatID),
			zap.String("kind", action.Kind.String()),
		)
	}
}

// Close drains the queued actions and stops the lanes.
func (s *Sink) Close() {
	s.lanes.Close()
}

// Delivered returns the number of successfully delivered actions.
func (s *Sink) Delivered() int64 {
	return s.delivered.Load()
}

// Dropped returns the number of actions abandoned after retries.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) deliver(chatID int64, action domain.OutboundAction) {
	var lastErr error
	for attempt := 1; attempt <= s.config.Attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(s.config.RetryDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.config.DeliveryTimeout)
		err := s.perform(ctx, action)
		cancel()

		if err == nil {
			s.delivered.Add(1)
			return
		}
		lastErr = err

		// Rate limits outlast the retry budget; give up immediately
		// and let the next actions take their chances.
		if pkgerrors.HasCode(err, pkgerrors.CodeRateLimited) {
			break
		}
	}

	s.dropped.Add(1)
	s.logger.Error("Dropping undeliverable action",
		zap.Int64("chat_id", chatID),
		zap.String("kind", action.Kind.String()),
		zap.Int("attempts", s.config.Attempts),
		zap.Error(lastErr),
	)
}

func (s *Sink) perform(ctx context.Context, action domain.OutboundAction) error {
	switch action.Kind {
	case domain.ActionSendMessage:
		return s.client.SendMessage(ctx, action.ChatID, action.Text)
	case domain.ActionDeleteMessage:
		return s.client.DeleteMessage(ctx, action.ChatID, action.MessageID)
	case domain.ActionRestrictUser:
		return s.client.RestrictUser(ctx, action.ChatID, action.UserID, action.Mode, action.Until)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown action kind "+action.Kind.String())
	}
}
