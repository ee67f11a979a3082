package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/platform"
)

// Bot ties the update feed to the dispatcher and owns the runtime
// lifecycle: connect, serve, drain, disconnect.
type Bot struct {
	container   *Container
	logger      *zap.Logger
	unsubscribe func()
	failed      chan struct{}
	failOnce    sync.Once
	stopOnce    sync.Once
}

func newBot(c *Container) *Bot {
	return &Bot{
		container: c,
		logger:    c.Logger,
		failed:    make(chan struct{}),
	}
}

// Failed is closed when the update feed exhausts its reconnect
// attempts. The process has nothing left to serve at that point and
// should drain and exit.
func (b *Bot) Failed() <-chan struct{} {
	return b.failed
}

// Start connects the update feed and begins dispatching. It returns
// once the feed is up; dispatch runs on the lane goroutines.
func (b *Bot) Start(ctx context.Context) error {
	c := b.container

	b.unsubscribe = c.Feed.OnUpdate(func(data []byte) {
		c.Dispatcher.Ingest(data)
	})
	c.Feed.OnStateChange(func(state platform.FeedState) {
		b.logger.Info("Update feed state changed", zap.String("state", state.String()))
		if state == platform.FeedStateFailed {
			b.failOnce.Do(func() { close(b.failed) })
		}
	})

	if err := c.Feed.Connect(ctx); err != nil {
		return err
	}

	c.Janitor.Start(ctx)

	b.logger.Info("Bot serving updates")
	return nil
}

// Shutdown drains in order: stop intake, finish queued events, flush
// outbound actions, then release infrastructure.
func (b *Bot) Shutdown(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		c := b.container

		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		err = c.Feed.Disconnect()

		c.Janitor.Stop()
		c.Dispatcher.Shutdown()
		c.Sink.Close()
		c.Close()

		stats := c.Dispatcher.Stats()
		b.logger.Info("Bot stopped",
			zap.Int64("events_processed", stats.Processed),
			zap.Int64("handler_failures", stats.HandlerFailures),
			zap.Int64("duplicates_skipped", stats.DuplicatesSkipped),
			zap.Int64("actions_delivered", c.Sink.Delivered()),
		)
	})
	return err
}
