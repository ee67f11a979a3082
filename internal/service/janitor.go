package service

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/state"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

// ActionEmitter accepts the unmute actions the janitor produces.
type ActionEmitter interface {
	Emit(action domain.OutboundAction)
}

// MuteJanitor sweeps persisted chat states for mutes whose window has
// passed, clears them and lifts the platform-side restriction. The
// platform expires restrictions on its own; the sweep keeps the
// store's view and the chat's actual permissions from drifting apart.
type MuteJanitor struct {
	store       *state.Store
	emitter     ActionEmitter
	interval    time.Duration
	concurrency int
	logger      *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

func NewMuteJanitor(store *state.Store, emitter ActionEmitter, logger *zap.Logger) *MuteJanitor {
	return &MuteJanitor{
		store:       store,
		emitter:     emitter,
		interval:    constants.JanitorConfig.SweepInterval,
		concurrency: constants.JanitorConfig.Concurrency,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx ends.
func (j *MuteJanitor) Start(ctx context.Context) {
	go func() {
		defer close(j.doneCh)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logger.Info("Mute janitor started",
			zap.Duration("interval", j.interval),
			zap.Int("concurrency", j.concurrency),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-j.stopCh:
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (j *MuteJanitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
	})
	<-j.doneCh
}

// Sweep scans every known chat once. Chats are processed on a bounded
// pool; a failing chat is logged and skipped.
func (j *MuteJanitor) Sweep(ctx context.Context) {
	chats, err := j.store.Chats(ctx)
	if err != nil {
		j.logger.Warn("Janitor could not list chats", zap.Error(err))
		return
	}
	if len(chats) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(j.concurrency)
	for _, chatID := range chats {
		chatID := chatID
		p.Go(func() {
			j.sweepChat(ctx, chatID)
		})
	}
	p.Wait()
}

func (j *MuteJanitor) sweepChat(ctx context.Context, chatID int64) {
	st, err := j.store.Read(ctx, chatID)
	if err != nil {
		j.logger.Warn("Janitor read failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	now := time.Now()
	expired := st.ExpiredMutes(now)
	if len(expired) == 0 {
		return
	}

	// Another lane may commit between the read and this mutation; a
	// version conflict just means the next sweep retries.
	next, err := j.store.Mutate(ctx, chatID, st.Version, "", func(working *domain.ChatState) error {
		for _, userID := range expired {
			if until, ok := working.MutedUntil[userID]; ok && !now.Before(until) {
				delete(working.MutedUntil, userID)
			}
		}
		return nil
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeVersionConflict) {
			j.logger.Debug("Janitor lost a mutation race", zap.Int64("chat_id", chatID))
		} else {
			j.logger.Warn("Janitor mutation failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return
	}

	for _, userID := range expired {
		if _, still := next.MutedUntil[userID]; still {
			continue
		}
		j.emitter.Emit(domain.NewRestrictUser(chatID, userID, domain.RestrictUnmute, time.Time{}))
	}

	j.logger.Info("Expired mutes cleared",
		zap.Int64("chat_id", chatID),
		zap.Int("count", len(expired)),
	)
}
