// Package dispatch turns normalized events into handler runs. Events
// for one chat execute strictly in arrival order on that chat's lane;
// different chats proceed independently under a global concurrency
// cap. A failing handler is isolated: its staged actions are
// discarded and the rest of the chain still runs.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/command"
	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/event"
	"github.com/kavik/groupwarden-go/internal/lane"
	"github.com/kavik/groupwarden-go/internal/state"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

// Config tunes dispatch behavior. Zero values fall back to the
// package defaults.
type Config struct {
	MaxConcurrent   int
	EventDeadline   time.Duration
	MutationRetries int
	LaneBuffer      int
	LaneIdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = constants.DispatchConfig.MaxConcurrent
	}
	if c.EventDeadline <= 0 {
		c.EventDeadline = constants.DispatchConfig.EventDeadline
	}
	if c.MutationRetries <= 0 {
		c.MutationRetries = constants.DispatchConfig.MaxMutationRetries
	}
	if c.LaneBuffer <= 0 {
		c.LaneBuffer = constants.DispatchConfig.LaneBuffer
	}
	if c.LaneIdleTimeout <= 0 {
		c.LaneIdleTimeout = constants.DispatchConfig.LaneIdleTimeout
	}
	return c
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Processed         int64
	HandlerFailures   int64
	DuplicatesSkipped int64
	Rejected          int64
	ActiveLanes       int
	PendingEvents     int
}

type Dispatcher struct {
	normalizer *event.Normalizer
	registry   *command.Registry
	store      *state.Store
	emitter    command.ActionEmitter
	config     Config
	lanes      *lane.Group[*domain.Event]
	sem        chan struct{}
	logger     *zap.Logger

	processed  atomic.Int64
	failures   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

func NewDispatcher(normalizer *event.Normalizer, registry *command.Registry, store *state.Store, emitter command.ActionEmitter, config Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()

	d := &Dispatcher{
		normalizer: normalizer,
		registry:   registry,
		store:      store,
		emitter:    emitter,
		config:     config,
		sem:        make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
	}
	d.lanes = lane.NewGroup[*domain.Event](config.LaneBuffer, config.LaneIdleTimeout, d.process, logger)
	return d
}

// Ingest normalizes one raw platform update and queues the resulting
// event. Malformed updates are counted and dropped.
func (d *Dispatcher) Ingest(raw []byte) {
	ev, err := d.normalizer.Normalize(raw)
	if err != nil {
		d.rejected.Add(1)
		d.logger.Warn("Rejected malformed update",
			zap.String("code", pkgerrors.CodeOf(err)),
			zap.Error(err),
		)
		return
	}
	d.Dispatch(ev)
}

// Dispatch queues an already normalized event onto its chat's lane.
func (d *Dispatcher) Dispatch(ev *domain.Event) {
	if ev == nil {
		return
	}
	if err := d.lanes.Submit(ev.ChatID, ev); err != nil {
		d.logger.Warn("Dropping event after shutdown",
			zap.Int64("chat_id", ev.ChatID),
			zap.String("kind", ev.Kind.String()),
		)
	}
}

// Shutdown stops intake and drains the queued events.
func (d *Dispatcher) Shutdown() {
	d.lanes.Close()
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Processed:         d.processed.Load(),
		HandlerFailures:   d.failures.Load(),
		DuplicatesSkipped: d.duplicates.Load(),
		Rejected:          d.rejected.Load(),
		ActiveLanes:       d.lanes.Len(),
		PendingEvents:     d.lanes.Pending(),
	}
}

// process runs one event through its handler chain. It executes on
// the chat's lane goroutine, so two events of one chat never overlap.
func (d *Dispatcher) process(chatID int64, ev *domain.Event) {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.EventDeadline)
	defer cancel()

	if ev.MessageID != 0 && d.store.EventSeen(ctx, chatID, ev.MessageID) {
		d.duplicates.Add(1)
		d.logger.Debug("Skipping already dispatched event",
			zap.Int64("chat_id", chatID),
			zap.Int64("message_id", ev.MessageID),
		)
		return
	}

	matched := d.registry.Resolve(ev)
	for i, desc := range matched {
		if ctx.Err() != nil {
			// Handlers the deadline never reached count as failed; the
			// counters must show the chain was truncated.
			skipped := len(matched) - i
			d.failures.Add(int64(skipped))
			d.logger.Warn("Event deadline exhausted mid-chain",
				zap.Int64("chat_id", chatID),
				zap.Int64("message_id", ev.MessageID),
				zap.Int("skipped_handlers", skipped),
			)
			break
		}
		if d.runHandler(ctx, desc, ev) == domain.Stop {
			break
		}
	}

	// The id is marked seen even when handlers failed: a redelivery
	// would replay the same failures, not fix them.
	if ev.MessageID != 0 {
		d.store.MarkEventSeen(ctx, chatID, ev.MessageID)
	}
	d.processed.Add(1)
}

// runHandler executes one handler against a fresh state snapshot.
// Failures discard the handler's staged actions and let the chain
// continue.
func (d *Dispatcher) runHandler(ctx context.Context, desc command.Descriptor, ev *domain.Event) domain.Outcome {
	handler := desc.Handler

	snapshot, err := d.store.Read(ctx, ev.ChatID)
	if err != nil {
		d.failures.Add(1)
		d.logger.Error("State read failed",
			zap.Int64("chat_id", ev.ChatID),
			zap.String("handler", handler.Name()),
			zap.Error(err),
		)
		return domain.Continue
	}

	exec := command.NewExecution(ev, snapshot, d.store, d.emitter, handler.Name(), d.config.MutationRetries, d.logger)

	outcome, err := d.invoke(ctx, handler, exec)
	if err != nil {
		exec.Discard()
		d.failures.Add(1)

		code := pkgerrors.CodeOf(err)
		if ctx.Err() == context.DeadlineExceeded {
			code = pkgerrors.CodeDeadlineExceeded
		}
		d.logger.Error("Handler failed",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("message_id", ev.MessageID),
			zap.String("handler", handler.Name()),
			zap.String("code", code),
			zap.Error(err),
		)
		return domain.Continue
	}

	exec.Flush()
	return outcome
}

// invoke calls the handler with panic containment.
func (d *Dispatcher) invoke(ctx context.Context, handler command.Handler, exec *command.Execution) (outcome domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Continue
			err = pkgerrors.New(pkgerrors.CodeHandlerFault, fmt.Sprintf("handler panic: %v", r))
			d.logger.Error("Handler panicked",
				zap.String("handler", handler.Name()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	return handler.Execute(ctx, exec)
}
