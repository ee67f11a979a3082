package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/state"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

// StateAccess is the slice of the chat state store that handlers
// mutate through.
type StateAccess interface {
	Read(ctx context.Context, chatID int64) (*domain.ChatState, error)
	Mutate(ctx context.Context, chatID, expected int64, opKey string, fn func(st *domain.ChatState) error) (*domain.ChatState, error)
}

// ActionEmitter accepts outbound actions for ordered delivery.
type ActionEmitter interface {
	Emit(action domain.OutboundAction)
}

// Execution is the per-handler view of one event. It carries the
// state snapshot the handler reasons about, runs optimistic mutations
// with bounded conflict retries, and buffers outbound actions so a
// failed handler leaves no visible trace.
type Execution struct {
	Event *domain.Event

	// State is the snapshot the handler works from. Mutate refreshes
	// it after every committed change and after every conflict retry.
	State *domain.ChatState

	store      StateAccess
	emitter    ActionEmitter
	handler    string
	maxRetries int
	step       int
	staged     []domain.OutboundAction
	logger     *zap.Logger
}

// NewExecution builds the execution context for one handler run.
func NewExecution(ev *domain.Event, snapshot *domain.ChatState, store StateAccess, emitter ActionEmitter, handler string, maxRetries int, logger *zap.Logger) *Execution {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Execution{
		Event:      ev,
		State:      snapshot,
		store:      store,
		emitter:    emitter,
		handler:    handler,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Mutate applies fn to the chat state under optimistic versioning.
// On a version conflict it re-reads the current state and re-applies
// fn, up to the configured retry budget. Each call carries its own
// idempotency key so a re-delivered event replays as a no-op instead
// of double-applying.
func (e *Execution) Mutate(ctx context.Context, fn func(st *domain.ChatState) error) error {
	step := e.step
	e.step++

	var opKey string
	if e.Event != nil && e.Event.MessageID != 0 {
		opKey = state.OpKey(e.Event.MessageID, e.handler, step)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			fresh, err := e.store.Read(ctx, e.Event.ChatID)
			if err != nil {
				return err
			}
			e.State = fresh
			e.logger.Debug("Retrying mutation after version conflict",
				zap.Int64("chat_id", e.Event.ChatID),
				zap.String("handler", e.handler),
				zap.Int("attempt", attempt),
				zap.Int64("version", fresh.Version),
			)
		}

		next, err := e.store.Mutate(ctx, e.Event.ChatID, e.State.Version, opKey, fn)
		if err == nil {
			e.State = next
			return nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Reply stages a plain text message to the event's chat.
func (e *Execution) Reply(text string) {
	if text == "" {
		return
	}
	e.Stage(domain.NewSendMessage(e.Event.ChatID, text))
}

// Stage buffers an action until the handler finishes cleanly.
func (e *Execution) Stage(action domain.OutboundAction) {
	e.staged = append(e.staged, action)
}

// Emit hands an action to the sink immediately, bypassing the stage
// buffer. Used for notices that should survive a failing handler.
func (e *Execution) Emit(action domain.OutboundAction) {
	if e.emitter != nil {
		e.emitter.Emit(action)
	}
}

// Staged returns the buffered actions in staging order.
func (e *Execution) Staged() []domain.OutboundAction {
	return e.staged
}

// Flush releases the staged actions to the sink in order. Called by
// the dispatcher after the handler returns without error.
func (e *Execution) Flush() {
	if e.emitter == nil {
		e.staged = nil
		return
	}
	for _, action := range e.staged {
		e.emitter.Emit(action)
	}
	e.staged = nil
}

// Discard drops the staged actions. Called by the dispatcher when the
// handler fails.
func (e *Execution) Discard() {
	if n := len(e.staged); n > 0 {
		e.logger.Debug("Discarding staged actions",
			zap.String("handler", e.handler),
			zap.Int("count", n),
		)
	}
	e.staged = nil
}
