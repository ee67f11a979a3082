package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/adapter"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/state"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

type captureEmitter struct {
	actions []domain.OutboundAction
}

func (e *captureEmitter) Emit(action domain.OutboundAction) {
	e.actions = append(e.actions, action)
}

func (e *captureEmitter) texts() []string {
	var out []string
	for _, a := range e.actions {
		if a.Kind == domain.ActionSendMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

type fakeAdmins struct {
	admins map[int64]bool
	err    error
}

func (f *fakeAdmins) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.admins[userID], nil
}

type fakeWeather struct {
	report *domain.WeatherReport
	err    error
}

func (f *fakeWeather) Current(ctx context.Context, city string) (*domain.WeatherReport, error) {
	return f.report, f.err
}

// conflictingStore forces a number of version conflicts before
// delegating to the real store.
type conflictingStore struct {
	inner     *state.Store
	conflicts int
}

func (s *conflictingStore) Read(ctx context.Context, chatID int64) (*domain.ChatState, error) {
	return s.inner.Read(ctx, chatID)
}

func (s *conflictingStore) Mutate(ctx context.Context, chatID, expected int64, opKey string, fn func(st *domain.ChatState) error) (*domain.ChatState, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return nil, pkgerrors.NewVersionConflict(chatID, expected)
	}
	return s.inner.Mutate(ctx, chatID, expected, opKey, fn)
}

func newTestStore() *state.Store {
	return state.NewStore(state.NewMemoryBackend(), state.NewMemoryDedup(time.Hour, 128), zap.NewNop())
}

func newTestDeps(adminIDs ...int64) *Dependencies {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Dependencies{
		Admins:        &fakeAdmins{admins: admins},
		Formatter:     adapter.NewResponseFormatter("/"),
		BotName:       "testbot",
		Prefix:        "/",
		WarnThreshold: 3,
		DefaultMute:   time.Hour,
		Logger:        zap.NewNop(),
	}
}

func commandEvent(chatID, userID, messageID int64, cmd string, args ...string) *domain.Event {
	return &domain.Event{
		ChatID:     chatID,
		UserID:     userID,
		MessageID:  messageID,
		Kind:       domain.KindCommand,
		Command:    cmd,
		Args:       args,
		Text:       strings.Join(args, " "),
		ReceivedAt: time.Now(),
	}
}

func messageEvent(chatID, userID, messageID int64, text string) *domain.Event {
	return &domain.Event{
		ChatID:     chatID,
		UserID:     userID,
		MessageID:  messageID,
		Kind:       domain.KindMessage,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

// newExec reads the current snapshot and builds an execution the way
// the dispatcher does before invoking a handler.
func newExec(t *testing.T, store StateAccess, emitter ActionEmitter, ev *domain.Event, handler string) *Execution {
	t.Helper()
	snapshot, err := store.Read(context.Background(), ev.ChatID)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return NewExecution(ev, snapshot, store, emitter, handler, 3, zap.NewNop())
}

// runHandler executes a handler and flushes or discards its staged
// actions the way the dispatcher would.
func runHandler(t *testing.T, h Handler, exec *Execution) (domain.Outcome, error) {
	t.Helper()
	outcome, err := h.Execute(context.Background(), exec)
	if err != nil {
		exec.Discard()
		return outcome, err
	}
	exec.Flush()
	return outcome, nil
}
