package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/adapter"
	"github.com/kavik/groupwarden-go/internal/command"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/event"
	"github.com/kavik/groupwarden-go/internal/platform"
	"github.com/kavik/groupwarden-go/internal/state"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

type captureSink struct {
	mu      sync.Mutex
	actions []domain.OutboundAction
}

func (s *captureSink) Emit(action domain.OutboundAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
}

func (s *captureSink) snapshot() []domain.OutboundAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboundAction, len(s.actions))
	copy(out, s.actions)
	return out
}

func (s *captureSink) messages() []string {
	var out []string
	for _, a := range s.snapshot() {
		if a.Kind == domain.ActionSendMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

type allowAdmins struct{}

func (allowAdmins) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return true, nil
}

type funcHandler struct {
	name string
	fn   func(ctx context.Context, exec *command.Execution) (domain.Outcome, error)
}

func (h *funcHandler) Name() string {
	return h.name
}

func (h *funcHandler) Description() string {
	return "test handler"
}

func (h *funcHandler) Execute(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
	return h.fn(ctx, exec)
}

func newTestStore() *state.Store {
	return state.NewStore(state.NewMemoryBackend(), state.NewMemoryDedup(time.Hour, 512), zap.NewNop())
}

func fullRegistry(t *testing.T) *command.Registry {
	t.Helper()
	deps := &command.Dependencies{
		Admins:        allowAdmins{},
		Formatter:     adapter.NewResponseFormatter("/"),
		BotName:       "testbot",
		Prefix:        "/",
		WarnThreshold: 3,
		Logger:        zap.NewNop(),
	}
	reg := command.NewRegistry()
	if err := command.RegisterAll(reg, deps); err != nil {
		t.Fatalf("register all: %v", err)
	}
	reg.Freeze()
	return reg
}

func newTestDispatcher(t *testing.T, reg *command.Registry, store *state.Store, sink command.ActionEmitter) *Dispatcher {
	t.Helper()
	return NewDispatcher(event.NewNormalizer("/"), reg, store, sink, Config{
		MaxConcurrent:   8,
		EventDeadline:   5 * time.Second,
		MutationRetries: 3,
		LaneBuffer:      64,
		LaneIdleTimeout: time.Minute,
	}, zap.NewNop())
}

func waitStats(t *testing.T, d *Dispatcher, what string, cond func(Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond(d.Stats()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %+v", what, d.Stats())
		}
		time.Sleep(5 * time.Millisecond)
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

func TestWarnCommandEndToEnd(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}
	d := newTestDispatcher(t, fullRegistry(t), store, sink)
	defer d.Shutdown()

	d.Dispatch(commandEvent(555, 2, 42, "warn", "7"))
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	st, err := store.Read(context.Background(), 555)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if st.Version != 1 {
		t.Fatalf("expected exactly one committed mutation, version=%d", st.Version)
	}
	if st.Warnings[7] != 1 {
		t.Fatalf("expected warnings[7]=1, got %v", st.Warnings)
	}

	msgs := sink.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "1/3") {
		t.Fatalf("expected a single warn confirmation, got %v", msgs)
	}

	if !store.EventSeen(context.Background(), 555, 42) {
		t.Fatal("expected the message id marked as dispatched")
	}
}

func TestDuplicateDeliveryEmitsNothing(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}
	d := newTestDispatcher(t, fullRegistry(t), store, sink)
	defer d.Shutdown()

	d.Dispatch(commandEvent(555, 2, 42, "warn", "7"))
	waitStats(t, d, "first delivery", func(s Stats) bool { return s.Processed == 1 })

	// Same platform message id delivered again.
	d.Dispatch(commandEvent(555, 2, 42, "warn", "7"))
	waitStats(t, d, "duplicate skip", func(s Stats) bool { return s.DuplicatesSkipped == 1 })

	st, _ := store.Read(context.Background(), 555)
	if st.Version != 1 || st.Warnings[7] != 1 {
		t.Fatalf("duplicate must not re-apply, version=%d warnings=%v", st.Version, st.Warnings)
	}
	if msgs := sink.messages(); len(msgs) != 1 {
		t.Fatalf("duplicate must not emit, got %v", msgs)
	}
}

func TestFailingHandlerDoesNotPoisonChain(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	reg := command.NewRegistry()
	mustRegister := func(desc command.Descriptor) {
		t.Helper()
		if err := reg.Register(desc); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	mustRegister(command.Descriptor{
		Handler: &funcHandler{name: "flaky", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			exec.Reply("should never be seen")
			if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
				st.Warnings[1] = 99
				return nil
			}); err != nil {
				return domain.Continue, err
			}
			return domain.Continue, pkgerrors.New(pkgerrors.CodeUpstreamError, "flaky blew up")
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	})
	mustRegister(command.Descriptor{
		Handler: &funcHandler{name: "steady", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
				st.Notes["ok"] = "yes"
				return nil
			}); err != nil {
				return domain.Continue, err
			}
			exec.Reply("steady done")
			return domain.Continue, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 50,
	})
	reg.Freeze()

	d := newTestDispatcher(t, reg, store, sink)
	defer d.Shutdown()

	d.Dispatch(&domain.Event{ChatID: 9, UserID: 3, MessageID: 77, Kind: domain.KindMessage, Text: "hi"})
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	if got := d.Stats().HandlerFailures; got != 1 {
		t.Fatalf("expected one handler failure, got %d", got)
	}

	msgs := sink.messages()
	if len(msgs) != 1 || msgs[0] != "steady done" {
		t.Fatalf("failed handler's reply must be discarded, got %v", msgs)
	}

	st, _ := store.Read(context.Background(), 9)
	if st.Notes["ok"] != "yes" {
		t.Fatal("the healthy handler's mutation should have committed")
	}
	// The failed handler's mutation committed before the failure; the
	// staged reply did not. State changes are not rolled back.
	if st.Warnings[1] != 99 {
		t.Fatalf("committed mutations survive handler failure, got %v", st.Warnings)
	}
}

func TestStopConsumesRestOfChain(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	var lowRan bool
	var mu sync.Mutex

	reg := command.NewRegistry()
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "stopper", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			return domain.Stop, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "low", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			mu.Lock()
			lowRan = true
			mu.Unlock()
			return domain.Continue, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 10,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	d := newTestDispatcher(t, reg, store, sink)
	defer d.Shutdown()

	d.Dispatch(&domain.Event{ChatID: 9, UserID: 3, MessageID: 78, Kind: domain.KindMessage, Text: "hi"})
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	mu.Lock()
	defer mu.Unlock()
	if lowRan {
		t.Fatal("Stop must consume the event before lower priorities")
	}
}

func TestDeadlineTruncationCountsSkippedHandlers(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	var lateRan bool
	var mu sync.Mutex

	reg := command.NewRegistry()
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "slow", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			<-ctx.Done()
			return domain.Continue, ctx.Err()
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "late", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			mu.Lock()
			lateRan = true
			mu.Unlock()
			return domain.Continue, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 10,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	d := NewDispatcher(event.NewNormalizer("/"), reg, store, sink, Config{
		MaxConcurrent:   8,
		EventDeadline:   30 * time.Millisecond,
		MutationRetries: 3,
		LaneBuffer:      64,
		LaneIdleTimeout: time.Minute,
	}, zap.NewNop())
	defer d.Shutdown()

	d.Dispatch(&domain.Event{ChatID: 9, UserID: 3, MessageID: 79, Kind: domain.KindMessage, Text: "hi"})
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	mu.Lock()
	ran := lateRan
	mu.Unlock()
	if ran {
		t.Fatal("handler past the deadline must not run")
	}
	// One failure for the slow handler, one for the handler the
	// deadline never reached.
	if got := d.Stats().HandlerFailures; got != 2 {
		t.Fatalf("truncated chain not reflected in failures, got %d want 2", got)
	}
}

func TestPanickingHandlerIsContained(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	reg := command.NewRegistry()
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "bomb", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			panic("boom")
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "after", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			exec.Reply("survived")
			return domain.Continue, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 50,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	d := newTestDispatcher(t, reg, store, sink)
	defer d.Shutdown()

	d.Dispatch(&domain.Event{ChatID: 9, UserID: 3, MessageID: 79, Kind: domain.KindMessage, Text: "hi"})
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	if got := d.Stats().HandlerFailures; got != 1 {
		t.Fatalf("expected the panic counted as a failure, got %d", got)
	}
	if msgs := sink.messages(); len(msgs) != 1 || msgs[0] != "survived" {
		t.Fatalf("the chain should continue past a panic, got %v", msgs)
	}
}

func TestEventsOfOneChatStayOrdered(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	var mu sync.Mutex
	perChat := make(map[int64][]string)

	reg := command.NewRegistry()
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "recorder", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			mu.Lock()
			perChat[exec.Event.ChatID] = append(perChat[exec.Event.ChatID], exec.Event.Text)
			mu.Unlock()
			return domain.Continue, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	d := newTestDispatcher(t, reg, store, sink)
	defer d.Shutdown()

	const perChatEvents = 15
	var msgID int64
	for i := 0; i < perChatEvents; i++ {
		for _, chatID := range []int64{1, 2, 3} {
			msgID++
			d.Dispatch(&domain.Event{
				ChatID:    chatID,
				UserID:    5,
				MessageID: msgID,
				Kind:      domain.KindMessage,
				Text:      fmt.Sprintf("m%d", i),
			})
		}
	}

	waitStats(t, d, "all events", func(s Stats) bool { return s.Processed == perChatEvents*3 })

	mu.Lock()
	defer mu.Unlock()
	for chatID, got := range perChat {
		for i, text := range got {
			if want := fmt.Sprintf("m%d", i); text != want {
				t.Fatalf("chat %d order broken at %d: got %q want %q", chatID, i, text, want)
			}
		}
	}
}

func TestConcurrentWriterTriggersRetry(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	// The handler bumps the version out of band between its snapshot
	// and its mutation, forcing one conflict retry.
	var bumped bool
	reg := command.NewRegistry()
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "racer", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			if !bumped {
				bumped = true
				current, err := store.Read(ctx, exec.Event.ChatID)
				if err != nil {
					return domain.Continue, err
				}
				if _, err := store.Mutate(ctx, exec.Event.ChatID, current.Version, "", func(st *domain.ChatState) error {
					st.Notes["external"] = "writer"
					return nil
				}); err != nil {
					return domain.Continue, err
				}
			}
			if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
				st.Warnings[7]++
				return nil
			}); err != nil {
				return domain.Continue, err
			}
			return domain.Stop, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	d := newTestDispatcher(t, reg, store, sink)
	defer d.Shutdown()

	d.Dispatch(&domain.Event{ChatID: 31, UserID: 5, MessageID: 90, Kind: domain.KindMessage, Text: "hi"})
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	if got := d.Stats().HandlerFailures; got != 0 {
		t.Fatalf("the conflict should be retried, not failed: %d failures", got)
	}

	st, _ := store.Read(context.Background(), 31)
	if st.Version != 2 {
		t.Fatalf("expected the external write plus the handler write, version=%d", st.Version)
	}
	if st.Warnings[7] != 1 || st.Notes["external"] != "writer" {
		t.Fatalf("both writes should survive: %+v", st)
	}
}

func TestIngestParsesRawUpdates(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}
	d := newTestDispatcher(t, fullRegistry(t), store, sink)
	defer d.Shutdown()

	d.Ingest([]byte(`{not json`))
	waitStats(t, d, "rejection", func(s Stats) bool { return s.Rejected == 1 })

	update := platform.Update{
		UpdateID: 1,
		Message: &platform.Message{
			MessageID: 42,
			From:      &platform.User{ID: 2, Username: "mod"},
			Chat:      &platform.Chat{ID: 555, Type: platform.ChatTypeSupergroup},
			Date:      time.Now().Unix(),
			Text:      "/warn 7",
		},
	}
	raw, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	d.Ingest(raw)
	waitStats(t, d, "processing", func(s Stats) bool { return s.Processed == 1 })

	st, _ := store.Read(context.Background(), 555)
	if st.Warnings[7] != 1 {
		t.Fatalf("expected the warn applied from the raw update, got %v", st.Warnings)
	}
}

func TestShutdownDrainsQueuedEvents(t *testing.T) {
	store := newTestStore()
	sink := &captureSink{}

	var mu sync.Mutex
	count := 0
	reg := command.NewRegistry()
	if err := reg.Register(command.Descriptor{
		Handler: &funcHandler{name: "counter", fn: func(ctx context.Context, exec *command.Execution) (domain.Outcome, error) {
			mu.Lock()
			count++
			mu.Unlock()
			return domain.Continue, nil
		}},
		Kinds:    []domain.EventKind{domain.KindMessage},
		Priority: 100,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	d := newTestDispatcher(t, reg, store, sink)
	for i := 0; i < 30; i++ {
		d.Dispatch(&domain.Event{ChatID: int64(i % 5), UserID: 5, MessageID: int64(100 + i), Kind: domain.KindMessage, Text: "x"})
	}
	d.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if count != 30 {
		t.Fatalf("Shutdown must drain queued events, ran %d of 30", count)
	}
}
