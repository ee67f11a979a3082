package command

import (
	"context"
	"strings"
	"testing"

	"github.com/kavik/groupwarden-go/internal/domain"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

type stubHandler struct {
	name string
}

func (h *stubHandler) Name() string {
	return h.name
}

func (h *stubHandler) Description() string {
	return "stub"
}

func (h *stubHandler) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	return domain.Continue, nil
}

func TestRegisterLowercasesCommandWords(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Descriptor{
		Handler:   &stubHandler{name: "warn"},
		Commands:  []string{"WARN"},
		Exclusive: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	matched := reg.Resolve(commandEvent(1, 2, 3, "warn"))
	if len(matched) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(matched))
	}
	if matched[0].Handler.Name() != "warn" {
		t.Fatalf("unexpected handler %q", matched[0].Handler.Name())
	}
}

func TestRegisterRejectsExclusiveCommandCollision(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Descriptor{Handler: &stubHandler{name: "a"}, Commands: []string{"warn"}, Exclusive: true}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := reg.Register(Descriptor{Handler: &stubHandler{name: "b"}, Commands: []string{"warn"}, Exclusive: true})
	if err == nil {
		t.Fatal("expected a conflict error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflictingHandler) {
		t.Fatalf("expected CONFLICTING_HANDLER, got %v", err)
	}
	if !strings.Contains(err.Error(), "warn") {
		t.Fatalf("conflict error should name the selector: %v", err)
	}
}

func TestRegisterAllowsSharedSelectorWhenNotBothExclusive(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Descriptor{Handler: &stubHandler{name: "a"}, Kinds: []domain.EventKind{domain.KindMessage}, Priority: 10, Exclusive: true}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(Descriptor{Handler: &stubHandler{name: "b"}, Kinds: []domain.EventKind{domain.KindMessage}, Priority: 10}); err != nil {
		t.Fatalf("non-exclusive register should pass: %v", err)
	}
	if err := reg.Register(Descriptor{Handler: &stubHandler{name: "c"}, Kinds: []domain.EventKind{domain.KindMessage}, Priority: 20, Exclusive: true}); err != nil {
		t.Fatalf("different priority register should pass: %v", err)
	}
}

func TestRegisterRejectsEmptySelector(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Descriptor{Handler: &stubHandler{name: "a"}}); err == nil {
		t.Fatal("expected an error for a selector-less descriptor")
	}
}

func TestFrozenRegistryRejectsRegister(t *testing.T) {
	reg := NewRegistry()
	reg.Freeze()
	if err := reg.Register(Descriptor{Handler: &stubHandler{name: "a"}, Commands: []string{"x"}}); err == nil {
		t.Fatal("expected an error after Freeze")
	}
}

func TestResolveOrdersByPriorityThenRegistration(t *testing.T) {
	reg := NewRegistry()
	register := func(name string, priority int) {
		t.Helper()
		if err := reg.Register(Descriptor{
			Handler:  &stubHandler{name: name},
			Kinds:    []domain.EventKind{domain.KindMessage},
			Priority: priority,
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	register("low", 10)
	register("high", 100)
	register("mid_first", 50)
	register("mid_second", 50)
	reg.Freeze()

	matched := reg.Resolve(messageEvent(1, 2, 3, "hello"))
	got := make([]string, len(matched))
	for i, d := range matched {
		got[i] = d.Handler.Name()
	}

	want := []string{"high", "mid_first", "mid_second", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d descriptors, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestResolveAppliesMatchPredicate(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Descriptor{
		Handler: &stubHandler{name: "hashtag"},
		Kinds:   []domain.EventKind{domain.KindMessage},
		Match:   MatchesNoteRef,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Freeze()

	if matched := reg.Resolve(messageEvent(1, 2, 3, "#faq")); len(matched) != 1 {
		t.Fatalf("expected note reference to match, got %d", len(matched))
	}
	if matched := reg.Resolve(messageEvent(1, 2, 3, "just chatting")); len(matched) != 0 {
		t.Fatalf("expected plain text not to match, got %d", len(matched))
	}
}

func TestResolveUnknownCommandReturnsNothing(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterAll(reg, newTestDeps()); err != nil {
		t.Fatalf("register all: %v", err)
	}
	reg.Freeze()

	if matched := reg.Resolve(commandEvent(1, 2, 3, "doesnotexist")); len(matched) != 0 {
		t.Fatalf("expected no descriptors, got %d", len(matched))
	}
}

func TestRegisterAllBuildsCleanTable(t *testing.T) {
	reg := NewRegistry()
	if err := RegisterAll(reg, newTestDeps()); err != nil {
		t.Fatalf("register all: %v", err)
	}
	reg.Freeze()

	if reg.Count() < 25 {
		t.Fatalf("expected a full handler table, got %d", reg.Count())
	}

	matched := reg.Resolve(commandEvent(1, 2, 3, "warn", "7"))
	if len(matched) != 1 || matched[0].Handler.Name() != "warn" {
		t.Fatalf("expected the warn handler, got %+v", matched)
	}

	matched = reg.Resolve(messageEvent(1, 2, 3, "hello"))
	if len(matched) != 2 {
		t.Fatalf("expected enforcer and recorder for plain messages, got %d", len(matched))
	}
	if matched[0].Handler.Name() != "mute_enforcer" || matched[1].Handler.Name() != "activity_recorder" {
		t.Fatalf("unexpected order: %s then %s", matched[0].Handler.Name(), matched[1].Handler.Name())
	}
}
