package command

import (
	"context"
	"strings"
	"testing"

	"github.com/kavik/groupwarden-go/internal/domain"
)

func TestNoteSaveAndRecall(t *testing.T) {
	store := newTestStore()
	deps := newTestDeps(2)

	emitter := &captureEmitter{}
	ev := commandEvent(10, 2, 100, "note", "Meeting-Link", "https://example.com/standup")
	exec := newExec(t, store, emitter, ev, "note")
	if _, err := runHandler(t, NewNoteCommand(deps), exec); err != nil {
		t.Fatalf("note: %v", err)
	}

	st, _ := store.Read(context.Background(), 10)
	if st.Notes["meetinglink"] == "" {
		t.Fatalf("expected the note stored under its normalized key, got %v", st.Notes)
	}

	// Key lookup ignores case and separators.
	emitter = &captureEmitter{}
	ev = commandEvent(10, 5, 101, "getnote", "meeting_link")
	exec = newExec(t, store, emitter, ev, "getnote")
	if _, err := runHandler(t, NewGetNoteCommand(deps), exec); err != nil {
		t.Fatalf("getnote: %v", err)
	}
	texts := emitter.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "https://example.com/standup") {
		t.Fatalf("expected the note text back, got %v", texts)
	}
}

func TestNoteRequiresAdmin(t *testing.T) {
	store := newTestStore()
	deps := newTestDeps()
	emitter := &captureEmitter{}
	ev := commandEvent(10, 5, 100, "note", "faq", "read the pinned message")
	exec := newExec(t, store, emitter, ev, "note")

	if _, err := runHandler(t, NewNoteCommand(deps), exec); err != nil {
		t.Fatalf("note: %v", err)
	}

	st, _ := store.Read(context.Background(), 10)
	if len(st.Notes) != 0 {
		t.Fatalf("non-admin must not save notes, got %v", st.Notes)
	}
}

func TestGetNoteMissingKey(t *testing.T) {
	store := newTestStore()
	deps := newTestDeps()
	emitter := &captureEmitter{}
	ev := commandEvent(10, 5, 100, "getnote", "nope")
	exec := newExec(t, store, emitter, ev, "getnote")

	if _, err := runHandler(t, NewGetNoteCommand(deps), exec); err != nil {
		t.Fatalf("getnote: %v", err)
	}
	texts := emitter.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "No note") {
		t.Fatalf("expected the missing-note reply, got %v", texts)
	}
}

func TestDelNoteRemovesKey(t *testing.T) {
	store := newTestStore()
	deps := newTestDeps(2)
	seed(t, store, 10, func(st *domain.ChatState) {
		st.Notes["faq"] = "read the pinned message"
	})

	emitter := &captureEmitter{}
	ev := commandEvent(10, 2, 100, "delnote", "faq")
	exec := newExec(t, store, emitter, ev, "delnote")
	if _, err := runHandler(t, NewDelNoteCommand(deps), exec); err != nil {
		t.Fatalf("delnote: %v", err)
	}

	st, _ := store.Read(context.Background(), 10)
	if len(st.Notes) != 0 {
		t.Fatalf("expected the note gone, got %v", st.Notes)
	}
}

func TestNotesListsSortedKeys(t *testing.T) {
	store := newTestStore()
	deps := newTestDeps()
	seed(t, store, 10, func(st *domain.ChatState) {
		st.Notes["zebra"] = "z"
		st.Notes["alpha"] = "a"
	})

	emitter := &captureEmitter{}
	ev := commandEvent(10, 5, 100, "notes")
	exec := newExec(t, store, emitter, ev, "notes")
	if _, err := runHandler(t, NewNotesCommand(deps), exec); err != nil {
		t.Fatalf("notes: %v", err)
	}

	texts := emitter.texts()
	if len(texts) != 1 {
		t.Fatalf("expected one reply, got %v", texts)
	}
	if strings.Index(texts[0], "alpha") > strings.Index(texts[0], "zebra") {
		t.Fatalf("keys should list alphabetically: %q", texts[0])
	}
}

func TestNoteRecallExpandsHashtag(t *testing.T) {
	store := newTestStore()
	deps := newTestDeps()
	seed(t, store, 10, func(st *domain.ChatState) {
		st.Notes["faq"] = "read the pinned message"
	})

	emitter := &captureEmitter{}
	ev := messageEvent(10, 5, 100, "#faq")
	exec := newExec(t, store, emitter, ev, "note_recall")

	outcome, err := runHandler(t, NewNoteRecall(deps), exec)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if outcome != domain.Continue {
		t.Fatalf("recall must not consume the event, got %v", outcome)
	}

	texts := emitter.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "read the pinned message") {
		t.Fatalf("expected the note expanded, got %v", texts)
	}
}

func TestNoteRefMatcher(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"#faq", true},
		{"#Meeting-Link", true},
		{"#", false},
		{"#faq please read", false},
		{"no tags here", false},
		{"", false},
	}
	for _, tc := range cases {
		ev := messageEvent(10, 5, 100, tc.text)
		if got := MatchesNoteRef(ev); got != tc.want {
			t.Errorf("MatchesNoteRef(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
