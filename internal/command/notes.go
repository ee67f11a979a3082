package command

import (
	"context"
	"errors"
	"strings"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/util"
)

type NoteCommand struct {
	deps *Dependencies
}

func NewNoteCommand(deps *Dependencies) *NoteCommand {
	return &NoteCommand{deps: deps}
}

func (c *NoteCommand) Name() string {
	return "note"
}

func (c *NoteCommand) Description() string {
	return "Saves a note under a key"
}

func (c *NoteCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	parts := strings.SplitN(strings.TrimSpace(ev.Text), " ", 2)
	if len(parts) < 2 {
		exec.Reply(c.deps.Formatter.FormatUsage("note <key> <text>"))
		return domain.Stop, nil
	}

	key := util.NormalizeKey(parts[0])
	value := strings.TrimSpace(parts[1])
	if key == "" || value == "" {
		exec.Reply(c.deps.Formatter.FormatUsage("note <key> <text>"))
		return domain.Stop, nil
	}
	if len(key) > constants.StringLimits.NoteKey {
		exec.Reply(c.deps.Formatter.FormatError("That note key is too long."))
		return domain.Stop, nil
	}
	value = util.TruncateString(value, constants.StringLimits.NoteValue)

	if err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		st.Notes[key] = value
		return nil
	}); err != nil {
		return domain.Continue, err
	}

	exec.Reply(c.deps.Formatter.FormatNoteSaved(key))
	return domain.Stop, nil
}

type GetNoteCommand struct {
	deps *Dependencies
}

func NewGetNoteCommand(deps *Dependencies) *GetNoteCommand {
	return &GetNoteCommand{deps: deps}
}

func (c *GetNoteCommand) Name() string {
	return "getnote"
}

func (c *GetNoteCommand) Description() string {
	return "Recalls a saved note"
}

func (c *GetNoteCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if len(ev.Args) == 0 {
		exec.Reply(c.deps.Formatter.FormatUsage("getnote <key>"))
		return domain.Stop, nil
	}

	key := util.NormalizeKey(strings.TrimPrefix(ev.Args[0], "#"))
	if value, ok := exec.State.Notes[key]; ok {
		exec.Reply(c.deps.Formatter.FormatNote(key, value))
	} else {
		exec.Reply(c.deps.Formatter.FormatNoteMissing(key))
	}
	return domain.Stop, nil
}

type NotesCommand struct {
	deps *Dependencies
}

func NewNotesCommand(deps *Dependencies) *NotesCommand {
	return &NotesCommand{deps: deps}
}

func (c *NotesCommand) Name() string {
	return "notes"
}

func (c *NotesCommand) Description() string {
	return "Lists the chat's saved notes"
}

func (c *NotesCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	keys := make([]string, 0, len(exec.State.Notes))
	for key := range exec.State.Notes {
		keys = append(keys, key)
	}
	exec.Reply(c.deps.Formatter.FormatNoteList(keys))
	return domain.Stop, nil
}

type DelNoteCommand struct {
	deps *Dependencies
}

func NewDelNoteCommand(deps *Dependencies) *DelNoteCommand {
	return &DelNoteCommand{deps: deps}
}

func (c *DelNoteCommand) Name() string {
	return "delnote"
}

func (c *DelNoteCommand) Description() string {
	return "Deletes a saved note"
}

func (c *DelNoteCommand) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	ev := exec.Event

	if !c.deps.isAdmin(ctx, ev.ChatID, ev.UserID) {
		exec.Reply(c.deps.Formatter.FormatAdminsOnly())
		return domain.Stop, nil
	}

	if len(ev.Args) == 0 {
		exec.Reply(c.deps.Formatter.FormatUsage("delnote <key>"))
		return domain.Stop, nil
	}

	key := util.NormalizeKey(strings.TrimPrefix(ev.Args[0], "#"))
	err := exec.Mutate(ctx, func(st *domain.ChatState) error {
		if _, ok := st.Notes[key]; !ok {
			return errNoChange
		}
		delete(st.Notes, key)
		return nil
	})

	switch {
	case errors.Is(err, errNoChange):
		exec.Reply(c.deps.Formatter.FormatNoteMissing(key))
	case err != nil:
		return domain.Continue, err
	default:
		exec.Reply(c.deps.Formatter.FormatNoteDeleted(key))
	}
	return domain.Stop, nil
}

// NoteRecall answers plain messages of the form "#key" with the saved
// note, mirroring the explicit getnote command.
type NoteRecall struct {
	deps *Dependencies
}

func NewNoteRecall(deps *Dependencies) *NoteRecall {
	return &NoteRecall{deps: deps}
}

func (c *NoteRecall) Name() string {
	return "note_recall"
}

func (c *NoteRecall) Description() string {
	return "Expands #key references in messages"
}

// MatchesNoteRef reports whether a message text is a note reference.
func MatchesNoteRef(ev *domain.Event) bool {
	text := strings.TrimSpace(ev.Text)
	if len(text) < 2 || !strings.HasPrefix(text, "#") {
		return false
	}
	// A reference is a single token, not a sentence with hashtags.
	return !strings.ContainsRune(text, ' ')
}

func (c *NoteRecall) Execute(ctx context.Context, exec *Execution) (domain.Outcome, error) {
	key := util.NormalizeKey(strings.TrimPrefix(strings.TrimSpace(exec.Event.Text), "#"))
	if key == "" {
		return domain.Continue, nil
	}

	value, ok := exec.State.Notes[key]
	if !ok {
		return domain.Continue, nil
	}

	exec.Reply(c.deps.Formatter.FormatNote(key, value))
	return domain.Continue, nil
}
