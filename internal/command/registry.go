package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kavik/groupwarden-go/internal/domain"
	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

// Registry routes events to handler descriptors. Commands are keyed
// case-insensitively; non-command events route by kind. Registration
// happens once at startup and is sealed with Freeze before dispatch
// begins.
type Registry struct {
	mu        sync.RWMutex
	entries   []*registryEntry
	byCommand map[string][]*registryEntry
	byKind    map[domain.EventKind][]*registryEntry
	frozen    bool
}

type registryEntry struct {
	desc Descriptor
	seq  int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byCommand: make(map[string][]*registryEntry),
		byKind:    make(map[domain.EventKind][]*registryEntry),
	}
}

// Register adds a descriptor to the registry. It fails when the
// registry is frozen, when the descriptor has no selector, or when an
// exclusive selector collides with an already registered exclusive
// handler at the same priority.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Handler == nil {
		return pkgerrors.NewValidationError("descriptor has no handler", "handler", nil)
	}
	if len(desc.Commands) == 0 && len(desc.Kinds) == 0 {
		return pkgerrors.NewValidationError("descriptor has no selector", "selector", desc.Handler.Name())
	}

	commands := make([]string, 0, len(desc.Commands))
	for _, c := range desc.Commands {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			return pkgerrors.NewValidationError("descriptor has an empty command word", "commands", desc.Handler.Name())
		}
		commands = append(commands, c)
	}
	desc.Commands = commands

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return pkgerrors.New(pkgerrors.CodeValidation, "registry is frozen")
	}

	for _, c := range desc.Commands {
		if other := findConflict(r.byCommand[c], &desc); other != nil {
			return conflictError(desc.Handler.Name(), other.desc.Handler.Name(), "command "+c, desc.Priority)
		}
	}
	for _, k := range desc.Kinds {
		if other := findConflict(r.byKind[k], &desc); other != nil {
			return conflictError(desc.Handler.Name(), other.desc.Handler.Name(), "kind "+string(k), desc.Priority)
		}
	}

	e := &registryEntry{desc: desc, seq: len(r.entries)}
	r.entries = append(r.entries, e)
	for _, c := range desc.Commands {
		r.byCommand[c] = append(r.byCommand[c], e)
	}
	for _, k := range desc.Kinds {
		r.byKind[k] = append(r.byKind[k], e)
	}
	return nil
}

// Freeze seals the registry and orders every index by priority so
// Resolve returns handlers highest-priority first. Registration after
// Freeze fails.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entries := range r.byCommand {
		sortEntries(entries)
	}
	for _, entries := range r.byKind {
		sortEntries(entries)
	}
	r.frozen = true
}

// Resolve returns the descriptors matching the event, ordered by
// priority descending with registration order breaking ties.
func (r *Registry) Resolve(ev *domain.Event) []Descriptor {
	if r == nil || ev == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.byKind[ev.Kind]
	if ev.Kind == domain.KindCommand && ev.Command != "" {
		candidates = append(candidates[:len(candidates):len(candidates)], r.byCommand[strings.ToLower(ev.Command)]...)
	}
	if len(candidates) == 0 {
		return nil
	}

	matched := make([]*registryEntry, 0, len(candidates))
	seen := make(map[int]bool, len(candidates))
	for _, e := range candidates {
		if seen[e.seq] {
			continue
		}
		seen[e.seq] = true
		if e.desc.Matches(ev) {
			matched = append(matched, e)
		}
	}
	sortEntries(matched)

	out := make([]Descriptor, len(matched))
	for i, e := range matched {
		out[i] = e.desc
	}
	return out
}

// Count returns the number of registered descriptors.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Descriptors returns every registered descriptor in registration
// order. Used for help listings.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.desc
	}
	return out
}

func findConflict(entries []*registryEntry, desc *Descriptor) *registryEntry {
	if !desc.Exclusive {
		return nil
	}
	for _, e := range entries {
		if e.desc.Exclusive && e.desc.Priority == desc.Priority {
			return e
		}
	}
	return nil
}

func conflictError(name, other, selector string, priority int) error {
	err := pkgerrors.New(pkgerrors.CodeConflictingHandler,
		fmt.Sprintf("handler %q conflicts with %q on %s at priority %d", name, other, selector, priority))
	err.Context = map[string]any{
		"handler":  name,
		"other":    other,
		"selector": selector,
		"priority": priority,
	}
	return err
}

func sortEntries(entries []*registryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].desc.Priority != entries[j].desc.Priority {
			return entries[i].desc.Priority > entries[j].desc.Priority
		}
		return entries[i].seq < entries[j].seq
	})
}
