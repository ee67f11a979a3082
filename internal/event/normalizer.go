package event

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/internal/platform"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

var controlCharsPattern = regexp.MustCompile(`[\x00-\x1F\x7F]`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Normalizer reduces raw platform updates to exactly one Event each.
// Updates missing their required identifiers are rejected with
// MALFORMED_UPDATE and never reach dispatch.
type Normalizer struct {
	prefix string
}

func NewNormalizer(prefix string) *Normalizer {
	return &Normalizer{prefix: prefix}
}

// Normalize parses and classifies one raw update payload.
func (n *Normalizer) Normalize(raw []byte) (*domain.Event, error) {
	if len(raw) == 0 {
		return nil, errors.New(errors.CodeMalformedUpdate, "empty update payload")
	}

	var upd platform.Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		return nil, errors.Wrap(errors.CodeMalformedUpdate, "update is not valid JSON", err)
	}

	msg := upd.Message
	if msg == nil {
		return nil, errors.New(errors.CodeMalformedUpdate, "update carries no message")
	}
	if msg.Chat == nil || msg.Chat.ID == 0 {
		return nil, errors.New(errors.CodeMalformedUpdate, "update has no chat id")
	}
	if msg.MessageID == 0 {
		return nil, errors.New(errors.CodeMalformedUpdate, "update has no message id")
	}
	if msg.From == nil || msg.From.ID == 0 {
		return nil, errors.New(errors.CodeMalformedUpdate, "update has no sender id")
	}

	ev := &domain.Event{
		ChatID:     msg.Chat.ID,
		UserID:     msg.From.ID,
		MessageID:  msg.MessageID,
		SenderName: msg.From.DisplayName(),
		Raw:        json.RawMessage(raw),
		ReceivedAt: time.Now(),
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		ev.ReplyToUserID = msg.ReplyToMessage.From.ID
	}

	if len(msg.NewChatMembers) > 0 || msg.LeftChatMember != nil {
		ev.Kind = domain.KindMemberUpdate
		for _, u := range msg.NewChatMembers {
			ev.NewMembers = append(ev.NewMembers, domain.Member{ID: u.ID, Name: u.DisplayName()})
		}
		if left := msg.LeftChatMember; left != nil {
			ev.LeftMember = &domain.Member{ID: left.ID, Name: left.DisplayName()}
		}
		return ev, nil
	}

	text := strings.TrimSpace(msg.Text)
	if command, rest, ok := n.splitCommand(text); ok {
		ev.Kind = domain.KindCommand
		ev.Command = command
		ev.Text = sanitize(rest)
		if ev.Text != "" {
			ev.Args = strings.Fields(ev.Text)
		}
		return ev, nil
	}

	ev.Kind = domain.KindMessage
	ev.Text = sanitize(text)
	return ev, nil
}

// splitCommand extracts the command word and the argument tail. The
// "@botname" suffix the platform appends in groups is dropped.
func (n *Normalizer) splitCommand(text string) (command, rest string, ok bool) {
	if !strings.HasPrefix(text, n.prefix) {
		return "", "", false
	}

	after := text[len(n.prefix):]
	if after == "" {
		return "", "", false
	}
	// The command word must follow the prefix directly; "/ text" is
	// an ordinary message.
	if r, _ := utf8.DecodeRuneInString(after); unicode.IsSpace(r) {
		return "", "", false
	}

	idx := strings.IndexFunc(after, unicode.IsSpace)
	if idx < 0 {
		command = after
	} else {
		command = after[:idx]
		rest = strings.TrimSpace(after[idx:])
	}

	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	command = strings.ToLower(command)
	if command == "" {
		return "", "", false
	}

	return command, rest, true
}

// sanitize strips control characters, collapses whitespace and caps
// the length. Stored notes and AI prompts both pass through here.
func sanitize(input string) string {
	withoutControl := controlCharsPattern.ReplaceAllString(input, " ")
	normalized := strings.TrimSpace(whitespacePattern.ReplaceAllString(withoutControl, " "))

	if normalized == "" {
		return ""
	}

	// Cap by runes, not bytes; a byte slice could cut a multi-byte
	// rune in half and leave invalid UTF-8 in stored notes.
	if len(normalized) > constants.StringLimits.MessageText {
		runes := []rune(normalized)
		if len(runes) > constants.StringLimits.MessageText {
			return string(runes[:constants.StringLimits.MessageText])
		}
	}
	return normalized
}
