package domain

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	KindMessage      EventKind = "message"
	KindCommand      EventKind = "command"
	KindMemberUpdate EventKind = "member_update"
)

func (k EventKind) String() string {
	return string(k)
}

func (k EventKind) IsValid() bool {
	switch k {
	case KindMessage, KindCommand, KindMemberUpdate:
		return true
	default:
		return false
	}
}

// Member identifies a chat participant referenced by a member update.
type Member struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Event is the normalized form every platform update is reduced to
// before dispatch. Exactly one event exists per accepted update.
type Event struct {
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	MessageID int64     `json:"message_id"`
	Kind      EventKind `json:"kind"`

	// Command and Args are set only for KindCommand. Command is
	// lowercased and carries no prefix.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Text is the sanitized message body for KindMessage and the
	// remainder after the command word for KindCommand.
	Text string `json:"text,omitempty"`

	// ReplyToUserID is the author of the quoted message, when the
	// update replies to one. Moderation commands resolve their
	// target from it.
	ReplyToUserID int64 `json:"reply_to_user_id,omitempty"`

	// Populated for KindMemberUpdate.
	NewMembers []Member `json:"new_members,omitempty"`
	LeftMember *Member  `json:"left_member,omitempty"`

	SenderName string          `json:"sender_name,omitempty"`
	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (e *Event) IsCommand(name string) bool {
	return e.Kind == KindCommand && e.Command == name
}
