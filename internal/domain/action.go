package domain

import "time"

type ActionKind string

const (
	ActionSendMessage   ActionKind = "send_message"
	ActionDeleteMessage ActionKind = "delete_message"
	ActionRestrictUser  ActionKind = "restrict_user"
)

func (k ActionKind) String() string {
	return string(k)
}

type RestrictMode string

const (
	RestrictMute   RestrictMode = "mute"
	RestrictUnmute RestrictMode = "unmute"
	RestrictBan    RestrictMode = "ban"
	RestrictUnban  RestrictMode = "unban"
	RestrictKick   RestrictMode = "kick"
)

// OutboundAction is a platform side effect produced by a handler. The
// sink delivers actions for one chat in the order they were produced.
type OutboundAction struct {
	Kind      ActionKind   `json:"kind"`
	ChatID    int64        `json:"chat_id"`
	UserID    int64        `json:"user_id,omitempty"`
	MessageID int64        `json:"message_id,omitempty"`
	Text      string       `json:"text,omitempty"`
	Mode      RestrictMode `json:"mode,omitempty"`
	Until     time.Time    `json:"until,omitempty"`
}

func NewSendMessage(chatID int64, text string) OutboundAction {
	return OutboundAction{Kind: ActionSendMessage, ChatID: chatID, Text: text}
}

func NewDeleteMessage(chatID, messageID int64) OutboundAction {
	return OutboundAction{Kind: ActionDeleteMessage, ChatID: chatID, MessageID: messageID}
}

func NewRestrictUser(chatID, userID int64, mode RestrictMode, until time.Time) OutboundAction {
	return OutboundAction{Kind: ActionRestrictUser, ChatID: chatID, UserID: userID, Mode: mode, Until: until}
}
