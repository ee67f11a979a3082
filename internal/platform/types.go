package platform

import "encoding/json"

// Update is the wire form of one platform update as delivered by the
// update feed. Only the fields the bot consumes are mapped; the rest
// of the payload travels as raw JSON.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID      int64    `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	Chat           *Chat    `json:"chat"`
	Date           int64    `json:"date"`
	Text           string   `json:"text,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
	NewChatMembers []User   `json:"new_chat_members,omitempty"`
	LeftChatMember *User    `json:"left_chat_member,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName prefers the handle, then the human name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
)

func (c *Chat) IsGroup() bool {
	return c != nil && (c.Type == ChatTypeGroup || c.Type == ChatTypeSupergroup)
}

type ChatMember struct {
	User   User   `json:"user"`
	Status string `json:"status"`
}

const (
	MemberStatusCreator       = "creator"
	MemberStatusAdministrator = "administrator"
)

func (m *ChatMember) IsAdmin() bool {
	return m.Status == MemberStatusCreator || m.Status == MemberStatusAdministrator
}

// ChatPermissions carries the subset of permissions the bot toggles
// when muting and unmuting.
type ChatPermissions struct {
	CanSendMessages       bool `json:"can_send_messages"`
	CanSendOtherMessages  bool `json:"can_send_other_messages"`
	CanAddWebPagePreviews bool `json:"can_add_web_page_previews"`
}

// apiResponse is the bot API envelope. Result is decoded lazily so
// callers without a result type can skip it.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *responseParams `json:"parameters,omitempty"`
}

type responseParams struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

type FeedState string

const (
	FeedStateConnecting   FeedState = "CONNECTING"
	FeedStateConnected    FeedState = "CONNECTED"
	FeedStateDisconnected FeedState = "DISCONNECTED"
	FeedStateReconnecting FeedState = "RECONNECTING"
	FeedStateFailed       FeedState = "FAILED"
)

func (s FeedState) String() string {
	return string(s)
}
