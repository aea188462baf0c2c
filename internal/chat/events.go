package chat

import "github.com/avelar/chatd/internal/store"

// Client-originated event names.
const (
	EvtSendPrivateMessage = "send-private-message"
	EvtSendGroupMessage   = "send-group-message"
	EvtTypingStart        = "typing-start"
	EvtTypingEnd          = "typing-end"
	EvtMarkAsRead         = "mark-as-read"
	EvtMarkAllAsRead      = "mark-all-as-read"
	EvtSetStatus          = "set-status"
	EvtJoinGroup          = "join-group"
	EvtLeaveGroup         = "leave-group"
	EvtNotificationRead   = "notification-read"
)

// Server-originated event names.
const (
	EvtReceivePrivateMessage = "receive-private-message"
	EvtReceiveGroupMessage   = "receive-group-message"
	EvtPrivateMessageSent    = "private-message-sent"
	EvtGroupMessageSent      = "group-message-sent"
	EvtMessageError          = "message-error"
	EvtTyping                = "typing"
	EvtStopTyping            = "stop-typing"
	EvtUserStatusChange      = "user-status-change"
	EvtActiveFriends         = "active-friends"
	EvtUnreadNotifications   = "unread-notifications-count"
	EvtMessageRead           = "message-read"
	EvtMessagesReadAll       = "messages-read-all"
	EvtJoinedGroup           = "joined-group"
	EvtLeftGroup             = "left-group"
)

// Presence statuses a client may set.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// ChatRef is the tagged union identifying a conversation: a direct chat or
// a group, resolved once at the fanout boundary.
type ChatRef struct {
	Kind string `json:"chatType"`
	ID   string `json:"chatId"`
}

func DirectRef(chatID string) ChatRef {
	return ChatRef{Kind: store.KindDirect, ID: chatID}
}

func GroupRef(groupID string) ChatRef {
	return ChatRef{Kind: store.KindGroup, ID: groupID}
}

// Valid reports whether the ref carries a known kind and a non-empty id.
func (r ChatRef) Valid() bool {
	return r.ID != "" && (r.Kind == store.KindDirect || r.Kind == store.KindGroup)
}

// ReadByEntry mirrors one message_reads row on the wire.
type ReadByEntry struct {
	UserID string `json:"userId"`
	ReadAt int64  `json:"readAt"`
}

// MessagePayload carries a persisted message plus minimal chat identity.
// Used both for live delivery to recipients and for the sender ack.
type MessagePayload struct {
	ID         string        `json:"id"`
	ChatID     string        `json:"chatId"`
	ChatType   string        `json:"chatType"`
	SenderID   string        `json:"senderId"`
	SenderName string        `json:"senderName"`
	Kind       string        `json:"messageType"`
	Content    string        `json:"content"`
	MediaURL   string        `json:"mediaUrl,omitempty"`
	CreatedAt  int64         `json:"createdAt"`
	ReadBy     []ReadByEntry `json:"readBy"`
}

// TypingPayload signals typing state in a chat.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	ChatType string `json:"chatType"`
	UserID   string `json:"userId"`
}

// StatusChangePayload announces a friend's presence transition.
type StatusChangePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// FriendPresence is one entry of the active-friends push on connect.
type FriendPresence struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// UnreadCountPayload is the unread-notifications-count push on connect.
type UnreadCountPayload struct {
	Count int `json:"count"`
}

// ReadPayload notifies a sender that one message was read.
type ReadPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	ChatType  string `json:"chatType"`
	ReaderID  string `json:"readerId"`
	ReadAt    int64  `json:"readAt"`
}

// ReadAllPayload aggregates a batch read per original sender.
type ReadAllPayload struct {
	ChatID   string `json:"chatId"`
	ChatType string `json:"chatType"`
	ReaderID string `json:"readerId"`
	Count    int    `json:"count"`
}

// ErrorPayload is the message-error event body.
type ErrorPayload struct {
	Code  Code   `json:"code"`
	Error string `json:"error"`
}

// GroupAckPayload acknowledges join-group / leave-group.
type GroupAckPayload struct {
	GroupID string `json:"groupId"`
}
