package store

// Chat kind tags shared by messages and notifications.
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// User represents a chat account. Profile CRUD lives outside the core;
// the real-time layer only reads identity and writes presence fields.
type User struct {
	ID       string
	Username string
	Status   string
	LastSeen int64
}

// DirectChat is a one-to-one conversation. Participants are stored in
// lexical order so the pair is unique regardless of who wrote first.
type DirectChat struct {
	ID           string
	UserLo       string
	UserHi       string
	LastActivity int64
}

// Group represents a group chat.
type Group struct {
	ID           string
	Name         string
	OwnerID      string
	LastActivity int64
}

// Message is a persisted chat message, direct or group per ChatKind.
type Message struct {
	ID        string
	ChatID    string
	ChatKind  string
	SenderID  string
	Kind      string
	Body      string
	MediaURL  string
	CreatedAt int64
}

// ReadMark records that a user has observed a message.
type ReadMark struct {
	MessageID string
	UserID    string
	ReadAt    int64
}

// Notification is the durable fallback written when a fanout recipient
// has no live connection.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    string
	Kind        string
	Body        string
	ChatID      string
	ChatKind    string
	MessageID   string
	Read        bool
	CreatedAt   int64
}
