package model

// ContentType classifies a message payload.
type ContentType string

const (
	Text     ContentType = "text"
	Picture  ContentType = "picture"
	Video    ContentType = "video"
	File     ContentType = "file"
	Voice    ContentType = "voice"
	Location ContentType = "location"
	Quote    ContentType = "quote"
	Revoke   ContentType = "revoke"
	System   ContentType = "system"
)

// IsMedia reports whether the content type belongs in the media gallery.
func (c ContentType) IsMedia() bool {
	return c == Picture || c == Video || c == File
}

// Content is the variant payload of a message. Only the fields relevant to
// the message's ContentType are set.
type Content struct {
	Text        string  `json:"text,omitempty"`
	URL         string  `json:"url,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Duration    int64   `json:"duration,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Description string  `json:"description,omitempty"`
	QuotedID    string  `json:"quotedID,omitempty"`
	QuotedText  string  `json:"quotedText,omitempty"`
}

// Message is a single chat message. ClientMsgID is the dedup key.
type Message struct {
	ClientMsgID    string
	ServerMsgID    string
	ConversationID string
	GroupID        string
	RecvID         string
	SendID         string
	SenderNickname string
	SendTime       int64
	ContentType    ContentType
	Content        Content
	CorrelationID  string
	IsRead         bool
}

// Preview returns a short text describing the message for room lists.
func (m *Message) Preview() string {
	switch m.ContentType {
	case Text, Quote:
		return truncate(m.Content.Text, 100)
	case Picture:
		return "[picture]"
	case Video:
		return "[video]"
	case File:
		if m.Content.FileName != "" {
			return "[file] " + truncate(m.Content.FileName, 90)
		}
		return "[file]"
	case Voice:
		return "[voice]"
	case Location:
		return "[location] " + truncate(m.Content.Description, 88)
	case Revoke:
		return "message recalled"
	default:
		return ""
	}
}

// RoomStatus is the business workflow flag of a room.
type RoomStatus string

const (
	RoomOpen  RoomStatus = "open"
	RoomClose RoomStatus = "close"
)

// MemberRole is the profile role joined from the user directory.
type MemberRole string

const (
	RoleSale     MemberRole = "sale"
	RoleCustomer MemberRole = "customer"
)

// Member is a room participant.
type Member struct {
	UserID   string
	Nickname string
	FaceURL  string
	Email    string
	Phone    string
	Role     MemberRole
	Online   bool
}

// Room is a group conversation as shown in the room list.
type Room struct {
	GroupID        string
	ConversationID string
	Name           string
	Ex             string
	Symbol         string
	BgColor        string
	Status         RoomStatus
	CreateTime     int64
	Members        []Member
	Emails         string
	LastMessage    *Message
	UnreadCount    int
	Typing         bool
	TypingUserID   string
}

// Conversation is the backend metadata record for a room, matched by GroupID.
type Conversation struct {
	ConversationID    string
	GroupID           string
	UserID            string
	UnreadCount       int
	LatestMsg         string // opaque serialized message
	LatestMsgSendTime int64
}

// UserInfo is a profile record from the user directory.
type UserInfo struct {
	UserID   string
	Nickname string
	Email    string
	Phone    string
	Role     MemberRole
	Online   bool
}

// TypingState is the remote typing indicator of one conversation.
type TypingState struct {
	ConversationID string
	IsTyping       bool
	ByUserID       string
}

// Burst is a run of consecutive messages rendered as one visual group.
type Burst struct {
	SendID   string
	IsRead   bool
	SendTime int64
	Items    []Message
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
