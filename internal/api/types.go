package api

import (
	"encoding/json"

	"github.com/matheus3301/imsync/internal/model"
	intsync "github.com/matheus3301/imsync/internal/sync"
)

// Member is a room participant as seen by API clients.
type Member struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname,omitempty"`
	FaceURL  string `json:"faceUrl,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
	Online   bool   `json:"online"`
}

// Message is a chat message as seen by API clients.
type Message struct {
	ClientMsgID    string        `json:"clientMsgId"`
	ServerMsgID    string        `json:"serverMsgId,omitempty"`
	ConversationID string        `json:"conversationId"`
	GroupID        string        `json:"groupId,omitempty"`
	SendID         string        `json:"sendId"`
	SenderNickname string        `json:"senderNickname,omitempty"`
	SendTime       int64         `json:"sendTime"`
	ContentType    string        `json:"contentType"`
	Content        model.Content `json:"content"`
	CorrelationID  string        `json:"correlationId,omitempty"`
	IsRead         bool          `json:"isRead"`
	Preview        string        `json:"preview,omitempty"`
}

// Room is a room list entry.
type Room struct {
	GroupID        string   `json:"groupId"`
	ConversationID string   `json:"conversationId"`
	Name           string   `json:"name"`
	Symbol         string   `json:"symbol"`
	BgColor        string   `json:"bgColor"`
	Status         string   `json:"status"`
	CreateTime     int64    `json:"createTime"`
	UnreadCount    int      `json:"unreadCount"`
	Typing         bool     `json:"typing"`
	TypingUserID   string   `json:"typingUserId,omitempty"`
	Emails         string   `json:"emails,omitempty"`
	Members        []Member `json:"members"`
	LastMessage    *Message `json:"lastMessage,omitempty"`
}

// Burst is a run of messages rendered under one header.
type Burst struct {
	SendID   string    `json:"sendId"`
	IsRead   bool      `json:"isRead"`
	SendTime int64     `json:"sendTime"`
	Items    []Message `json:"items"`
}

// Timeline is the grouped timeline of the active conversation.
type Timeline struct {
	ConversationID string  `json:"conversationId"`
	State          string  `json:"state"`
	Count          int     `json:"count"`
	Bursts         []Burst `json:"bursts"`
}

// Status is the GetStatus response.
type Status struct {
	Session         string `json:"session"`
	Connection      string `json:"connection"`
	UptimeMs        int64  `json:"uptimeMs"`
	Rooms           int    `json:"rooms"`
	SelectedGroupID string `json:"selectedGroupId,omitempty"`
}

// Typing is a remote typing indicator.
type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
	ByUserID       string `json:"byUserId,omitempty"`
}

// Event is one WatchEvents item. Payload depends on Kind.
type Event struct {
	EventID      string          `json:"eventId"`
	Session      string          `json:"session"`
	Kind         string          `json:"kind"`
	OccurredAtMs int64           `json:"occurredAtMs"`
	Payload      json.RawMessage `json:"payload"`
}

// Request and response bodies.
type (
	ListRoomsRequest struct {
		Category string `json:"category,omitempty"`
		Search   string `json:"search,omitempty"`
		Sort     string `json:"sort,omitempty"`
		Locale   string `json:"locale,omitempty"`
	}
	ListRoomsResponse struct {
		Rooms []Room `json:"rooms"`
	}
	SelectRoomRequest struct {
		GroupID string `json:"groupId"`
	}
	SelectRoomResponse struct {
		Room     Room     `json:"room"`
		Timeline Timeline `json:"timeline"`
	}
	LoadOlderResponse struct {
		Added    int      `json:"added"`
		Timeline Timeline `json:"timeline"`
	}
	SendTextRequest struct {
		Text     string `json:"text"`
		QuotedID string `json:"quotedId,omitempty"`
	}
	SendLocationRequest struct {
		Description string  `json:"description"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
	}
	SendResponse struct {
		ClientMsgID string `json:"clientMsgId"`
	}
	RevokeRequest struct {
		ClientMsgID string `json:"clientMsgId"`
	}
	RevokeResponse struct {
		Revoked int `json:"revoked"`
	}
	SetRoomStatusRequest struct {
		GroupID string `json:"groupId"`
		Status  string `json:"status"`
	}
	MediaGalleryRequest struct {
		ConversationID string `json:"conversationId,omitempty"`
	}
	MediaGalleryResponse struct {
		Messages []Message `json:"messages"`
	}
	WatchEventsRequest struct {
		Prefix string `json:"prefix,omitempty"`
	}
)

func toMessage(m model.Message) Message {
	return Message{
		ClientMsgID:    m.ClientMsgID,
		ServerMsgID:    m.ServerMsgID,
		ConversationID: m.ConversationID,
		GroupID:        m.GroupID,
		SendID:         m.SendID,
		SenderNickname: m.SenderNickname,
		SendTime:       m.SendTime,
		ContentType:    string(m.ContentType),
		Content:        m.Content,
		CorrelationID:  m.CorrelationID,
		IsRead:         m.IsRead,
		Preview:        m.Preview(),
	}
}

func toMessages(msgs []model.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = toMessage(m)
	}
	return out
}

func toRoom(r model.Room) Room {
	out := Room{
		GroupID:        r.GroupID,
		ConversationID: r.ConversationID,
		Name:           r.Name,
		Symbol:         r.Symbol,
		BgColor:        r.BgColor,
		Status:         string(r.Status),
		CreateTime:     r.CreateTime,
		UnreadCount:    r.UnreadCount,
		Typing:         r.Typing,
		TypingUserID:   r.TypingUserID,
		Emails:         r.Emails,
		Members:        make([]Member, len(r.Members)),
	}
	for i, m := range r.Members {
		out.Members[i] = Member{
			UserID:   m.UserID,
			Nickname: m.Nickname,
			FaceURL:  m.FaceURL,
			Email:    m.Email,
			Phone:    m.Phone,
			Role:     string(m.Role),
			Online:   m.Online,
		}
	}
	if r.LastMessage != nil {
		last := toMessage(*r.LastMessage)
		out.LastMessage = &last
	}
	return out
}

func toRooms(rooms []model.Room) []Room {
	out := make([]Room, len(rooms))
	for i, r := range rooms {
		out[i] = toRoom(r)
	}
	return out
}

func toTimeline(v intsync.TimelineView) Timeline {
	out := Timeline{
		ConversationID: v.ConversationID,
		State:          string(v.State),
		Count:          v.Count,
		Bursts:         make([]Burst, len(v.Bursts)),
	}
	for i, b := range v.Bursts {
		out.Bursts[i] = Burst{SendID: b.SendID, IsRead: b.IsRead, SendTime: b.SendTime, Items: toMessages(b.Items)}
	}
	return out
}
