// Package transport defines what the sync engine needs from the messaging
// backend and the profile directory, and the events the backend pushes.
package transport

import (
	"context"
	"errors"

	"github.com/matheus3301/imsync/internal/model"
)

// ErrNotConnected is returned by requests issued while the backend link is down.
var ErrNotConnected = errors.New("gateway not connected")

// Bus event kinds published by a Messaging implementation.
const (
	KindNewMessages = "im.new_messages"
	KindGroupJoined = "im.group_joined"
	KindInputStatus = "im.input_status"
)

// NewMessages is the payload of KindNewMessages.
type NewMessages struct {
	Messages []model.Message
}

// GroupJoined is the payload of KindGroupJoined.
type GroupJoined struct {
	Room model.Room
}

// InputStatus is the payload of KindInputStatus. Typing is false when the
// remote user stopped typing on every platform.
type InputStatus struct {
	ConversationID string
	UserID         string
	Typing         bool
}

// SendRequest is an outgoing message. ClientMsgID and CorrelationID are
// assigned by the caller.
type SendRequest struct {
	ClientMsgID   string
	GroupID       string
	RecvID        string
	ContentType   model.ContentType
	Content       model.Content
	CorrelationID string
}

// Messaging is the messaging backend.
type Messaging interface {
	History(ctx context.Context, conversationID, startClientMsgID string, count int) ([]model.Message, error)
	Conversations(ctx context.Context) ([]model.Conversation, error)
	JoinedGroups(ctx context.Context) ([]model.Room, error)
	GroupMembers(ctx context.Context, groupID string) ([]model.Member, error)
	SendMessage(ctx context.Context, req SendRequest) (model.Message, error)
	RevokeMessage(ctx context.Context, conversationID, clientMsgID string) error
	ChangeInputStates(ctx context.Context, conversationID string, focus bool) error
	MarkConversationRead(ctx context.Context, conversationID string) error
	SetGroupStatus(ctx context.Context, groupID string, status model.RoomStatus) error
}

// Profiles is the user profile directory.
type Profiles interface {
	UserInfos(ctx context.Context, userIDs []string) ([]model.UserInfo, error)
	// OnlineUsers returns the subset of userIDs currently online.
	OnlineUsers(ctx context.Context, userIDs []string) ([]string, error)
}
