package store

import "github.com/matheus3301/imsync/internal/model"

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry is an outgoing message waiting for, or past, its send attempt.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	GroupID        string
	RecvID         string
	ContentType    model.ContentType
	Content        model.Content
	CorrelationID  string
	Status         string
	ErrorMessage   string
	ServerMsgID    string
	CreatedAt      int64
}

// Message returns the entry as an unconfirmed local message from sendID.
func (e *OutboxEntry) Message(sendID string) model.Message {
	return model.Message{
		ClientMsgID:    e.ClientMsgID,
		ServerMsgID:    e.ServerMsgID,
		ConversationID: e.ConversationID,
		GroupID:        e.GroupID,
		RecvID:         e.RecvID,
		SendID:         sendID,
		SendTime:       e.CreatedAt,
		ContentType:    e.ContentType,
		Content:        e.Content,
		CorrelationID:  e.CorrelationID,
	}
}
