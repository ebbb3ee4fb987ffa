// Package outbox drains queued outgoing messages through the messaging
// transport.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/store"
	"github.com/matheus3301/imsync/internal/transport"
)

// Bus event kinds published by the sender.
const (
	KindSent   = "outbox.sent"
	KindFailed = "outbox.failed"
)

// Sent is the payload of KindSent: the message as confirmed by the backend.
type Sent struct {
	ClientMsgID string
	Message     model.Message
}

// Failed is the payload of KindFailed.
type Failed struct {
	ClientMsgID    string
	ConversationID string
	Err            string
}

// MessageSender sends one message through the transport.
type MessageSender interface {
	SendMessage(ctx context.Context, req transport.SendRequest) (model.Message, error)
}

// DefaultInterval is how often the outbox is polled when nothing kicks it.
const DefaultInterval = 500 * time.Millisecond

// Sender drains the outbox and sends messages through the transport.
// Failed sends are marked failed and never retried here.
type Sender struct {
	db       *store.DB
	sender   MessageSender
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	kick     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logger,
		interval: DefaultInterval,
		kick:     make(chan struct{}, 1),
	}
}

// Start requeues entries interrupted mid-send and begins draining the outbox.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.RequeueSending(); err != nil {
		s.logger.Error("failed to requeue interrupted sends", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted sends", zap.Int("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Kick asks the loop to drain the outbox now instead of at the next tick.
func (s *Sender) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-s.kick:
			s.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush sends every queued entry once and returns how many were sent.
func (s *Sender) Flush(ctx context.Context) int {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return sent
		}
		if s.send(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) bool {
	log := s.logger.With(zap.String("client_msg_id", entry.ClientMsgID), zap.String("conversation_id", entry.ConversationID))
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		log.Error("failed to mark sending", zap.Error(err))
		return false
	}

	msg, err := s.sender.SendMessage(ctx, transport.SendRequest{
		ClientMsgID:   entry.ClientMsgID,
		GroupID:       entry.GroupID,
		RecvID:        entry.RecvID,
		ContentType:   entry.ContentType,
		Content:       entry.Content,
		CorrelationID: entry.CorrelationID,
	})
	if err != nil {
		log.Error("failed to send message", zap.Error(err))
		if err := s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error()); err != nil {
			log.Error("failed to mark failed", zap.Error(err))
		}
		s.bus.Publish(bus.Event{
			Kind:      KindFailed,
			Timestamp: time.Now(),
			Payload: Failed{
				ClientMsgID:    entry.ClientMsgID,
				ConversationID: entry.ConversationID,
				Err:            err.Error(),
			},
		})
		return false
	}

	if msg.ConversationID == "" {
		msg.ConversationID = entry.ConversationID
	}
	if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ServerMsgID); err != nil {
		log.Error("failed to mark sent", zap.Error(err))
	}
	log.Info("message sent", zap.String("server_msg_id", msg.ServerMsgID))
	s.bus.Publish(bus.Event{
		Kind:      KindSent,
		Timestamp: time.Now(),
		Payload:   Sent{ClientMsgID: entry.ClientMsgID, Message: msg},
	})
	return true
}
