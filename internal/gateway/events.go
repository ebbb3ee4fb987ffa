package gateway

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/status"
	"github.com/matheus3301/imsync/internal/transport"
)

// EventHandler processes pushed gateway events, drives the connection state
// machine and publishes parsed events on the bus. It does not call the sync
// coordinator; the coordinator subscribes to the bus on its own.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Handle dispatches one pushed event.
func (h *EventHandler) Handle(event string, data json.RawMessage) {
	switch event {
	case eventConnecting:
		h.transition(status.Connecting)
	case eventConnectSuccess:
		h.transition(status.Connected)
	case eventConnectFailed:
		h.logger.Warn("gateway reported connect failure", zap.ByteString("data", data))
		h.transition(status.ConnectFailed)
	case eventKickedOffline:
		h.logger.Warn("session kicked offline")
		h.transition(status.KickedOffline)
	case eventNewMessages:
		h.handleNewMessages(data)
	case eventJoinedGroupAdded:
		h.handleGroupJoined(data)
	case eventInputStatusChange:
		h.handleInputStatus(data)
	default:
		h.logger.Debug("unhandled gateway event", zap.String("event", event))
	}
}

func (h *EventHandler) transition(to status.State) {
	if err := h.machine.Transition(to); err != nil {
		h.logger.Debug("connection transition rejected", zap.Error(err))
	}
}

func (h *EventHandler) handleNewMessages(data json.RawMessage) {
	var wire []model.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		h.logger.Warn("bad new messages payload", zap.Error(err))
		return
	}
	msgs := normalizeAll(wire)
	if len(msgs) == 0 {
		return
	}
	h.bus.Publish(bus.Event{
		Kind:      transport.KindNewMessages,
		Timestamp: time.Now(),
		Payload:   transport.NewMessages{Messages: msgs},
	})
}

func (h *EventHandler) handleGroupJoined(data json.RawMessage) {
	var g wireGroup
	if err := json.Unmarshal(data, &g); err != nil || g.GroupID == "" {
		h.logger.Warn("bad joined group payload", zap.Error(err))
		return
	}
	h.bus.Publish(bus.Event{
		Kind:      transport.KindGroupJoined,
		Timestamp: time.Now(),
		Payload:   transport.GroupJoined{Room: g.room()},
	})
}

func (h *EventHandler) handleInputStatus(data json.RawMessage) {
	var in inputStatusEvent
	if err := json.Unmarshal(data, &in); err != nil {
		h.logger.Warn("bad input status payload", zap.Error(err))
		return
	}
	h.bus.Publish(bus.Event{
		Kind:      transport.KindInputStatus,
		Timestamp: time.Now(),
		Payload: transport.InputStatus{
			ConversationID: in.ConversationID,
			UserID:         in.UserID,
			Typing:         len(in.PlatformIDs) > 0,
		},
	})
}
