// Package api exposes the sync engine to presentation clients over gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/imsync/internal/bus"
	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/rooms"
	"github.com/matheus3301/imsync/internal/status"
	intsync "github.com/matheus3301/imsync/internal/sync"
	"github.com/matheus3301/imsync/internal/transport"
)

// Engine is what the service needs from the sync coordinator.
type Engine interface {
	Connection() status.State
	Rooms(opts rooms.ViewOptions) []model.Room
	Selected() (model.Room, bool)
	Timeline() intsync.TimelineView
	SelectRoom(ctx context.Context, groupID string) (model.Room, error)
	LoadOlder(ctx context.Context) (int, error)
	SendText(ctx context.Context, text string) (string, error)
	Reply(ctx context.Context, quotedID, text string) (string, error)
	SendLocation(ctx context.Context, description string, lat, lng float64) (string, error)
	Revoke(ctx context.Context, clientMsgID string) (int, error)
	MarkRead(ctx context.Context) error
	SetRoomStatus(ctx context.Context, groupID string, st model.RoomStatus) error
	AnnounceTyping(ctx context.Context) error
	MediaGallery(ctx context.Context, conversationID string) ([]model.Message, error)
}

var (
	_ Engine     = (*intsync.Coordinator)(nil)
	_ SyncServer = (*Service)(nil)
)

// Service implements SyncServer on top of an Engine.
type Service struct {
	engine      Engine
	bus         *bus.Bus
	sessionName string
	startedAt   time.Time
	logger      *zap.Logger
}

// NewService creates the gRPC service.
func NewService(sessionName string, engine Engine, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:      engine,
		bus:         b,
		sessionName: sessionName,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

// toStatus maps engine errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.FromContextError(err).Err()
	case errors.Is(err, model.ErrRoomNotFound), errors.Is(err, model.ErrMessageNotFound):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, model.ErrNoActiveRoom), errors.Is(err, model.ErrLoadInFlight):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, model.ErrStaleResponse):
		return grpcstatus.Error(codes.Aborted, err.Error())
	case errors.Is(err, transport.ErrNotConnected), model.IsTransient(err):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}

func reply(v any) (*structpb.Struct, error) {
	s, err := encode(v)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func parse(in *structpb.Struct, v any) error {
	if err := decode(in, v); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func (s *Service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := Status{
		Session:    s.sessionName,
		Connection: string(s.engine.Connection()),
		UptimeMs:   time.Since(s.startedAt).Milliseconds(),
		Rooms:      len(s.engine.Rooms(rooms.ViewOptions{})),
	}
	if r, ok := s.engine.Selected(); ok {
		st.SelectedGroupID = r.GroupID
	}
	return reply(st)
}

func (s *Service) ListRooms(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListRoomsRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	opts := rooms.ViewOptions{
		Category: rooms.Category(req.Category),
		Search:   req.Search,
		Sort:     rooms.SortKey(req.Sort),
		Locale:   req.Locale,
	}
	switch opts.Category {
	case "", rooms.CategoryAll, rooms.CategoryOpen, rooms.CategoryClose:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown category %q", req.Category)
	}
	switch opts.Sort {
	case "", rooms.SortNewest, rooms.SortAlphaAZ, rooms.SortAlphaZA:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown sort %q", req.Sort)
	}
	return reply(ListRoomsResponse{Rooms: toRooms(s.engine.Rooms(opts))})
}

func (s *Service) SelectRoom(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SelectRoomRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	if req.GroupID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "groupId is required")
	}
	room, err := s.engine.SelectRoom(ctx, req.GroupID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(SelectRoomResponse{Room: toRoom(room), Timeline: toTimeline(s.engine.Timeline())})
}

func (s *Service) LoadOlder(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	n, err := s.engine.LoadOlder(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(LoadOlderResponse{Added: n, Timeline: toTimeline(s.engine.Timeline())})
}

func (s *Service) GetTimeline(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return reply(toTimeline(s.engine.Timeline()))
}

func (s *Service) SendText(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendTextRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	if req.Text == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "text is required")
	}
	var (
		id  string
		err error
	)
	if req.QuotedID != "" {
		id, err = s.engine.Reply(ctx, req.QuotedID, req.Text)
	} else {
		id, err = s.engine.SendText(ctx, req.Text)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(SendResponse{ClientMsgID: id})
}

func (s *Service) SendLocation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendLocationRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	id, err := s.engine.SendLocation(ctx, req.Description, req.Latitude, req.Longitude)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(SendResponse{ClientMsgID: id})
}

func (s *Service) Revoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RevokeRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	n, err := s.engine.Revoke(ctx, req.ClientMsgID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(RevokeResponse{Revoked: n})
}

func (s *Service) MarkRead(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.engine.MarkRead(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) SetRoomStatus(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req SetRoomStatusRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	st := model.RoomStatus(req.Status)
	if st != model.RoomOpen && st != model.RoomClose {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "status must be open or close, got %q", req.Status)
	}
	if err := s.engine.SetRoomStatus(ctx, req.GroupID, st); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) AnnounceTyping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.engine.AnnounceTyping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) MediaGallery(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req MediaGalleryRequest
	if err := parse(in, &req); err != nil {
		return nil, err
	}
	msgs, err := s.engine.MediaGallery(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(MediaGalleryResponse{Messages: toMessages(msgs)})
}

// WatchEvents streams view events, starting with the retained state of every
// matching kind. The prefix defaults to "view.".
func (s *Service) WatchEvents(in *structpb.Struct, stream EventStream) error {
	var req WatchEventsRequest
	if err := parse(in, &req); err != nil {
		return err
	}
	if req.Prefix == "" {
		req.Prefix = "view."
	}
	ch, unsub := s.bus.SubscribeReplay(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			msg, err := s.envelope(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *Service) envelope(evt bus.Event) (*structpb.Struct, error) {
	payload, err := encodePayload(evt.Payload)
	if err != nil {
		return nil, err
	}
	return encode(Event{
		EventID:      uuid.NewString(),
		Session:      s.sessionName,
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
		Payload:      payload,
	})
}

// encodePayload converts a bus payload into its API JSON shape.
func encodePayload(p any) ([]byte, error) {
	var v any
	switch p := p.(type) {
	case intsync.RoomsView:
		v = ListRoomsResponse{Rooms: toRooms(p.Rooms)}
	case model.Room:
		v = toRoom(p)
	case intsync.TimelineView:
		v = toTimeline(p)
	case model.TypingState:
		v = Typing{ConversationID: p.ConversationID, IsTyping: p.IsTyping, ByUserID: p.ByUserID}
	case status.StatusChange:
		v = map[string]string{"from": string(p.From), "to": string(p.To)}
	case intsync.SendFailedView:
		v = map[string]string{"clientMsgId": p.ClientMsgID, "conversationId": p.ConversationID, "error": p.Err}
	case nil:
		v = map[string]any{}
	default:
		return nil, fmt.Errorf("unsupported payload %T", p)
	}
	return json.Marshal(v)
}
