package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "imsync.v1.SyncService"

// SyncServer is the server side of imsync.v1.SyncService. Request and
// response bodies are protobuf Structs carrying the JSON shapes in types.go.
type SyncServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListRooms(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadOlder(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetTimeline(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendLocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Revoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkRead(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SetRoomStatus(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	AnnounceTyping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	MediaGallery(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, EventStream) error
}

// EventStream is the server stream of WatchEvents.
type EventStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a SyncServer method to a grpc.MethodDesc.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(SyncServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SyncServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SyncServer), ctx, req.(PReq))
			})
		},
	}
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

const watchEvents = "WatchEvents"

// ServiceDesc describes imsync.v1.SyncService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", SyncServer.GetStatus),
		unary("ListRooms", SyncServer.ListRooms),
		unary("SelectRoom", SyncServer.SelectRoom),
		unary("LoadOlder", SyncServer.LoadOlder),
		unary("GetTimeline", SyncServer.GetTimeline),
		unary("SendText", SyncServer.SendText),
		unary("SendLocation", SyncServer.SendLocation),
		unary("Revoke", SyncServer.Revoke),
		unary("MarkRead", SyncServer.MarkRead),
		unary("SetRoomStatus", SyncServer.SetRoomStatus),
		unary("AnnounceTyping", SyncServer.AnnounceTyping),
		unary("MediaGallery", SyncServer.MediaGallery),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    watchEvents,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(SyncServer).WatchEvents(in, &eventStream{stream})
		},
	}},
	Metadata: "imsync/v1/sync.proto",
}

// RegisterSyncServer registers srv on s.
func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}
