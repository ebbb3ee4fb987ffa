package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed client for a daemon's SyncService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, in any, out any) error {
	var req proto.Message = &emptypb.Empty{}
	if in != nil {
		s, err := encode(in)
		if err != nil {
			return err
		}
		req = s
	}
	if out == nil {
		return c.conn.Invoke(ctx, fullMethod(method), req, &emptypb.Empty{})
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.call(ctx, "GetStatus", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRooms(ctx context.Context, req ListRoomsRequest) ([]Room, error) {
	var out ListRoomsResponse
	if err := c.call(ctx, "ListRooms", req, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) SelectRoom(ctx context.Context, groupID string) (*SelectRoomResponse, error) {
	var out SelectRoomResponse
	if err := c.call(ctx, "SelectRoom", SelectRoomRequest{GroupID: groupID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LoadOlder(ctx context.Context) (*LoadOlderResponse, error) {
	var out LoadOlderResponse
	if err := c.call(ctx, "LoadOlder", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Timeline(ctx context.Context) (*Timeline, error) {
	var out Timeline
	if err := c.call(ctx, "GetTimeline", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendText sends text to the active room, quoting quotedID when it is set.
func (c *Client) SendText(ctx context.Context, text, quotedID string) (string, error) {
	var out SendResponse
	if err := c.call(ctx, "SendText", SendTextRequest{Text: text, QuotedID: quotedID}, &out); err != nil {
		return "", err
	}
	return out.ClientMsgID, nil
}

func (c *Client) SendLocation(ctx context.Context, req SendLocationRequest) (string, error) {
	var out SendResponse
	if err := c.call(ctx, "SendLocation", req, &out); err != nil {
		return "", err
	}
	return out.ClientMsgID, nil
}

func (c *Client) Revoke(ctx context.Context, clientMsgID string) (int, error) {
	var out RevokeResponse
	if err := c.call(ctx, "Revoke", RevokeRequest{ClientMsgID: clientMsgID}, &out); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

func (c *Client) MarkRead(ctx context.Context) error {
	return c.call(ctx, "MarkRead", nil, nil)
}

func (c *Client) SetRoomStatus(ctx context.Context, groupID, status string) error {
	return c.call(ctx, "SetRoomStatus", SetRoomStatusRequest{GroupID: groupID, Status: status}, nil)
}

func (c *Client) AnnounceTyping(ctx context.Context) error {
	return c.call(ctx, "AnnounceTyping", nil, nil)
}

func (c *Client) MediaGallery(ctx context.Context, conversationID string) ([]Message, error) {
	var out MediaGalleryResponse
	if err := c.call(ctx, "MediaGallery", MediaGalleryRequest{ConversationID: conversationID}, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// WatchEvents streams events whose kind starts with prefix and calls fn for
// each one until ctx ends, the stream fails or fn returns an error.
func (c *Client) WatchEvents(ctx context.Context, prefix string, fn func(Event) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(watchEvents))
	if err != nil {
		return err
	}
	req, err := encode(WatchEventsRequest{Prefix: prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var evt Event
		if err := decode(msg, &evt); err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
