package gateway

import (
	"context"
	"time"

	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/transport"
)

var _ transport.Messaging = (*Client)(nil)

const memberPageSize = 100

// History returns up to count messages older than startClientMsgID, oldest
// first, with bookkeeping records removed.
func (c *Client) History(ctx context.Context, conversationID, startClientMsgID string, count int) ([]model.Message, error) {
	var resp historyResp
	err := c.call(ctx, methodHistory, historyReq{
		ConversationID:   conversationID,
		StartClientMsgID: startClientMsgID,
		Count:            count,
	}, &resp)
	if err != nil {
		return nil, err
	}
	msgs := normalizeAll(resp.MessageList)
	for i := range msgs {
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	return msgs, nil
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var resp []wireConversation
	if err := c.call(ctx, methodConversations, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Conversation, len(resp))
	for i, w := range resp {
		out[i] = model.Conversation{
			ConversationID:    w.ConversationID,
			GroupID:           w.GroupID,
			UserID:            w.UserID,
			UnreadCount:       w.UnreadCount,
			LatestMsg:         w.LatestMsg,
			LatestMsgSendTime: w.LatestMsgSendTime,
		}
	}
	return out, nil
}

func (c *Client) JoinedGroups(ctx context.Context) ([]model.Room, error) {
	var resp []wireGroup
	if err := c.call(ctx, methodJoinedGroups, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Room, len(resp))
	for i, g := range resp {
		out[i] = g.room()
	}
	return out, nil
}

// GroupMembers pages through the whole member list of a group.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]model.Member, error) {
	var out []model.Member
	for offset := 0; ; offset += memberPageSize {
		var page []wireMember
		err := c.call(ctx, methodGroupMembers, groupMembersReq{
			GroupID: groupID,
			Offset:  offset,
			Count:   memberPageSize,
		}, &page)
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			out = append(out, model.Member{
				UserID:   m.UserID,
				Nickname: m.Nickname,
				FaceURL:  m.FaceURL,
				Role:     model.RoleCustomer,
			})
		}
		if len(page) < memberPageSize {
			return out, nil
		}
	}
}

// SendMessage sends req and returns the message as confirmed by the gateway.
func (c *Client) SendMessage(ctx context.Context, req transport.SendRequest) (model.Message, error) {
	msg := model.Message{
		ClientMsgID:    req.ClientMsgID,
		ConversationID: model.GroupConversationID(req.GroupID),
		GroupID:        req.GroupID,
		RecvID:         req.RecvID,
		SendID:         c.opts.UserID,
		SendTime:       time.Now().UnixMilli(),
		ContentType:    req.ContentType,
		Content:        req.Content,
		CorrelationID:  req.CorrelationID,
	}
	var resp model.WireMessage
	err := c.call(ctx, methodSendMessage, sendReq{
		RecvID:  req.RecvID,
		GroupID: req.GroupID,
		Message: model.EncodeWire(msg),
	}, &resp)
	if err != nil {
		return model.Message{}, err
	}
	if resp.ClientMsgID == "" {
		return msg, nil
	}
	return resp.Normalize(), nil
}

func (c *Client) RevokeMessage(ctx context.Context, conversationID, clientMsgID string) error {
	return c.call(ctx, methodRevokeMessage, revokeReq{ConversationID: conversationID, ClientMsgID: clientMsgID}, nil)
}

func (c *Client) ChangeInputStates(ctx context.Context, conversationID string, focus bool) error {
	return c.call(ctx, methodInputStates, inputStatesReq{ConversationID: conversationID, Focus: focus}, nil)
}

func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.call(ctx, methodMarkRead, markReadReq{ConversationID: conversationID}, nil)
}

// SetGroupStatus stores the room workflow flag in the group introduction.
func (c *Client) SetGroupStatus(ctx context.Context, groupID string, status model.RoomStatus) error {
	return c.call(ctx, methodSetGroupInfo, setGroupInfoReq{GroupID: groupID, Introduction: string(status)}, nil)
}
