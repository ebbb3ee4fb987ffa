package gateway

import (
	"encoding/json"

	"github.com/matheus3301/imsync/internal/model"
)

// Envelope types.
const (
	typeRequest  = "req"
	typeResponse = "resp"
	typeEvent    = "event"
)

// Request methods.
const (
	methodHistory       = "getAdvancedHistoryMessageList"
	methodConversations = "getAllConversationList"
	methodJoinedGroups  = "getJoinedGroupList"
	methodGroupMembers  = "getGroupMemberList"
	methodSendMessage   = "sendMessage"
	methodRevokeMessage = "revokeMessage"
	methodInputStates   = "changeInputStates"
	methodMarkRead      = "markConversationMessageAsRead"
	methodSetGroupInfo  = "setGroupInfo"
)

// Pushed events.
const (
	eventConnecting        = "OnConnecting"
	eventConnectSuccess    = "OnConnectSuccess"
	eventConnectFailed     = "OnConnectFailed"
	eventKickedOffline     = "OnKickedOffline"
	eventNewMessages       = "OnRecvNewMessages"
	eventJoinedGroupAdded  = "OnJoinedGroupAdded"
	eventInputStatusChange = "OnInputStatusChanged"
)

// envelope is one websocket frame. Requests carry Method, responses echo the
// request's OperationID, events carry Event.
type envelope struct {
	Type        string          `json:"type"`
	OperationID string          `json:"operationID,omitempty"`
	Method      string          `json:"method,omitempty"`
	Event       string          `json:"event,omitempty"`
	ErrCode     int             `json:"errCode,omitempty"`
	ErrMsg      string          `json:"errMsg,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type historyReq struct {
	ConversationID   string `json:"conversationID"`
	StartClientMsgID string `json:"startClientMsgID"`
	Count            int    `json:"count"`
}

type historyResp struct {
	MessageList []model.WireMessage `json:"messageList"`
	IsEnd       bool                `json:"isEnd"`
}

type wireConversation struct {
	ConversationID    string `json:"conversationID"`
	GroupID           string `json:"groupID"`
	UserID            string `json:"userID"`
	UnreadCount       int    `json:"unreadCount"`
	LatestMsg         string `json:"latestMsg"`
	LatestMsgSendTime int64  `json:"latestMsgSendTime"`
}

type wireGroup struct {
	GroupID      string `json:"groupID"`
	GroupName    string `json:"groupName"`
	Ex           string `json:"ex"`
	Introduction string `json:"introduction"`
	CreateTime   int64  `json:"createTime"`
}

type groupMembersReq struct {
	GroupID string `json:"groupID"`
	Filter  int    `json:"filter"`
	Offset  int    `json:"offset"`
	Count   int    `json:"count"`
}

type wireMember struct {
	UserID   string `json:"userID"`
	Nickname string `json:"nickname"`
	FaceURL  string `json:"faceURL"`
}

type sendReq struct {
	RecvID  string            `json:"recvID"`
	GroupID string            `json:"groupID"`
	Message model.WireMessage `json:"message"`
}

type revokeReq struct {
	ConversationID string `json:"conversationID"`
	ClientMsgID    string `json:"clientMsgID"`
}

type inputStatesReq struct {
	ConversationID string `json:"conversationID"`
	Focus          bool   `json:"focus"`
}

type markReadReq struct {
	ConversationID string `json:"conversationID"`
}

type setGroupInfoReq struct {
	GroupID      string `json:"groupID"`
	Introduction string `json:"introduction"`
}

type inputStatusEvent struct {
	ConversationID string `json:"conversationID"`
	UserID         string `json:"userID"`
	PlatformIDs    []int  `json:"platformIDs"`
}

func (g wireGroup) room() model.Room {
	r := model.Room{
		GroupID:        g.GroupID,
		ConversationID: model.GroupConversationID(g.GroupID),
		Name:           g.GroupName,
		Ex:             g.Ex,
		Status:         model.RoomOpen,
		CreateTime:     g.CreateTime,
	}
	if g.Introduction == string(model.RoomClose) {
		r.Status = model.RoomClose
	}
	r.Symbol, r.BgColor = model.DecodeRoomExtension(g.Ex, g.GroupName, g.GroupID)
	return r
}

// normalizeAll converts wire messages, dropping bookkeeping records.
func normalizeAll(in []model.WireMessage) []model.Message {
	out := make([]model.Message, 0, len(in))
	for i := range in {
		if in[i].Hidden() {
			continue
		}
		out = append(out, in[i].Normalize())
	}
	return out
}
