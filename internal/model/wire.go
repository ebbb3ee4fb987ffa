package model

// Gateway content type codes.
const (
	codeText         = 101
	codePicture      = 102
	codeVoice        = 103
	codeVideo        = 104
	codeFile         = 105
	codeAtText       = 106
	codeLocation     = 109
	codeCustom       = 110
	codeQuote        = 114
	codeGroupCreated = 1501
	codeRevoke       = 2101
)

// WireMessage is the JSON message shape used by the gateway, both for pushed
// messages and for the serialized latest message of a conversation.
type WireMessage struct {
	ClientMsgID    string `json:"clientMsgID"`
	ServerMsgID    string `json:"serverMsgID,omitempty"`
	ConversationID string `json:"conversationID,omitempty"`
	SendID         string `json:"sendID"`
	RecvID         string `json:"recvID,omitempty"`
	GroupID        string `json:"groupID,omitempty"`
	SenderNickname string `json:"senderNickname,omitempty"`
	SendTime       int64  `json:"sendTime"`
	ContentType    int    `json:"contentType"`
	IsRead         bool   `json:"isRead,omitempty"`
	Ex             string `json:"ex,omitempty"`

	TextElem     *TextElem     `json:"textElem,omitempty"`
	AtTextElem   *AtTextElem   `json:"atTextElem,omitempty"`
	PictureElem  *PictureElem  `json:"pictureElem,omitempty"`
	SoundElem    *SoundElem    `json:"soundElem,omitempty"`
	VideoElem    *VideoElem    `json:"videoElem,omitempty"`
	FileElem     *FileElem     `json:"fileElem,omitempty"`
	LocationElem *LocationElem `json:"locationElem,omitempty"`
	QuoteElem    *QuoteElem    `json:"quoteElem,omitempty"`
}

type TextElem struct {
	Content string `json:"content"`
}

type AtTextElem struct {
	Text string `json:"text"`
}

type PictureElem struct {
	SourcePicture PictureInfo `json:"sourcePicture"`
}

type PictureInfo struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type SoundElem struct {
	SourceURL string `json:"sourceUrl"`
	DataSize  int64  `json:"dataSize"`
	Duration  int64  `json:"duration"`
}

type VideoElem struct {
	VideoURL  string `json:"videoUrl"`
	VideoSize int64  `json:"videoSize"`
	Duration  int64  `json:"duration"`
	Name      string `json:"name,omitempty"`
}

type FileElem struct {
	SourceURL string `json:"sourceUrl"`
	FileName  string `json:"fileName"`
	Name      string `json:"name,omitempty"`
	FileSize  int64  `json:"fileSize"`
}

type LocationElem struct {
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type QuoteElem struct {
	Text         string       `json:"text"`
	QuoteMessage *WireMessage `json:"quoteMessage,omitempty"`
}

// Hidden reports whether the record is bookkeeping that never reaches a timeline.
func (w *WireMessage) Hidden() bool {
	return w.ContentType == codeCustom || w.ContentType == codeGroupCreated
}

// GroupConversationID derives the conversation id the gateway assigns to a group.
func GroupConversationID(groupID string) string {
	if groupID == "" {
		return ""
	}
	return "sg_" + groupID
}

// Normalize converts the wire shape into a Message. A malformed extension
// blob leaves CorrelationID empty.
func (w *WireMessage) Normalize() Message {
	m := Message{
		ClientMsgID:    w.ClientMsgID,
		ServerMsgID:    w.ServerMsgID,
		ConversationID: w.ConversationID,
		GroupID:        w.GroupID,
		RecvID:         w.RecvID,
		SendID:         w.SendID,
		SenderNickname: w.SenderNickname,
		SendTime:       w.SendTime,
		IsRead:         w.IsRead,
	}
	if m.ConversationID == "" {
		m.ConversationID = GroupConversationID(w.GroupID)
	}
	if ex, err := DecodeExtension(w.Ex); err == nil {
		m.CorrelationID = ex.CorrelationID
	}

	switch w.ContentType {
	case codeText:
		m.ContentType = Text
		if w.TextElem != nil {
			m.Content.Text = w.TextElem.Content
		}
	case codeAtText:
		m.ContentType = Text
		if w.AtTextElem != nil {
			m.Content.Text = w.AtTextElem.Text
		}
	case codePicture:
		m.ContentType = Picture
		if w.PictureElem != nil {
			m.Content.URL = w.PictureElem.SourcePicture.URL
			m.Content.Size = w.PictureElem.SourcePicture.Size
		}
	case codeVoice:
		m.ContentType = Voice
		if w.SoundElem != nil {
			m.Content.URL = w.SoundElem.SourceURL
			m.Content.Size = w.SoundElem.DataSize
			m.Content.Duration = w.SoundElem.Duration
		}
	case codeVideo:
		m.ContentType = Video
		if w.VideoElem != nil {
			m.Content.URL = w.VideoElem.VideoURL
			m.Content.Size = w.VideoElem.VideoSize
			m.Content.Duration = w.VideoElem.Duration
			m.Content.FileName = w.VideoElem.Name
		}
	case codeFile:
		m.ContentType = File
		if w.FileElem != nil {
			m.Content.URL = w.FileElem.SourceURL
			m.Content.Size = w.FileElem.FileSize
			m.Content.FileName = w.FileElem.FileName
			if m.Content.FileName == "" {
				m.Content.FileName = w.FileElem.Name
			}
		}
	case codeLocation:
		m.ContentType = Location
		if w.LocationElem != nil {
			m.Content.Description = w.LocationElem.Description
			m.Content.Latitude = w.LocationElem.Latitude
			m.Content.Longitude = w.LocationElem.Longitude
		}
	case codeQuote:
		m.ContentType = Quote
		if w.QuoteElem != nil {
			m.Content.Text = w.QuoteElem.Text
			if q := w.QuoteElem.QuoteMessage; q != nil {
				m.Content.QuotedID = q.ClientMsgID
				qm := q.Normalize()
				m.Content.QuotedText = qm.Preview()
			}
		}
	case codeRevoke:
		m.ContentType = Revoke
	default:
		m.ContentType = System
	}
	return m
}

// ContentTypeCode maps a content type back to its gateway code.
func ContentTypeCode(ct ContentType) int {
	switch ct {
	case Text:
		return codeText
	case Picture:
		return codePicture
	case Voice:
		return codeVoice
	case Video:
		return codeVideo
	case File:
		return codeFile
	case Location:
		return codeLocation
	case Quote:
		return codeQuote
	case Revoke:
		return codeRevoke
	default:
		return codeCustom
	}
}

// EncodeWire builds the wire form of an outgoing message.
func EncodeWire(m Message) WireMessage {
	w := WireMessage{
		ClientMsgID:    m.ClientMsgID,
		ServerMsgID:    m.ServerMsgID,
		ConversationID: m.ConversationID,
		SendID:         m.SendID,
		RecvID:         m.RecvID,
		GroupID:        m.GroupID,
		SenderNickname: m.SenderNickname,
		SendTime:       m.SendTime,
		ContentType:    ContentTypeCode(m.ContentType),
		IsRead:         m.IsRead,
		Ex:             EncodeExtension(m.CorrelationID, m.ContentType),
	}
	c := m.Content
	switch m.ContentType {
	case Text:
		w.TextElem = &TextElem{Content: c.Text}
	case Picture:
		w.PictureElem = &PictureElem{SourcePicture: PictureInfo{URL: c.URL, Size: c.Size}}
	case Voice:
		w.SoundElem = &SoundElem{SourceURL: c.URL, DataSize: c.Size, Duration: c.Duration}
	case Video:
		w.VideoElem = &VideoElem{VideoURL: c.URL, VideoSize: c.Size, Duration: c.Duration, Name: c.FileName}
	case File:
		w.FileElem = &FileElem{SourceURL: c.URL, FileName: c.FileName, FileSize: c.Size}
	case Location:
		w.LocationElem = &LocationElem{Description: c.Description, Latitude: c.Latitude, Longitude: c.Longitude}
	case Quote:
		w.QuoteElem = &QuoteElem{Text: c.Text}
		if c.QuotedID != "" {
			w.QuoteElem.QuoteMessage = &WireMessage{
				ClientMsgID: c.QuotedID,
				ContentType: codeText,
				TextElem:    &TextElem{Content: c.QuotedText},
			}
		}
	}
	return w
}
