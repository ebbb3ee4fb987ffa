package model

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// Extension is the typed form of a message's opaque extension blob.
type Extension struct {
	CorrelationID string
}

// rawExtension lists every key older clients used for the correlation id.
// Precedence is requestId, albumId, albumID. Some clients send numbers.
type rawExtension struct {
	RequestID json.RawMessage `json:"requestId"`
	AlbumID   json.RawMessage `json:"albumId"`
	AlbumIDUp json.RawMessage `json:"albumID"`
}

// scalarID renders a string or number as an id. Anything else is no id.
func scalarID(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return ""
		}
		return n.String()
	}
	return ""
}

// DecodeExtension parses an extension blob. An empty blob is not an error.
// A malformed blob returns ErrMalformedExtension and a zero Extension, which
// callers treat as "no correlation".
func DecodeExtension(raw string) (Extension, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Extension{}, nil
	}
	var ex rawExtension
	if err := json.Unmarshal([]byte(raw), &ex); err != nil {
		return Extension{}, fmt.Errorf("%w: %v", ErrMalformedExtension, err)
	}
	id := scalarID(ex.RequestID)
	if id == "" {
		id = scalarID(ex.AlbumID)
	}
	if id == "" {
		id = scalarID(ex.AlbumIDUp)
	}
	return Extension{CorrelationID: id}, nil
}

// EncodeExtension builds the blob attached to an outgoing message. Pictures
// also carry albumId so older clients keep clustering albums.
func EncodeExtension(correlationID string, ct ContentType) string {
	if correlationID == "" {
		return ""
	}
	ex := struct {
		RequestID string `json:"requestId"`
		AlbumID   string `json:"albumId,omitempty"`
	}{RequestID: correlationID}
	if ct == Picture {
		ex.AlbumID = correlationID
	}
	data, _ := json.Marshal(ex)
	return string(data)
}

// DecodeRoomExtension returns the avatar symbol and background colour for a
// room. Missing or malformed values fall back to the first two letters of the
// name and a dark colour derived from the group id.
func DecodeRoomExtension(raw, name, groupID string) (symbol, bgColor string) {
	var ex struct {
		Symbol  string `json:"symbol"`
		BgColor string `json:"bgColor"`
	}
	if strings.TrimSpace(raw) != "" {
		_ = json.Unmarshal([]byte(raw), &ex)
	}
	symbol = ex.Symbol
	if symbol == "" {
		r := []rune(name)
		if len(r) > 2 {
			r = r[:2]
		}
		symbol = string(r)
	}
	bgColor = ex.BgColor
	if bgColor == "" {
		bgColor = darkColor(groupID)
	}
	return symbol, bgColor
}

func darkColor(seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum32()
	hue := sum % 361
	saturation := 70 + (sum/361)%31
	lightness := 25 + (sum/(361*31))%31
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, saturation, lightness)
}

// DecodeLatestMessage decodes the serialized latest message a conversation
// carries. The blob uses the gateway's message shape.
func DecodeLatestMessage(raw string) (*Message, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var wm WireMessage
	if err := json.Unmarshal([]byte(raw), &wm); err != nil {
		return nil, fmt.Errorf("decode latest message: %w", err)
	}
	m := wm.Normalize()
	return &m, nil
}
