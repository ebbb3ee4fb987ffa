package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeExtension(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"requestId", `{"requestId":"r1"}`, "r1", false},
		{"albumId", `{"albumId":"a1"}`, "a1", false},
		{"albumID", `{"albumID":"a2"}`, "a2", false},
		{"requestId wins", `{"albumId":"a1","requestId":"r1","albumID":"a2"}`, "r1", false},
		{"albumId over albumID", `{"albumID":"a2","albumId":"a1"}`, "a1", false},
		{"no keys", `{"other":"x"}`, "", false},
		{"not json", `{requestId:`, "", true},
		{"numeric requestId", `{"requestId":123}`, "123", false},
		{"numeric albumId", `{"albumId":4.5}`, "4.5", false},
		{"null requestId falls through", `{"requestId":null,"albumId":"a1"}`, "a1", false},
		{"object requestId ignored", `{"requestId":{"x":1}}`, "", false},
		{"not an object", `[1,2]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := DecodeExtension(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedExtension) {
					t.Fatalf("err = %v, want ErrMalformedExtension", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ex.CorrelationID != tt.want {
				t.Errorf("CorrelationID = %q, want %q", ex.CorrelationID, tt.want)
			}
		})
	}
}

func TestEncodeExtension(t *testing.T) {
	if got := EncodeExtension("", Text); got != "" {
		t.Errorf("EncodeExtension(empty) = %q, want empty", got)
	}
	if got := EncodeExtension("r1", Text); got != `{"requestId":"r1"}` {
		t.Errorf("text ex = %q", got)
	}
	pic := EncodeExtension("r2", Picture)
	if pic != `{"requestId":"r2","albumId":"r2"}` {
		t.Errorf("picture ex = %q", pic)
	}
	ex, err := DecodeExtension(pic)
	if err != nil || ex.CorrelationID != "r2" {
		t.Errorf("round trip = %+v, %v", ex, err)
	}
}

func TestDecodeRoomExtension(t *testing.T) {
	sym, bg := DecodeRoomExtension(`{"symbol":"XY","bgColor":"#112233"}`, "Support", "g1")
	if sym != "XY" || bg != "#112233" {
		t.Errorf("got %q %q", sym, bg)
	}

	sym, bg = DecodeRoomExtension("not json", "Ñandú team", "g1")
	if sym != "Ña" {
		t.Errorf("fallback symbol = %q, want Ña", sym)
	}
	if !strings.HasPrefix(bg, "hsl(") {
		t.Errorf("fallback colour = %q", bg)
	}
	_, again := DecodeRoomExtension("", "other", "g1")
	if again != bg {
		t.Errorf("colour not stable for the same group: %q vs %q", again, bg)
	}
}

func TestDarkColorRanges(t *testing.T) {
	for i := 0; i < 200; i++ {
		var h, s, l int
		c := darkColor(fmt.Sprintf("group-%d", i))
		if _, err := fmt.Sscanf(c, "hsl(%d, %d%%, %d%%)", &h, &s, &l); err != nil {
			t.Fatalf("parse %q: %v", c, err)
		}
		if h < 0 || h > 360 || s < 70 || s > 100 || l < 25 || l > 55 {
			t.Errorf("colour out of range: %q", c)
		}
	}
}

func TestDecodeLatestMessage(t *testing.T) {
	m, err := DecodeLatestMessage("")
	if err != nil || m != nil {
		t.Fatalf("empty = %v, %v", m, err)
	}

	raw := `{"clientMsgID":"c1","sendID":"u1","groupID":"g1","sendTime":10,"contentType":101,` +
		`"textElem":{"content":"hello"},"ex":"{\"requestId\":\"r9\"}"}`
	m, err = DecodeLatestMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.ClientMsgID != "c1" || m.Content.Text != "hello" || m.ContentType != Text {
		t.Errorf("decoded = %+v", m)
	}
	if m.ConversationID != "sg_g1" {
		t.Errorf("ConversationID = %q, want sg_g1", m.ConversationID)
	}
	if m.CorrelationID != "r9" {
		t.Errorf("CorrelationID = %q, want r9", m.CorrelationID)
	}

	if _, err := DecodeLatestMessage("{broken"); err == nil {
		t.Error("expected error for malformed latest message")
	}
}

func TestNormalizeContentTypes(t *testing.T) {
	tests := []struct {
		code int
		want ContentType
	}{
		{101, Text},
		{106, Text},
		{102, Picture},
		{103, Voice},
		{104, Video},
		{105, File},
		{109, Location},
		{114, Quote},
		{2101, Revoke},
		{1201, System},
	}
	for _, tt := range tests {
		w := WireMessage{ClientMsgID: "c", ContentType: tt.code}
		if got := w.Normalize().ContentType; got != tt.want {
			t.Errorf("code %d -> %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestNormalizeMalformedExtensionIsUncorrelated(t *testing.T) {
	w := WireMessage{ClientMsgID: "c", ContentType: 101, Ex: "{oops"}
	if got := w.Normalize().CorrelationID; got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestHidden(t *testing.T) {
	for code, want := range map[int]bool{110: true, 1501: true, 101: false, 2101: false} {
		w := WireMessage{ContentType: code}
		if w.Hidden() != want {
			t.Errorf("Hidden(%d) = %v, want %v", code, !want, want)
		}
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 150)
	tests := []struct {
		msg  Message
		want string
	}{
		{Message{ContentType: Text, Content: Content{Text: "hi"}}, "hi"},
		{Message{ContentType: Text, Content: Content{Text: long}}, strings.Repeat("é", 100)},
		{Message{ContentType: Picture}, "[picture]"},
		{Message{ContentType: File, Content: Content{FileName: "a.pdf"}}, "[file] a.pdf"},
		{Message{ContentType: Revoke}, "message recalled"},
		{Message{ContentType: System}, ""},
	}
	for _, tt := range tests {
		if got := tt.msg.Preview(); got != tt.want {
			t.Errorf("Preview(%s) = %q, want %q", tt.msg.ContentType, got, tt.want)
		}
	}
}

func TestFetchError(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("load: %w", &FetchError{Op: "history", ConversationID: "sg_1", Err: cause})
	if !IsTransient(err) {
		t.Error("IsTransient should see through wrapping")
	}
	if !errors.Is(err, cause) {
		t.Error("FetchError should unwrap to its cause")
	}
	if IsTransient(ErrStaleResponse) {
		t.Error("stale response is not a fetch failure")
	}
	if got := (&FetchError{Op: "groups", Err: cause}).Error(); got != "groups: timeout" {
		t.Errorf("Error() = %q", got)
	}
}

func TestEncodeWireNormalizeRoundTrip(t *testing.T) {
	tests := []Message{
		{ContentType: Text, Content: Content{Text: "hello"}},
		{ContentType: Picture, Content: Content{URL: "https://x/p.png", Size: 10}},
		{ContentType: File, Content: Content{URL: "https://x/f", FileName: "f.pdf", Size: 3}},
		{ContentType: Location, Content: Content{Description: "here", Latitude: 1.5, Longitude: -2}},
		{ContentType: Quote, Content: Content{Text: "yes", QuotedID: "q1", QuotedText: "really?"}},
	}
	for _, in := range tests {
		in.ClientMsgID = "c1"
		in.GroupID = "g1"
		in.ConversationID = "sg_g1"
		in.SendID = "u1"
		in.SendTime = 42
		in.CorrelationID = "r1"

		w := EncodeWire(in)
		if got := w.Normalize(); !reflect.DeepEqual(got, in) {
			t.Errorf("%s: round trip = %+v, want %+v", in.ContentType, got, in)
		}
	}
}
