package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"GreenChat/global"
	chatsvc "GreenChat/module/chat/service"
	"GreenChat/service/auth"
	"GreenChat/tools/errs"

	"github.com/mitchellh/mapstructure"
)

// Client frame types.
const (
	FrameConnect     = "connect"
	FrameJoin        = "join"
	FrameLeave       = "leave"
	FrameSend        = "send"
	FrameDelete      = "delete"
	FrameOnline      = "online"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Frame is what a client writes: a type, an optional correlation id echoed
// in replies, STOMP-like headers and a free-form body.
type Frame struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
}

func (f *Frame) AuthFrame() auth.Frame { return auth.Frame{Headers: f.Headers} }

// ParseFrame decodes one client frame. The type is lower-cased.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	if f.Type == "" {
		return nil, errs.ErrMalformedFrame.WrapMsg("missing type")
	}
	return &f, nil
}

// DecodeBody fills out from the frame body. Numbers sent as strings are
// accepted.
func (f *Frame) DecodeBody(out any) error {
	if err := mapstructure.WeakDecode(f.Body, out); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error(), "frame", f.Type)
	}
	return nil
}

type RoomBody struct {
	RoomID int64 `mapstructure:"room_id"`
}

type SendBody struct {
	RoomID int64  `mapstructure:"room_id"`
	Text   string `mapstructure:"text"`
	Type   string `mapstructure:"type"`
}

type DeleteBody struct {
	RoomID    int64 `mapstructure:"room_id"`
	MessageID int64 `mapstructure:"message_id"`
}

type TopicBody struct {
	Topic string `mapstructure:"topic"`
}

// ErrorData is the body of an error frame.
type ErrorData struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// ErrorFrame reports err to one client. Server-side failures carry no
// detail: it may hold backend error text.
func ErrorFrame(id string, err error) []byte {
	data := ErrorData{Code: errs.ServerInternalError, Msg: "internal error"}
	if ce, ok := errs.As(err); ok {
		data = ErrorData{Code: ce.Code, Msg: ce.Msg}
		if global.HTTPStatus(ce.Code) < http.StatusInternalServerError {
			data.Detail = ce.Detail
		}
	}
	return chatsvc.Encode(chatsvc.Envelope{Type: chatsvc.TypeError, ID: id, Data: data})
}

func AckFrame(id string, data any) []byte {
	return chatsvc.Encode(chatsvc.Envelope{Type: chatsvc.TypeAck, ID: id, Data: data})
}

type ConnectedData struct {
	ConnID      string `json:"conn_id"`
	SubjectID   string `json:"subject_id"`
	DisplayName string `json:"display_name"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

func ConnectedFrame(id string, sc *auth.SessionContext) []byte {
	data := ConnectedData{
		ConnID:      sc.ConnID,
		SubjectID:   sc.Identity.SubjectID,
		DisplayName: sc.Identity.DisplayName,
	}
	if !sc.Identity.ExpiresAt.IsZero() {
		data.ExpiresAt = sc.Identity.ExpiresAt.UnixMilli()
	}
	return chatsvc.Encode(chatsvc.Envelope{Type: chatsvc.TypeConnected, ID: id, Data: data})
}

func PongFrame(id string) []byte {
	return chatsvc.Encode(chatsvc.Envelope{Type: chatsvc.TypePong, ID: id})
}
