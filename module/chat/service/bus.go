package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"GreenChat/module/chat/model"
)

// Broadcaster delivers payload to every connection subscribed to topic.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Event kinds handed to an EventSink.
const (
	EventMessageCreated = "message.created"
	EventMessageDeleted = "message.deleted"
	EventPresenceJoin   = "presence.join"
	EventPresenceLeave  = "presence.leave"
)

// Event is the record emitted to downstream consumers after a state change.
type Event struct {
	Kind      string         `json:"kind"`
	RoomID    int64          `json:"room_id"`
	SubjectID string         `json:"subject_id,omitempty"`
	MessageID int64          `json:"message_id,omitempty"`
	Message   *model.Message `json:"message,omitempty"`
	At        time.Time      `json:"at"`
}

// EventSink receives events best-effort; errors are logged by the caller.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

// Server-to-client envelope types.
const (
	TypeConnected = "connected"
	TypeMessage   = "message"
	TypePresence  = "presence"
	TypeDeleted   = "deleted"
	TypeOnline    = "online"
	TypeError     = "error"
	TypePong      = "pong"
	TypeAck       = "ack"
)

// Envelope is the JSON shape of every frame the server writes.
type Envelope struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func Encode(e Envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		b, _ = json.Marshal(Envelope{Type: TypeError, Data: map[string]any{"code": 5000, "msg": err.Error()}})
	}
	return b
}

// PresenceKind of a presence event.
type PresenceKind string

const (
	PresenceJoin  PresenceKind = "JOIN"
	PresenceLeave PresenceKind = "LEAVE"
)

type PresenceEvent struct {
	RoomID      int64        `json:"room_id"`
	SubjectID   string       `json:"subject_id"`
	DisplayName string       `json:"display_name"`
	Kind        PresenceKind `json:"kind"`
}

type DeleteEvent struct {
	RoomID    int64 `json:"room_id"`
	MessageID int64 `json:"message_id"`
}

type OnlineSnapshot struct {
	RoomID  int64    `json:"room_id"`
	Members []string `json:"members"`
}

func RoomTopic(roomID int64) string     { return fmt.Sprintf("team.%d", roomID) }
func PresenceTopic(roomID int64) string { return RoomTopic(roomID) + ".presence" }
func DeleteTopic(roomID int64) string   { return RoomTopic(roomID) + ".delete" }
func OnlineTopic(roomID int64) string   { return RoomTopic(roomID) + ".online" }

// RoomTopics lists every topic a room member is subscribed to on join.
func RoomTopics(roomID int64) []string {
	return []string{RoomTopic(roomID), PresenceTopic(roomID), DeleteTopic(roomID), OnlineTopic(roomID)}
}

// ParseTopic returns the room id of a valid room topic.
func ParseTopic(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, "team.")
	if !ok {
		return 0, false
	}
	idPart, suffix, _ := strings.Cut(rest, ".")
	switch suffix {
	case "", "presence", "delete", "online":
	default:
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
