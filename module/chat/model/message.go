package model

import (
	"strings"
	"time"
)

// MessageType is the kind of a chat message.
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageSystem MessageType = "SYSTEM"
	MessageImage  MessageType = "IMAGE"
)

var knownTypes = map[MessageType]struct{}{
	MessageText:   {},
	MessageSystem: {},
	MessageImage:  {},
}

// ParseMessageType normalises s; an empty value means TEXT.
func ParseMessageType(s string) (MessageType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return MessageText, true
	}
	t := MessageType(s)
	_, ok := knownTypes[t]
	return t, ok
}

// RegisterMessageType makes t acceptable to ParseMessageType. Call during init.
func RegisterMessageType(t MessageType) {
	knownTypes[MessageType(strings.ToUpper(string(t)))] = struct{}{}
}

// Message is immutable once persisted except for Deleted.
type Message struct {
	ID         int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id" bson:"id"`
	RoomID     int64       `gorm:"column:room_id;index:idx_messages_room_created,priority:1" json:"room_id" bson:"room_id"`
	SenderID   string      `gorm:"column:sender_id;size:64" json:"sender_id" bson:"sender_id"`
	SenderName string      `gorm:"column:sender_name;size:128" json:"sender_name" bson:"sender_name"`
	Text       string      `gorm:"column:text;type:text" json:"text" bson:"text"`
	Type       MessageType `gorm:"column:type;size:16" json:"type" bson:"type"`
	CreatedAt  time.Time   `gorm:"column:created_at;index:idx_messages_room_created,priority:2" json:"created_at" bson:"created_at"`
	Deleted    bool        `gorm:"column:deleted" json:"deleted" bson:"deleted"`
	CacheID    string      `gorm:"column:cache_id;size:36" json:"cache_id" bson:"cache_id"`
}

func (Message) TableName() string { return "team_messages" }
