package model

import "time"

const (
	DefaultRetentionDays = 30
	DefaultDailyLimit    = 1000
)

// RoomSettings holds per-room chat policy and counters. A row is created
// lazily on the first message of a room.
type RoomSettings struct {
	RoomID        int64      `gorm:"column:room_id;primaryKey" json:"room_id"`
	ChatActive    bool       `gorm:"column:chat_active" json:"chat_active"`
	RetentionDays int        `gorm:"column:retention_days" json:"retention_days"`
	DailyLimit    int        `gorm:"column:daily_limit" json:"daily_limit"`
	TotalMessages int64      `gorm:"column:total_messages" json:"total_messages"`
	LastMessageID *int64     `gorm:"column:last_message_id" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`
}

func (RoomSettings) TableName() string { return "team_chat_settings" }

// DefaultSettings returns the settings a room has before its first message.
func DefaultSettings(roomID int64) *RoomSettings {
	return &RoomSettings{
		RoomID:        roomID,
		ChatActive:    true,
		RetentionDays: DefaultRetentionDays,
		DailyLimit:    DefaultDailyLimit,
	}
}

// RetentionCutoff is the instant before which messages fall out of retention.
// Non-positive retention disables purging and yields the zero time.
func (s *RoomSettings) RetentionCutoff(now time.Time) time.Time {
	if s.RetentionDays <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -s.RetentionDays)
}
