package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultRecentSize  = 100
	DefaultRecentTTL   = 24 * time.Hour
	DefaultPresenceTTL = time.Hour
)

// HotCache is a lossy projection of the durable store: a bounded list of
// recent messages per room plus TTL-based presence. Every write refreshes
// the TTL of what it touches.
type HotCache interface {
	// PushRecent prepends payload, trims the list and refreshes its TTL as one
	// atomic unit.
	PushRecent(ctx context.Context, roomID int64, payload []byte) error
	// Recent returns the cached payloads newest first.
	Recent(ctx context.Context, roomID int64) ([][]byte, error)

	JoinPresence(ctx context.Context, roomID int64, subject string) error
	// LeavePresence reports whether subject was online in the room.
	LeavePresence(ctx context.Context, roomID int64, subject string) (bool, error)
	PresenceMembers(ctx context.Context, roomID int64) ([]string, error)

	Close() error
}

type Options struct {
	Backend     string        `mapstructure:"backend"` // redis | buntdb
	BuntPath    string        `mapstructure:"bunt_path"`
	RecentSize  int           `mapstructure:"recent_size"`
	RecentTTL   time.Duration `mapstructure:"recent_ttl"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

func (o *Options) norm() {
	if o.RecentSize <= 0 {
		o.RecentSize = DefaultRecentSize
	}
	if o.RecentTTL <= 0 {
		o.RecentTTL = DefaultRecentTTL
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = DefaultPresenceTTL
	}
}

func RecentKey(roomID int64) string { return fmt.Sprintf("chat:team:%d:messages", roomID) }

func OnlineKey(roomID int64) string { return fmt.Sprintf("chat:team:%d:online", roomID) }

func SessionKey(subject string) string { return "chat:user:" + subject + ":sessions" }
