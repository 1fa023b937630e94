package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"GreenChat/module/chat/model"
)

var ErrNotFound = errors.New("store: record not found")

// Store is the durable side of the chat core: rooms and members are read-only
// here, messages and settings are owned by it.
type Store interface {
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	GetMember(ctx context.Context, id string) (*model.Member, error)

	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	MarkDeleted(ctx context.Context, id int64) error
	// ListRecent returns up to limit non-deleted messages, newest first.
	ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error)
	CountSince(ctx context.Context, roomID int64, since time.Time) (int64, error)
	// ListBefore returns up to limit messages created before cutoff, oldest first,
	// deleted ones included.
	ListBefore(ctx context.Context, roomID int64, cutoff time.Time, limit int) ([]*model.Message, error)
	PurgeMessages(ctx context.Context, ids []int64) (int64, error)

	GetSettings(ctx context.Context, roomID int64) (*model.RoomSettings, error)
	ListSettings(ctx context.Context) ([]*model.RoomSettings, error)
	// RecordMessage creates the settings row with defaults if needed, bumps the
	// counter and moves the last-message marker, as one statement.
	RecordMessage(ctx context.Context, roomID, messageID int64, at time.Time) error
	SetChatActive(ctx context.Context, roomID int64, active bool) error
	// SaveSettings writes policy fields (active flag, retention, daily cap),
	// leaving counters untouched on an existing row.
	SaveSettings(ctx context.Context, s *model.RoomSettings) error

	UpsertRoom(ctx context.Context, r *model.Room) error
	UpsertMember(ctx context.Context, m *model.Member) error

	Close() error
}

type Config struct {
	// Driver is one of pgx, postgres, sqlite.
	Driver   string        `mapstructure:"driver"`
	DSN      string        `mapstructure:"dsn"`
	MaxConns int32         `mapstructure:"max_conns"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Open picks the backend for cfg.Driver and prepares the schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: empty dsn")
	}
	switch strings.ToLower(cfg.Driver) {
	case "pgx", "":
		return NewPgxStore(ctx, cfg)
	case "postgres", "sqlite":
		return NewGormStore(cfg)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
