package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"GreenChat/module/chat/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(cfg Config) (*GormStore, error) {
	var dial gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		dial = postgres.Open(cfg.DSN)
	case "sqlite":
		dial = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("invalid gorm driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, err
	}
	return NewGormStoreFromDB(db)
}

// NewGormStoreFromDB migrates the chat tables on an existing handle.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&model.Room{}, &model.Member{}, &model.Message{}, &model.RoomSettings{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	var r model.Room
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *GormStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) CreateMessage(ctx context.Context, m *model.Message) error {
	m.CreatedAt = m.CreatedAt.UTC()
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var m model.Message
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) MarkDeleted(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Update("deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	out := make([]*model.Message, 0, limit)
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND deleted = ?", roomID, false).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *GormStore) CountSince(ctx context.Context, roomID int64, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("room_id = ? AND created_at >= ?", roomID, since.UTC()).
		Count(&n).Error
	return n, err
}

func (s *GormStore) ListBefore(ctx context.Context, roomID int64, cutoff time.Time, limit int) ([]*model.Message, error) {
	out := make([]*model.Message, 0, limit)
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND created_at < ?", roomID, cutoff.UTC()).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *GormStore) PurgeMessages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Message{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) GetSettings(ctx context.Context, roomID int64) (*model.RoomSettings, error) {
	var st model.RoomSettings
	if err := s.db.WithContext(ctx).First(&st, "room_id = ?", roomID).Error; err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (s *GormStore) ListSettings(ctx context.Context) ([]*model.RoomSettings, error) {
	var out []*model.RoomSettings
	err := s.db.WithContext(ctx).Order("room_id").Find(&out).Error
	return out, err
}

func (s *GormStore) RecordMessage(ctx context.Context, roomID, messageID int64, at time.Time) error {
	at = at.UTC()
	row := model.DefaultSettings(roomID)
	row.TotalMessages = 1
	row.LastMessageID = &messageID
	row.LastMessageAt = &at
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_messages":  gorm.Expr("team_chat_settings.total_messages + 1"),
			"last_message_id": messageID,
			"last_message_at": at,
		}),
	}).Create(row).Error
}

func (s *GormStore) SetChatActive(ctx context.Context, roomID int64, active bool) error {
	row := model.DefaultSettings(roomID)
	row.ChatActive = active
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"chat_active": active}),
	}).Create(row).Error
}

func (s *GormStore) SaveSettings(ctx context.Context, st *model.RoomSettings) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_active", "retention_days", "daily_limit"}),
	}).Create(st).Error
}

func (s *GormStore) UpsertRoom(ctx context.Context, r *model.Room) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(r).Error
}

func (s *GormStore) UpsertMember(ctx context.Context, m *model.Member) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
