package store

import (
	"context"
	"errors"
	"time"

	"GreenChat/module/chat/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS teams (
	id          BIGINT PRIMARY KEY,
	name        VARCHAR(128) NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	max_members INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS members (
	id     VARCHAR(64) PRIMARY KEY,
	name   VARCHAR(128) NOT NULL DEFAULT '',
	status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE'
);
CREATE TABLE IF NOT EXISTS team_messages (
	id          BIGSERIAL PRIMARY KEY,
	room_id     BIGINT NOT NULL,
	sender_id   VARCHAR(64) NOT NULL,
	sender_name VARCHAR(128) NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	type        VARCHAR(16) NOT NULL DEFAULT 'TEXT',
	created_at  TIMESTAMPTZ NOT NULL,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	cache_id    VARCHAR(36) NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON team_messages (room_id, created_at);
CREATE TABLE IF NOT EXISTS team_chat_settings (
	room_id         BIGINT PRIMARY KEY,
	chat_active     BOOLEAN NOT NULL DEFAULT TRUE,
	retention_days  INTEGER NOT NULL DEFAULT 30,
	daily_limit     INTEGER NOT NULL DEFAULT 1000,
	total_messages  BIGINT NOT NULL DEFAULT 0,
	last_message_id BIGINT,
	last_message_at TIMESTAMPTZ
);`

const messageColumns = `id, room_id, sender_id, sender_name, text, type, created_at, deleted, cache_id`

const settingsColumns = `room_id, chat_active, retention_days, daily_limit, total_messages, last_message_id, last_message_at`

type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(ctx context.Context, cfg Config) (*PgxStore, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgxStore{pool: pool}, nil
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var typ string
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Text, &typ, &m.CreatedAt, &m.Deleted, &m.CacheID); err != nil {
		return nil, err
	}
	m.Type = model.MessageType(typ)
	return &m, nil
}

func collectMessages(rows pgx.Rows, capHint int) ([]*model.Message, error) {
	defer rows.Close()
	out := make([]*model.Message, 0, capHint)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanSettings(row pgx.Row) (*model.RoomSettings, error) {
	var s model.RoomSettings
	if err := row.Scan(&s.RoomID, &s.ChatActive, &s.RetentionDays, &s.DailyLimit, &s.TotalMessages, &s.LastMessageID, &s.LastMessageAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *PgxStore) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	var r model.Room
	err := s.pool.QueryRow(ctx, `SELECT id, name, active, max_members FROM teams WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Active, &r.MaxMembers)
	if err != nil {
		return nil, pgNotFound(err)
	}
	return &r, nil
}

func (s *PgxStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	err := s.pool.QueryRow(ctx, `SELECT id, name, status FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Status)
	if err != nil {
		return nil, pgNotFound(err)
	}
	return &m, nil
}

func (s *PgxStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return s.pool.QueryRow(ctx,
		`INSERT INTO team_messages (room_id, sender_id, sender_name, text, type, created_at, deleted, cache_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.RoomID, m.SenderID, m.SenderName, m.Text, string(m.Type), m.CreatedAt, m.Deleted, m.CacheID,
	).Scan(&m.ID)
}

func (s *PgxStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM team_messages WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return m, nil
}

func (s *PgxStore) MarkDeleted(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE team_messages SET deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgxStore) ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM team_messages
		 WHERE room_id = $1 AND deleted = FALSE
		 ORDER BY created_at DESC, id DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows, limit)
}

func (s *PgxStore) CountSince(ctx context.Context, roomID int64, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM team_messages WHERE room_id = $1 AND created_at >= $2`, roomID, since.UTC()).Scan(&n)
	return n, err
}

func (s *PgxStore) ListBefore(ctx context.Context, roomID int64, cutoff time.Time, limit int) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM team_messages
		 WHERE room_id = $1 AND created_at < $2
		 ORDER BY created_at ASC, id ASC LIMIT $3`, roomID, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows, limit)
}

func (s *PgxStore) PurgeMessages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM team_messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgxStore) GetSettings(ctx context.Context, roomID int64) (*model.RoomSettings, error) {
	st, err := scanSettings(s.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM team_chat_settings WHERE room_id = $1`, roomID))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return st, nil
}

func (s *PgxStore) ListSettings(ctx context.Context) ([]*model.RoomSettings, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+settingsColumns+` FROM team_chat_settings ORDER BY room_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.RoomSettings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PgxStore) RecordMessage(ctx context.Context, roomID, messageID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO team_chat_settings (room_id, chat_active, retention_days, daily_limit, total_messages, last_message_id, last_message_at)
		 VALUES ($1, TRUE, $2, $3, 1, $4, $5)
		 ON CONFLICT (room_id) DO UPDATE SET
		   total_messages = team_chat_settings.total_messages + 1,
		   last_message_id = EXCLUDED.last_message_id,
		   last_message_at = EXCLUDED.last_message_at`,
		roomID, model.DefaultRetentionDays, model.DefaultDailyLimit, messageID, at.UTC())
	return err
}

func (s *PgxStore) SetChatActive(ctx context.Context, roomID int64, active bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO team_chat_settings (room_id, chat_active, retention_days, daily_limit)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (room_id) DO UPDATE SET chat_active = EXCLUDED.chat_active`,
		roomID, active, model.DefaultRetentionDays, model.DefaultDailyLimit)
	return err
}

func (s *PgxStore) SaveSettings(ctx context.Context, st *model.RoomSettings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO team_chat_settings (room_id, chat_active, retention_days, daily_limit, total_messages)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (room_id) DO UPDATE SET
		   chat_active = EXCLUDED.chat_active,
		   retention_days = EXCLUDED.retention_days,
		   daily_limit = EXCLUDED.daily_limit`,
		st.RoomID, st.ChatActive, st.RetentionDays, st.DailyLimit, st.TotalMessages)
	return err
}

func (s *PgxStore) UpsertRoom(ctx context.Context, r *model.Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teams (id, name, active, max_members) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, max_members = EXCLUDED.max_members`,
		r.ID, r.Name, r.Active, r.MaxMembers)
	return err
}

func (s *PgxStore) UpsertMember(ctx context.Context, m *model.Member) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO members (id, name, status) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`,
		m.ID, m.Name, m.Status)
	return err
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}
