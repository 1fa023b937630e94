package service

import (
	"context"
	"errors"
	"time"

	"GreenChat/module/chat/model"
	"GreenChat/service/store"
)

// Settings reads and updates per-room chat policy.
type Settings struct {
	store   store.Store
	timeout time.Duration
}

func NewSettings(st store.Store, timeout time.Duration) *Settings {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Settings{store: st, timeout: timeout}
}

// Get returns the room's settings, or the defaults when none exist yet.
func (s *Settings) Get(ctx context.Context, roomID int64) (*model.RoomSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	st, err := s.store.GetSettings(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return model.DefaultSettings(roomID), nil
	}
	return st, err
}

// RecordMessage moves the last-message marker and bumps the counter,
// creating the row on the room's first message.
func (s *Settings) RecordMessage(ctx context.Context, msg *model.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.RecordMessage(ctx, msg.RoomID, msg.ID, msg.CreatedAt)
}

// Deactivate turns chat off for a room; later sends fail with RoomInactive.
func (s *Settings) Deactivate(ctx context.Context, roomID int64) error {
	return s.setActive(ctx, roomID, false)
}

func (s *Settings) Activate(ctx context.Context, roomID int64) error {
	return s.setActive(ctx, roomID, true)
}

func (s *Settings) setActive(ctx context.Context, roomID int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.SetChatActive(ctx, roomID, active)
}

// Save stores the policy fields of st; counters are left alone.
func (s *Settings) Save(ctx context.Context, st *model.RoomSettings) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.SaveSettings(ctx, st)
}

func (s *Settings) List(ctx context.Context) ([]*model.RoomSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListSettings(ctx)
}
