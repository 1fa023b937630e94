// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"GreenChat/module/chat/model"
	"GreenChat/service/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// New returns a gorm store on a private in-memory SQLite database. The pool is
// pinned to one connection so every query sees the same database.
func New(t testing.TB) *store.GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:greenchat_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	s, err := store.NewGormStoreFromDB(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedRoom inserts a room and fails the test on error.
func SeedRoom(t testing.TB, s store.Store, id int64, active bool) *model.Room {
	t.Helper()
	r := &model.Room{ID: id, Name: fmt.Sprintf("team-%d", id), Active: active, MaxMembers: 10}
	if err := s.UpsertRoom(context.Background(), r); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return r
}

func SeedMember(t testing.TB, s store.Store, id, name, status string) *model.Member {
	t.Helper()
	m := &model.Member{ID: id, Name: name, Status: status}
	if err := s.UpsertMember(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}
