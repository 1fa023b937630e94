package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"
)

// BuntCache is the embedded backend for single-node deployments and tests.
// Presence is kept as one TTL'd key per subject under the room's online key,
// so a subject whose refresh lapses drops out on its own.
type BuntCache struct {
	db   *buntdb.DB
	opts Options
}

// NewBuntCache opens path, or an in-memory database for "" and ":memory:".
func NewBuntCache(path string, opts Options) (*BuntCache, error) {
	opts.norm()
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &BuntCache{db: db, opts: opts}, nil
}

func (c *BuntCache) PushRecent(_ context.Context, roomID int64, payload []byte) error {
	key := RecentKey(roomID)
	return c.db.Update(func(tx *buntdb.Tx) error {
		var list []json.RawMessage
		cur, err := tx.Get(key)
		switch {
		case err == nil:
			if jerr := json.Unmarshal([]byte(cur), &list); jerr != nil {
				list = nil
			}
		case !errors.Is(err, buntdb.ErrNotFound):
			return err
		}
		list = append([]json.RawMessage{json.RawMessage(payload)}, list...)
		if len(list) > c.opts.RecentSize {
			list = list[:c.opts.RecentSize]
		}
		b, err := json.Marshal(list)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(key, string(b), &buntdb.SetOptions{Expires: true, TTL: c.opts.RecentTTL})
		return err
	})
}

func (c *BuntCache) Recent(_ context.Context, roomID int64) ([][]byte, error) {
	var list []json.RawMessage
	err := c.db.View(func(tx *buntdb.Tx) error {
		cur, err := tx.Get(RecentKey(roomID))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(cur), &list)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(list))
	for _, raw := range list {
		out = append(out, []byte(raw))
	}
	return out, nil
}

func memberKey(roomID int64, subject string) string {
	return OnlineKey(roomID) + ":" + subject
}

func (c *BuntCache) JoinPresence(_ context.Context, roomID int64, subject string) error {
	ttl := &buntdb.SetOptions{Expires: true, TTL: c.opts.PresenceTTL}
	return c.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(memberKey(roomID, subject), subject, ttl); err != nil {
			return err
		}
		_, _, err := tx.Set(SessionKey(subject), strconv.FormatInt(roomID, 10), ttl)
		return err
	})
}

func (c *BuntCache) LeavePresence(_ context.Context, roomID int64, subject string) (bool, error) {
	removed := false
	err := c.db.Update(func(tx *buntdb.Tx) error {
		key := memberKey(roomID, subject)
		_, ttlErr := tx.TTL(key) // lapsed entries do not count as online
		_, err := tx.Delete(key)
		switch {
		case err == nil:
			removed = ttlErr == nil
		case !errors.Is(err, buntdb.ErrNotFound):
			return err
		}
		if _, err := tx.Delete(SessionKey(subject)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		return nil
	})
	return removed && err == nil, err
}

func (c *BuntCache) PresenceMembers(_ context.Context, roomID int64) ([]string, error) {
	prefix := OnlineKey(roomID) + ":"
	var out []string
	err := c.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			if _, err := tx.TTL(key); err != nil {
				return true
			}
			out = append(out, value)
			return true
		})
	})
	sort.Strings(out)
	return out, err
}

func (c *BuntCache) Close() error { return c.db.Close() }
