package mgo

import (
	"context"
	"time"

	"GreenChat/module/chat/model"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type archivedMessage struct {
	ID         int64     `bson:"_id"`
	RoomID     int64     `bson:"room_id"`
	SenderID   string    `bson:"sender_id"`
	SenderName string    `bson:"sender_name"`
	Text       string    `bson:"text"`
	Type       string    `bson:"type"`
	CreatedAt  time.Time `bson:"created_at"`
	Deleted    bool      `bson:"deleted"`
	ArchivedAt time.Time `bson:"archived_at"`
}

func toArchived(m *model.Message, at time.Time) archivedMessage {
	return archivedMessage{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Type:       string(m.Type),
		CreatedAt:  m.CreatedAt.UTC(),
		Deleted:    m.Deleted,
		ArchivedAt: at.UTC(),
	}
}

// Archive copies expired messages into one collection keyed by message id.
// Writes are upserts, so a sweep that failed after archiving can run again.
type Archive struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewArchive(c *Client, collection string) *Archive {
	if collection == "" {
		collection = defaultCollection
	}
	return &Archive{coll: c.GetDB().Collection(collection), now: time.Now}
}

// EnsureIndexes creates the room/time index used to read a room's archive.
func (a *Archive) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return errors.Wrap(err, "archive index")
}

func (a *Archive) Archive(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	at := a.now()
	writes := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": m.ID}).
			SetReplacement(toArchived(m, at)).
			SetUpsert(true))
	}
	_, err := a.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return errors.Wrapf(err, "archive %d messages", len(msgs))
}

// Count returns how many archived messages roomID has.
func (a *Archive) Count(ctx context.Context, roomID int64) (int64, error) {
	return a.coll.CountDocuments(ctx, bson.M{"room_id": roomID})
}
