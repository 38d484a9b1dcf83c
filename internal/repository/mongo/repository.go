// Package mongo persists StreamCheckpoint and PlayHistoryEntry documents
// (SPEC_FULL §3 NEW), grounded on the teacher's own mongo-driver
// repository: the same Connect/NewRepository shape, upsert-by-_id
// pattern, and errors.Is(mongo.ErrNoDocuments) -> domain.ErrNotFound
// translation as torrentstream's torrent repository.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hiflacstream/internal/domain"
)

// Connect dials Mongo with the URI plus any extra client options, matching
// the teacher's Connect helper; otelmongo instrumentation is applied only
// when the caller passes its monitor in extra, as main does.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	return mongo.Connect(ctx, opts...)
}

// CheckpointRepository implements ports.CheckpointRepository.
type CheckpointRepository struct {
	collection *mongo.Collection
}

func NewCheckpointRepository(client *mongo.Client, dbName string) *CheckpointRepository {
	return &CheckpointRepository{collection: client.Database(dbName).Collection("stream_checkpoints")}
}

func (r *CheckpointRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updatedAt", Value: -1}},
	})
	return err
}

func (r *CheckpointRepository) Upsert(ctx context.Context, cp domain.StreamCheckpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": string(cp.TrackID)}, cp, opts)
	return err
}

func (r *CheckpointRepository) Get(ctx context.Context, id domain.TrackID) (domain.StreamCheckpoint, error) {
	var cp domain.StreamCheckpoint
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&cp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.StreamCheckpoint{}, domain.ErrNotFound
		}
		return domain.StreamCheckpoint{}, err
	}
	return cp, nil
}

func (r *CheckpointRepository) Delete(ctx context.Context, id domain.TrackID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	return err
}

func (r *CheckpointRepository) ListIncomplete(ctx context.Context) ([]domain.StreamCheckpoint, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []domain.StreamCheckpoint
	for cursor.Next(ctx) {
		var cp domain.StreamCheckpoint
		if err := cursor.Decode(&cp); err != nil {
			return nil, err
		}
		if !cp.IsComplete() {
			out = append(out, cp)
		}
	}
	return out, cursor.Err()
}

// HistoryRepository implements ports.HistoryRepository with best-effort
// inserts — a write failure here never blocks playback, per SPEC_FULL §3.
type HistoryRepository struct {
	collection *mongo.Collection
}

func NewHistoryRepository(client *mongo.Client, dbName string) *HistoryRepository {
	return &HistoryRepository{collection: client.Database(dbName).Collection("play_history")}
}

func (r *HistoryRepository) Record(ctx context.Context, entry domain.PlayHistoryEntry) error {
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	return err
}
