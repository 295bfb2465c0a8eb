// Package mongostore implements meeting.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/utkarsh2338/NexMeet/internal/meeting"
)

const collection = "meetings"

// Store keeps one document per meeting. At most one document per code is
// active, enforced by a partial unique index.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri, checks the server is reachable and ensures the indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}
}

// EnsureIndexes creates the unique active-code index and the retention index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "meetingCode", Value: 1}},
			Options: options.Index().
				SetName("active_meeting_code").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"isActive": true}),
		},
		{
			Keys:    bson.D{{Key: "isActive", Value: 1}, {Key: "endTime", Value: 1}},
			Options: options.Index().SetName("inactive_end_time"),
		},
	})
	if err != nil {
		return fmt.Errorf("create meeting indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func activeFilter(code string) bson.M {
	return bson.M{"meetingCode": code, "isActive": true}
}

func (s *Store) FindActive(ctx context.Context, code string) (*meeting.Meeting, error) {
	var m meeting.Meeting
	err := s.coll.FindOne(ctx, activeFilter(code)).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, meeting.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) FindAllActive(ctx context.Context) ([]*meeting.Meeting, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"isActive": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*meeting.Meeting
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, m *meeting.Meeting) error {
	_, err := s.coll.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return meeting.ErrDuplicate
	}
	return err
}

// update applies change to the active meeting for code.
func (s *Store) update(ctx context.Context, code string, change bson.M, opts ...*options.UpdateOptions) error {
	res, err := s.coll.UpdateOne(ctx, activeFilter(code), change, opts...)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return meeting.ErrNotFound
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, code string, p meeting.Participant) error {
	return s.update(ctx, code, bson.M{"$push": bson.M{"participants": p}})
}

func (s *Store) SetParticipantLeft(ctx context.Context, code, connID string, at time.Time) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.connId": connID, "p.leftAt": bson.M{"$exists": false}}},
	})
	return s.update(ctx, code, bson.M{"$set": bson.M{"participants.$[p].leftAt": at}}, opts)
}

func (s *Store) AppendChat(ctx context.Context, code string, msg meeting.ChatMessage) error {
	return s.update(ctx, code, bson.M{"$push": bson.M{"chat": msg}})
}

func (s *Store) UpdateAccess(ctx context.Context, code string, waiting []meeting.WaitingEntry, allow, ban []string) error {
	return s.update(ctx, code, bson.M{"$set": bson.M{
		"waiting":   nonNil(waiting),
		"allowList": nonNil(allow),
		"banList":   nonNil(ban),
	}})
}

func (s *Store) SetRecording(ctx context.Context, code string, recording bool, recordings []meeting.Recording) error {
	return s.update(ctx, code, bson.M{"$set": bson.M{
		"isRecording": recording,
		"recordings":  nonNil(recordings),
	}})
}

func (s *Store) MarkInactive(ctx context.Context, code string, end time.Time, duration time.Duration) error {
	return s.update(ctx, code, bson.M{"$set": bson.M{
		"isActive": false,
		"endTime":  end,
		"duration": int64(duration / time.Second),
		"waiting":  bson.A{},
	}})
}

func (s *Store) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"isActive": false,
		"endTime":  bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// nonNil stores empty lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ meeting.Store = (*Store)(nil)
