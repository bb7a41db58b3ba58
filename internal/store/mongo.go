package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore implements ActivityStore on MongoDB. Mutations use filtered
// $set/$push/$pull updates with positional operators so two interleaved
// handlers writing different fields of the same activity never lose each
// other's write.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects and pings the deployment before returning a store.
func OpenMongo(ctx context.Context, mongoURL, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

func (s *MongoStore) activities() *mongo.Collection { return s.db.Collection("activities") }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) FindActivity(ctx context.Context, id string) (Activity, error) {
	var activity Activity
	err := s.activities().FindOne(ctx, bson.M{"_id": id}).Decode(&activity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Activity{}, ErrNotFound
	}
	if err != nil {
		return Activity{}, fmt.Errorf("find activity: %w", err)
	}
	return activity, nil
}

func (s *MongoStore) InsertActivity(ctx context.Context, activity Activity) error {
	if _, err := s.activities().InsertOne(ctx, activity); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *MongoStore) ListActivities(ctx context.Context) ([]Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.activities().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	var result []Activity
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return result, nil
}

func (s *MongoStore) DeleteActivity(ctx context.Context, id string) (int64, error) {
	result, err := s.activities().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete activity: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) UpsertParticipant(ctx context.Context, activityID string, participant Participant) (int64, error) {
	// Activate the existing record first; fall back to appending one.
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "participants.id": participant.ID},
		bson.M{"$set": bson.M{
			"participants.$.name":        participant.Name,
			"participants.$.isConnected": participant.IsConnected,
			"updatedAt":                  time.Now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("activate participant: %w", err)
	}
	if result.MatchedCount > 0 {
		return result.ModifiedCount, nil
	}

	// The $ne guard keeps a racing activate+append from inserting twice.
	result, err = s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "participants.id": bson.M{"$ne": participant.ID}},
		bson.M{
			"$push": bson.M{"participants": participant},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("append participant: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) SetParticipantConnected(ctx context.Context, activityID, userID string, connected bool) (int64, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "participants.id": userID},
		bson.M{"$set": bson.M{"participants.$.isConnected": connected}},
	)
	if err != nil {
		return 0, fmt.Errorf("set participant connected: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) AddTag(ctx context.Context, activityID string, tag Tag) (bool, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "tags.id": bson.M{"$ne": tag.ID}},
		bson.M{
			"$push": bson.M{"tags": tag},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("add tag: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (s *MongoStore) SetTagVotes(ctx context.Context, activityID, tagID string, votes []Vote, status TagStatus) (int64, error) {
	if votes == nil {
		votes = []Vote{}
	}
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "tags.id": tagID},
		bson.M{"$set": bson.M{
			"tags.$.votes":  votes,
			"tags.$.status": status,
			"updatedAt":     time.Now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("set tag votes: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) DeleteTag(ctx context.Context, activityID, tagID string) (int64, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{
			"$pull": bson.M{"tags": bson.M{"id": tagID}},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("delete tag: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) UpsertMapping(ctx context.Context, activityID string, submission MappingSubmission) (int64, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "mappings.userId": submission.UserID},
		bson.M{"$set": bson.M{
			"mappings.$.positions":  submission.Positions,
			"mappings.$.isComplete": submission.IsComplete,
			"mappings.$.updatedAt":  submission.UpdatedAt,
			"updatedAt":             time.Now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("update mapping: %w", err)
	}
	if result.MatchedCount > 0 {
		return result.ModifiedCount, nil
	}

	result, err = s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "mappings.userId": bson.M{"$ne": submission.UserID}},
		bson.M{
			"$push": bson.M{"mappings": submission},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("append mapping: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) UpsertRanking(ctx context.Context, activityID string, submission RankingSubmission) (int64, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "rankings.userId": submission.UserID},
		bson.M{"$set": bson.M{
			"rankings.$.tagOrder":   submission.TagOrder,
			"rankings.$.isComplete": submission.IsComplete,
			"rankings.$.updatedAt":  submission.UpdatedAt,
			"updatedAt":             time.Now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("update ranking: %w", err)
	}
	if result.MatchedCount > 0 {
		return result.ModifiedCount, nil
	}

	result, err = s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID, "rankings.userId": bson.M{"$ne": submission.UserID}},
		bson.M{
			"$push": bson.M{"rankings": submission},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("append ranking: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) SetPhase(ctx context.Context, activityID string, phase Phase) (int64, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{"$set": bson.M{"phase": phase, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("set phase: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, activityID string, status ActivityStatus) (int64, error) {
	result, err := s.activities().UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("set status: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) UpdateActivity(ctx context.Context, activityID string, name *string, settings *Settings) (int64, error) {
	sets := bson.M{"updatedAt": time.Now()}
	if name != nil {
		sets["name"] = *name
	}
	if settings != nil {
		sets["settings"] = *settings
	}
	result, err := s.activities().UpdateOne(ctx, bson.M{"_id": activityID}, bson.M{"$set": sets})
	if err != nil {
		return 0, fmt.Errorf("update activity: %w", err)
	}
	return result.ModifiedCount, nil
}
