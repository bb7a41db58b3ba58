// Package store holds the durable activity document model and its storage
// backends. Every mutation is a targeted, field-scoped update so concurrent
// writers on the same document do not clobber each other's fields.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no activity exists for the given id.
var ErrNotFound = errors.New("activity not found")

// ActivityStore is the document store adapter consumed by the realtime
// engine and the REST service. All calls are fallible; callers bound them
// with a timeout context.
type ActivityStore interface {
	FindActivity(ctx context.Context, id string) (Activity, error)
	InsertActivity(ctx context.Context, activity Activity) error
	ListActivities(ctx context.Context) ([]Activity, error)
	DeleteActivity(ctx context.Context, id string) (int64, error)

	// UpsertParticipant activates the stored participant record, creating
	// it when absent. Participant ids are unique within an activity.
	UpsertParticipant(ctx context.Context, activityID string, participant Participant) (int64, error)
	// SetParticipantConnected flips only the isConnected flag, leaving the
	// rest of the document untouched.
	SetParticipantConnected(ctx context.Context, activityID, userID string, connected bool) (int64, error)

	// AddTag appends the tag unless one with the same id already exists.
	// Returns false without error on a duplicate id.
	AddTag(ctx context.Context, activityID string, tag Tag) (bool, error)
	// SetTagVotes replaces one tag's vote list and status.
	SetTagVotes(ctx context.Context, activityID, tagID string, votes []Vote, status TagStatus) (int64, error)
	DeleteTag(ctx context.Context, activityID, tagID string) (int64, error)

	// UpsertMapping replaces the participant's position list, creating the
	// submission when absent.
	UpsertMapping(ctx context.Context, activityID string, submission MappingSubmission) (int64, error)
	UpsertRanking(ctx context.Context, activityID string, submission RankingSubmission) (int64, error)

	SetPhase(ctx context.Context, activityID string, phase Phase) (int64, error)
	SetStatus(ctx context.Context, activityID string, status ActivityStatus) (int64, error)
	UpdateActivity(ctx context.Context, activityID string, name *string, settings *Settings) (int64, error)

	Ping(ctx context.Context) error
}
