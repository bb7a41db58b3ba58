package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process ActivityStore used by tests and the
// storeless dev mode. It mirrors MongoStore semantics, including
// modified-count results and duplicate suppression.
type MemoryStore struct {
	mu         sync.Mutex
	activities map[string]Activity
	// failWith, when set, makes every call return it. Tests use this to
	// simulate an unreachable store.
	failWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{activities: make(map[string]Activity)}
}

// SetFailure makes all subsequent calls fail with err; nil recovers.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWith
}

func (s *MemoryStore) FindActivity(_ context.Context, id string) (Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return Activity{}, s.failWith
	}
	activity, ok := s.activities[id]
	if !ok {
		return Activity{}, ErrNotFound
	}
	return copyActivity(activity), nil
}

func (s *MemoryStore) InsertActivity(_ context.Context, activity Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.activities[activity.ID] = copyActivity(activity)
	return nil
}

func (s *MemoryStore) ListActivities(_ context.Context) ([]Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	result := make([]Activity, 0, len(s.activities))
	for _, activity := range s.activities {
		result = append(result, copyActivity(activity))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) DeleteActivity(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	if _, ok := s.activities[id]; !ok {
		return 0, nil
	}
	delete(s.activities, id)
	return 1, nil
}

func (s *MemoryStore) UpsertParticipant(_ context.Context, activityID string, participant Participant) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	for i, p := range activity.Participants {
		if p.ID == participant.ID {
			activity.Participants[i].Name = participant.Name
			activity.Participants[i].IsConnected = participant.IsConnected
			activity.UpdatedAt = time.Now()
			s.activities[activityID] = activity
			return 1, nil
		}
	}
	activity.Participants = append(activity.Participants, participant)
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return 1, nil
}

func (s *MemoryStore) SetParticipantConnected(_ context.Context, activityID, userID string, connected bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	for i, p := range activity.Participants {
		if p.ID == userID {
			if activity.Participants[i].IsConnected == connected {
				return 0, nil
			}
			activity.Participants[i].IsConnected = connected
			s.activities[activityID] = activity
			return 1, nil
		}
	}
	return 0, nil
}

func (s *MemoryStore) AddTag(_ context.Context, activityID string, tag Tag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return false, nil
	}
	for _, existing := range activity.Tags {
		if existing.ID == tag.ID {
			return false, nil
		}
	}
	activity.Tags = append(activity.Tags, copyTag(tag))
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return true, nil
}

func (s *MemoryStore) SetTagVotes(_ context.Context, activityID, tagID string, votes []Vote, status TagStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	for i, tag := range activity.Tags {
		if tag.ID == tagID {
			activity.Tags[i].Votes = append([]Vote(nil), votes...)
			activity.Tags[i].Status = status
			activity.UpdatedAt = time.Now()
			s.activities[activityID] = activity
			return 1, nil
		}
	}
	return 0, nil
}

func (s *MemoryStore) DeleteTag(_ context.Context, activityID, tagID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	for i, tag := range activity.Tags {
		if tag.ID == tagID {
			activity.Tags = append(activity.Tags[:i], activity.Tags[i+1:]...)
			activity.UpdatedAt = time.Now()
			s.activities[activityID] = activity
			return 1, nil
		}
	}
	return 0, nil
}

func (s *MemoryStore) UpsertMapping(_ context.Context, activityID string, submission MappingSubmission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	submission.Positions = append([]TagPosition(nil), submission.Positions...)
	for i, existing := range activity.Mappings {
		if existing.UserID == submission.UserID {
			activity.Mappings[i].Positions = submission.Positions
			activity.Mappings[i].IsComplete = submission.IsComplete
			activity.Mappings[i].UpdatedAt = submission.UpdatedAt
			activity.UpdatedAt = time.Now()
			s.activities[activityID] = activity
			return 1, nil
		}
	}
	activity.Mappings = append(activity.Mappings, submission)
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return 1, nil
}

func (s *MemoryStore) UpsertRanking(_ context.Context, activityID string, submission RankingSubmission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	submission.TagOrder = append([]string(nil), submission.TagOrder...)
	for i, existing := range activity.Rankings {
		if existing.UserID == submission.UserID {
			activity.Rankings[i].TagOrder = submission.TagOrder
			activity.Rankings[i].IsComplete = submission.IsComplete
			activity.Rankings[i].UpdatedAt = submission.UpdatedAt
			activity.UpdatedAt = time.Now()
			s.activities[activityID] = activity
			return 1, nil
		}
	}
	activity.Rankings = append(activity.Rankings, submission)
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return 1, nil
}

func (s *MemoryStore) SetPhase(_ context.Context, activityID string, phase Phase) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	activity.Phase = phase
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return 1, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, activityID string, status ActivityStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	activity.Status = status
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return 1, nil
}

func (s *MemoryStore) UpdateActivity(_ context.Context, activityID string, name *string, settings *Settings) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	activity, ok := s.activities[activityID]
	if !ok {
		return 0, nil
	}
	if name != nil {
		activity.Name = *name
	}
	if settings != nil {
		activity.Settings = *settings
	}
	activity.UpdatedAt = time.Now()
	s.activities[activityID] = activity
	return 1, nil
}

func copyActivity(activity Activity) Activity {
	out := activity
	out.Participants = append([]Participant(nil), activity.Participants...)
	out.Tags = make([]Tag, len(activity.Tags))
	for i, tag := range activity.Tags {
		out.Tags[i] = copyTag(tag)
	}
	out.Mappings = make([]MappingSubmission, len(activity.Mappings))
	for i, m := range activity.Mappings {
		m.Positions = append([]TagPosition(nil), m.Positions...)
		out.Mappings[i] = m
	}
	out.Rankings = make([]RankingSubmission, len(activity.Rankings))
	for i, r := range activity.Rankings {
		r.TagOrder = append([]string(nil), r.TagOrder...)
		out.Rankings[i] = r
	}
	return out
}

func copyTag(tag Tag) Tag {
	tag.Votes = append([]Vote(nil), tag.Votes...)
	return tag
}
