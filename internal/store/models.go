package store

import "time"

// Phase is the activity lifecycle phase. Transitions are host-controlled
// and not validated by the server.
type Phase string

const (
	PhaseGathering      Phase = "gathering"
	PhaseTagging        Phase = "tagging"
	PhaseMapping        Phase = "mapping"
	PhaseMappingResults Phase = "mapping-results"
	PhaseRanking        Phase = "ranking"
	PhaseResults        Phase = "results"
)

type ActivityStatus string

const (
	StatusActive    ActivityStatus = "active"
	StatusCompleted ActivityStatus = "completed"
)

type TagStatus string

const (
	TagPending  TagStatus = "pending"
	TagApproved TagStatus = "approved"
	TagRejected TagStatus = "rejected"
)

// ThresholdKind selects how tag vote counts promote a tag to approved.
type ThresholdKind string

const (
	ThresholdMinimum ThresholdKind = "minimum"
	ThresholdTopN    ThresholdKind = "topN"
)

type Participant struct {
	ID          string `bson:"id" json:"id"`
	Name        string `bson:"name" json:"name"`
	IsConnected bool   `bson:"isConnected" json:"isConnected"`
}

type Vote struct {
	UserID    string    `bson:"userId" json:"userId"`
	UserName  string    `bson:"userName" json:"userName"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Tag struct {
	ID          string    `bson:"id" json:"id"`
	Text        string    `bson:"text" json:"text"`
	CreatorID   string    `bson:"creatorId" json:"creatorId"`
	CreatorName string    `bson:"creatorName" json:"creatorName"`
	Votes       []Vote    `bson:"votes" json:"votes"`
	Status      TagStatus `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// HasVoteFrom reports whether the participant already voted on this tag.
// Invariant: at most one vote per participant per tag.
func (t Tag) HasVoteFrom(userID string) bool {
	for _, v := range t.Votes {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

// TagPosition is one positioned tag instance on the 2-axis map.
type TagPosition struct {
	TagID string  `bson:"tagId" json:"tagId"`
	Text  string  `bson:"text" json:"text"`
	X     float64 `bson:"x" json:"x"`
	Y     float64 `bson:"y" json:"y"`
}

// MappingSubmission is one participant's map. Updates replace the position
// list in place; at most one submission per participant.
type MappingSubmission struct {
	UserID     string        `bson:"userId" json:"userId"`
	UserName   string        `bson:"userName" json:"userName"`
	Positions  []TagPosition `bson:"positions" json:"positions"`
	IsComplete bool          `bson:"isComplete" json:"isComplete"`
	UpdatedAt  time.Time     `bson:"updatedAt" json:"updatedAt"`
}

type RankingSubmission struct {
	UserID     string    `bson:"userId" json:"userId"`
	UserName   string    `bson:"userName" json:"userName"`
	TagOrder   []string  `bson:"tagOrder" json:"tagOrder"`
	IsComplete bool      `bson:"isComplete" json:"isComplete"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

type Settings struct {
	VotingEnabled bool          `bson:"votingEnabled" json:"votingEnabled"`
	VoteThreshold ThresholdKind `bson:"voteThreshold" json:"voteThreshold"`
	MinimumVotes  int           `bson:"minimumVotes" json:"minimumVotes"`
	TopNCount     int           `bson:"topNCount" json:"topNCount"`
	// AllowMultipleVotes is stored for hosts but not honored: votes are
	// capped at one per participant per tag.
	AllowMultipleVotes bool   `bson:"allowMultipleVotes" json:"allowMultipleVotes"`
	XAxisMinLabel      string `bson:"xAxisMinLabel" json:"xAxisMinLabel"`
	XAxisMaxLabel      string `bson:"xAxisMaxLabel" json:"xAxisMaxLabel"`
	YAxisMinLabel      string `bson:"yAxisMinLabel" json:"yAxisMinLabel"`
	YAxisMaxLabel      string `bson:"yAxisMaxLabel" json:"yAxisMaxLabel"`
}

// DefaultSettings are applied to newly created activities.
func DefaultSettings() Settings {
	return Settings{
		VotingEnabled: true,
		VoteThreshold: ThresholdMinimum,
		MinimumVotes:  2,
		TopNCount:     5,
		XAxisMinLabel: "Low impact",
		XAxisMaxLabel: "High impact",
		YAxisMinLabel: "Low effort",
		YAxisMaxLabel: "High effort",
	}
}

// Activity is the durable collaborative document. The realtime engine holds
// no long-lived reference to it; handlers re-read per operation.
type Activity struct {
	ID           string              `bson:"_id" json:"id"`
	Name         string              `bson:"name" json:"name"`
	Phase        Phase               `bson:"phase" json:"phase"`
	Status       ActivityStatus      `bson:"status" json:"status"`
	Participants []Participant       `bson:"participants" json:"participants"`
	Tags         []Tag               `bson:"tags" json:"tags"`
	Mappings     []MappingSubmission `bson:"mappings" json:"mappings"`
	Rankings     []RankingSubmission `bson:"rankings" json:"rankings"`
	Settings     Settings            `bson:"settings" json:"settings"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// FindTag returns the tag with the given id, if present.
func (a *Activity) FindTag(tagID string) (Tag, bool) {
	for _, tag := range a.Tags {
		if tag.ID == tagID {
			return tag, true
		}
	}
	return Tag{}, false
}

// FindParticipant returns the stored participant record, if present.
func (a *Activity) FindParticipant(userID string) (Participant, bool) {
	for _, p := range a.Participants {
		if p.ID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
