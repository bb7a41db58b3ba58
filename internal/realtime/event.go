package realtime

import (
	"encoding/json"

	"mosaic/api/internal/store"
)

// Inbound event names, sent by clients over the socket.
const (
	EvtJoinActivity   = "join_activity"
	EvtLeaveActivity  = "leave_activity"
	EvtCreateActivity = "create_activity"
	EvtUpdateActivity = "update_activity"
	EvtDeleteActivity = "delete_activity"
	EvtAddTag         = "add_tag"
	EvtVoteTag        = "vote_tag"
	EvtDeleteTag      = "delete_tag"
	EvtUpdateMapping  = "update_mapping"
	EvtSubmitRanking  = "submit_ranking"
	EvtChangePhase    = "change_phase"
)

// Outbound event names, broadcast to clients.
const (
	EvtParticipantsUpdated = "participants_updated"
	EvtTagAdded            = "tag_added"
	EvtTagVoted            = "tag_voted"
	EvtTagDeleted          = "tag_deleted"
	EvtMappingUpdated      = "mapping_updated"
	EvtRankingUpdated      = "ranking_updated"
	EvtPhaseChanged        = "phase_changed"
	EvtActivityCreated     = "activity_created"
	EvtActivityUpdated     = "activity_updated"
	EvtActivityDeleted     = "activity_deleted"
	EvtConnectionAccepted  = "connection_accepted"
	EvtCapacityWarning     = "capacity_warning"
	EvtConnectionRejected  = "connection_rejected"
)

// Event is one outbound message on the socket.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Frame is one inbound message; Data is decoded per event name.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PresenceEntry is one row of the presence table as broadcast to clients.
type PresenceEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsConnected bool   `json:"isConnected"`
}

type ParticipantsUpdatedPayload struct {
	ActivityID   string          `json:"activityId"`
	Participants []PresenceEntry `json:"participants"`
}

type TagAddedPayload struct {
	ActivityID string    `json:"activityId"`
	Tag        store.Tag `json:"tag"`
}

type TagVotedPayload struct {
	ActivityID string          `json:"activityId"`
	TagID      string          `json:"tagId"`
	Votes      []store.Vote    `json:"votes"`
	Status     store.TagStatus `json:"status"`
}

type TagDeletedPayload struct {
	ActivityID string `json:"activityId"`
	TagID      string `json:"tagId"`
}

type MappingUpdatedPayload struct {
	ActivityID string              `json:"activityId"`
	UserID     string              `json:"userId"`
	Positions  []store.TagPosition `json:"positions"`
	IsComplete bool                `json:"isComplete"`
}

type RankingUpdatedPayload struct {
	ActivityID string   `json:"activityId"`
	UserID     string   `json:"userId"`
	TagOrder   []string `json:"tagOrder"`
	IsComplete bool     `json:"isComplete"`
}

type PhaseChangedPayload struct {
	ActivityID string      `json:"activityId"`
	Phase      store.Phase `json:"phase"`
}

type ActivityRefPayload struct {
	ActivityID string `json:"activityId"`
}

type ConnectionAcceptedPayload struct {
	ConnectionID string `json:"connectionId"`
	Current      int    `json:"current"`
	Max          int    `json:"max"`
}

type CapacityWarningPayload struct {
	Current int    `json:"current"`
	Max     int    `json:"max"`
	Message string `json:"message"`
}

type ConnectionRejectedPayload struct {
	Reason            string `json:"reason"`
	Current           int    `json:"currentConnections"`
	Max               int    `json:"maxConnections"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

// Inbound payload shapes.

type JoinPayload struct {
	ActivityID string `json:"activityId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
}

type LeavePayload struct {
	ActivityID string `json:"activityId"`
	UserID     string `json:"userId"`
}

type AddTagPayload struct {
	ActivityID string `json:"activityId"`
	Tag        struct {
		ID          string `json:"id"`
		Text        string `json:"text"`
		CreatorID   string `json:"creatorId"`
		CreatorName string `json:"creatorName"`
	} `json:"tag"`
}

type VoteTagPayload struct {
	ActivityID string     `json:"activityId"`
	TagID      string     `json:"tagId"`
	Vote       store.Vote `json:"vote"`
}

type DeleteTagPayload struct {
	ActivityID string `json:"activityId"`
	TagID      string `json:"tagId"`
}

type UpdateMappingPayload struct {
	ActivityID string              `json:"activityId"`
	UserID     string              `json:"userId"`
	Positions  []store.TagPosition `json:"positions"`
	IsComplete *bool               `json:"isComplete"`
}

type SubmitRankingPayload struct {
	ActivityID string   `json:"activityId"`
	UserID     string   `json:"userId"`
	TagOrder   []string `json:"tagOrder"`
	IsComplete *bool    `json:"isComplete"`
}

type ChangePhasePayload struct {
	ActivityID string      `json:"activityId"`
	Phase      store.Phase `json:"phase"`
}
