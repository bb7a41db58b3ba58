package realtime

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mosaic/api/internal/store"
)

// Options configures the engine. Zero values fall back to conservative
// defaults.
type Options struct {
	SoftConnectionLimit int
	HardConnectionLimit int
	StoreTimeout        time.Duration
	DisconnectBudget    time.Duration
	DedupSweepInterval  time.Duration
}

// Engine coordinates connection lifecycle, presence, and document mutations
// for all activities. Handlers validate, deduplicate, write durable state,
// then broadcast; broadcasts carry full replacement values, never diffs, so
// receivers converge regardless of delivery order.
type Engine struct {
	store     store.ActivityStore
	registry  *Registry
	presence  *Presence
	dedup     *Deduplicator
	admission *Admission
	hub       *Hub

	storeTimeout     time.Duration
	disconnectBudget time.Duration
}

func NewEngine(activityStore store.ActivityStore, opts Options) *Engine {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.DisconnectBudget <= 0 {
		opts.DisconnectBudget = 5 * time.Second
	}
	return &Engine{
		store:            activityStore,
		registry:         NewRegistry(),
		presence:         NewPresence(),
		dedup:            NewDeduplicator(opts.DedupSweepInterval),
		admission:        NewAdmission(opts.SoftConnectionLimit, opts.HardConnectionLimit),
		hub:              NewHub(),
		storeTimeout:     opts.StoreTimeout,
		disconnectBudget: opts.DisconnectBudget,
	}
}

// Close stops the engine's background work.
func (e *Engine) Close() {
	e.dedup.Close()
}

// Status is the engine's health summary exposed on the status endpoint.
type Status struct {
	Connections    int  `json:"connections"`
	SoftLimit      int  `json:"softLimit"`
	HardLimit      int  `json:"hardLimit"`
	StoreConnected bool `json:"storeConnected"`
}

func (e *Engine) Status(ctx context.Context) Status {
	current, soft, hard := e.admission.Snapshot()
	pingCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return Status{
		Connections:    current,
		SoftLimit:      soft,
		HardLimit:      hard,
		StoreConnected: e.store.Ping(pingCtx) == nil,
	}
}

// Connect admits and registers a new subscriber. On rejection the
// subscriber is told why and nothing is registered; the caller must close
// the transport. Returns whether the connection was accepted.
func (e *Engine) Connect(sub Subscriber) bool {
	result := e.admission.Admit()
	if !result.Accepted {
		_ = sub.Send(Event{Name: EvtConnectionRejected, Data: ConnectionRejectedPayload{
			Reason:            "server at capacity",
			Current:           result.Current,
			Max:               result.Max,
			RetryAfterSeconds: result.RetryAfterSeconds,
		}})
		return false
	}

	e.registry.Register(sub.ID())
	e.hub.AddConn(sub)

	_ = sub.Send(Event{Name: EvtConnectionAccepted, Data: ConnectionAcceptedPayload{
		ConnectionID: sub.ID(),
		Current:      result.Current,
		Max:          result.Max,
	}})
	if result.Saturated {
		_ = sub.Send(Event{Name: EvtCapacityWarning, Data: CapacityWarningPayload{
			Current: result.Current,
			Max:     result.Max,
			Message: "server approaching capacity",
		}})
	}
	return true
}

// Join makes the connection a member of the activity: registry claim,
// presence entry, room subscription, durable participant activation, then a
// presence broadcast that includes the joiner so their first view of the
// room is authoritative.
func (e *Engine) Join(ctx context.Context, sub Subscriber, p JoinPayload) {
	if p.ActivityID == "" || p.UserID == "" {
		log.Printf("realtime: join missing activityId or userId, dropping")
		return
	}

	key := OpKey("join", p.ActivityID, p.UserID)
	if !e.dedup.TryBegin(key) {
		return
	}
	defer e.dedup.End(key)

	connID := sub.ID()
	if e.registry.HasJoined(connID, p.ActivityID) {
		return
	}

	e.registry.Bind(connID, p.UserID)
	e.registry.RecordJoin(connID, p.ActivityID)
	e.presence.Add(p.ActivityID, p.UserID)
	e.hub.JoinRoom(p.ActivityID, sub)

	name := strings.TrimSpace(p.UserName)
	if name == "" {
		name = fallbackName(p.UserID)
	}
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	if _, err := e.store.UpsertParticipant(storeCtx, p.ActivityID, store.Participant{
		ID:          p.UserID,
		Name:        name,
		IsConnected: true,
	}); err != nil {
		log.Printf("realtime: activate participant %s in %s: %v (continuing with in-memory presence)", p.UserID, p.ActivityID, err)
	}

	e.broadcastPresence(ctx, p.ActivityID, "")
}

// Leave removes the connection's claim on the activity. Presence and the
// durable connected flag only change once no other connection of the same
// participant still claims membership.
func (e *Engine) Leave(ctx context.Context, connID string, p LeavePayload) {
	if p.ActivityID == "" || p.UserID == "" {
		log.Printf("realtime: leave missing activityId or userId, dropping")
		return
	}

	key := OpKey("leave", p.ActivityID, p.UserID)
	if !e.dedup.TryBegin(key) {
		return
	}
	defer e.dedup.End(key)

	if !e.registry.HasJoined(connID, p.ActivityID) {
		return
	}
	e.registry.RecordLeave(connID, p.ActivityID)
	e.hub.LeaveRoom(p.ActivityID, connID)

	if e.registry.ClaimCount(p.ActivityID, p.UserID) > 0 {
		return
	}
	e.presence.Remove(p.ActivityID, p.UserID)

	if err := withRetry(ctx, 3, 100*time.Millisecond, e.storeTimeout, func(c context.Context) error {
		_, err := e.store.SetParticipantConnected(c, p.ActivityID, p.UserID, false)
		return err
	}); err != nil {
		log.Printf("realtime: deactivate participant %s in %s: %v", p.UserID, p.ActivityID, err)
	}

	e.broadcastPresence(ctx, p.ActivityID, "")
}

// Disconnect tears down a connection: slot release, room removal, and a
// presence update in every activity the connection had joined. Per-activity
// cleanup runs concurrently under one aggregate deadline so a slow store
// cannot pin the teardown indefinitely.
func (e *Engine) Disconnect(ctx context.Context, connID string) {
	conn, registered := e.registry.Unregister(connID)
	e.hub.RemoveConn(connID)
	if !registered {
		return
	}
	e.admission.Release()

	if conn.ParticipantID == "" || len(conn.Activities) == 0 {
		return
	}

	budgetCtx, cancel := context.WithTimeout(ctx, e.disconnectBudget)
	defer cancel()

	g, gctx := errgroup.WithContext(budgetCtx)
	for _, activityID := range conn.Activities {
		activityID := activityID
		g.Go(func() error {
			key := OpKey("disconnect", activityID, conn.ParticipantID)
			if !e.dedup.TryBegin(key) {
				return nil
			}
			defer e.dedup.End(key)

			if e.registry.ClaimCount(activityID, conn.ParticipantID) > 0 {
				return nil
			}
			e.presence.Remove(activityID, conn.ParticipantID)

			if err := withRetry(gctx, 3, 100*time.Millisecond, e.storeTimeout, func(c context.Context) error {
				_, err := e.store.SetParticipantConnected(c, activityID, conn.ParticipantID, false)
				return err
			}); err != nil {
				log.Printf("realtime: deactivate participant %s in %s on disconnect: %v", conn.ParticipantID, activityID, err)
			}

			e.broadcastPresence(gctx, activityID, "")
			return nil
		})
	}
	_ = g.Wait()
}

// AddTag validates and persists a new tag, then broadcasts it to everyone
// in the room except the originator, who already applied it optimistically.
// A duplicate tag id is silently dropped.
func (e *Engine) AddTag(ctx context.Context, originConnID string, p AddTagPayload) {
	if p.ActivityID == "" || p.Tag.ID == "" || strings.TrimSpace(p.Tag.Text) == "" {
		log.Printf("realtime: add_tag missing required fields, dropping")
		return
	}

	key := OpKey("add_tag:"+p.Tag.ID, p.ActivityID, p.Tag.CreatorID)
	if !e.dedup.TryBegin(key) {
		return
	}
	defer e.dedup.End(key)

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	activity, err := e.store.FindActivity(storeCtx, p.ActivityID)
	if err != nil {
		log.Printf("realtime: add_tag load %s: %v", p.ActivityID, err)
		return
	}
	if _, exists := activity.FindTag(p.Tag.ID); exists {
		return
	}

	status := store.TagApproved
	if activity.Settings.VotingEnabled {
		status = store.TagPending
	}
	creatorName := strings.TrimSpace(p.Tag.CreatorName)
	if creatorName == "" {
		if participant, ok := activity.FindParticipant(p.Tag.CreatorID); ok {
			creatorName = participant.Name
		} else {
			creatorName = fallbackName(p.Tag.CreatorID)
		}
	}
	tag := store.Tag{
		ID:          p.Tag.ID,
		Text:        strings.TrimSpace(p.Tag.Text),
		CreatorID:   p.Tag.CreatorID,
		CreatorName: creatorName,
		Votes:       []store.Vote{},
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}

	added, err := e.store.AddTag(storeCtx, p.ActivityID, tag)
	if err != nil {
		log.Printf("realtime: add_tag persist %s/%s: %v", p.ActivityID, tag.ID, err)
		return
	}
	if !added {
		// Lost a race against another connection adding the same id.
		return
	}

	e.hub.ToRoom(p.ActivityID, originConnID, Event{Name: EvtTagAdded, Data: TagAddedPayload{
		ActivityID: p.ActivityID,
		Tag:        tag,
	}})
}

// VoteTag toggles the voter's vote on the tag and recomputes the tag status
// under the minimum-votes threshold. A second identical vote removes the
// first, so replays cancel out instead of double counting.
func (e *Engine) VoteTag(ctx context.Context, originConnID string, p VoteTagPayload) {
	if p.ActivityID == "" || p.TagID == "" || p.Vote.UserID == "" {
		log.Printf("realtime: vote_tag missing required fields, dropping")
		return
	}

	key := OpKey("vote_tag:"+p.TagID, p.ActivityID, p.Vote.UserID)
	if !e.dedup.TryBegin(key) {
		return
	}
	defer e.dedup.End(key)

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	activity, err := e.store.FindActivity(storeCtx, p.ActivityID)
	if err != nil {
		log.Printf("realtime: vote_tag load %s: %v", p.ActivityID, err)
		return
	}
	tag, ok := activity.FindTag(p.TagID)
	if !ok {
		log.Printf("realtime: vote_tag unknown tag %s in %s, dropping", p.TagID, p.ActivityID)
		return
	}

	var votes []store.Vote
	if tag.HasVoteFrom(p.Vote.UserID) {
		votes = make([]store.Vote, 0, len(tag.Votes))
		for _, v := range tag.Votes {
			if v.UserID != p.Vote.UserID {
				votes = append(votes, v)
			}
		}
	} else {
		vote := p.Vote
		if vote.Timestamp.IsZero() {
			vote.Timestamp = time.Now().UTC()
		}
		if strings.TrimSpace(vote.UserName) == "" {
			if participant, found := activity.FindParticipant(vote.UserID); found {
				vote.UserName = participant.Name
			} else {
				vote.UserName = fallbackName(vote.UserID)
			}
		}
		votes = append(append([]store.Vote{}, tag.Votes...), vote)
	}

	status := recomputeTagStatus(tag.Status, len(votes), activity.Settings)

	if _, err := e.store.SetTagVotes(storeCtx, p.ActivityID, p.TagID, votes, status); err != nil {
		log.Printf("realtime: vote_tag persist %s/%s: %v", p.ActivityID, p.TagID, err)
		return
	}

	e.hub.ToRoom(p.ActivityID, originConnID, Event{Name: EvtTagVoted, Data: TagVotedPayload{
		ActivityID: p.ActivityID,
		TagID:      p.TagID,
		Votes:      votes,
		Status:     status,
	}})
}

// recomputeTagStatus applies the minimum-votes threshold in both
// directions: crossing it approves, dropping below it demotes back to
// pending. A rejected tag stays rejected regardless of count, and the topN
// threshold is settled by the host at phase end rather than per vote.
func recomputeTagStatus(current store.TagStatus, voteCount int, settings store.Settings) store.TagStatus {
	if !settings.VotingEnabled || settings.VoteThreshold != store.ThresholdMinimum {
		return current
	}
	if current == store.TagRejected {
		return current
	}
	if voteCount >= settings.MinimumVotes {
		return store.TagApproved
	}
	return store.TagPending
}

// DeleteTag removes the tag and tells the room. Deleting an already-deleted
// tag is a silent no-op with no broadcast.
func (e *Engine) DeleteTag(ctx context.Context, originConnID string, p DeleteTagPayload) {
	if p.ActivityID == "" || p.TagID == "" {
		log.Printf("realtime: delete_tag missing required fields, dropping")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	modified, err := e.store.DeleteTag(storeCtx, p.ActivityID, p.TagID)
	if err != nil {
		log.Printf("realtime: delete_tag %s/%s: %v", p.ActivityID, p.TagID, err)
		return
	}
	if modified == 0 {
		return
	}

	e.hub.ToRoom(p.ActivityID, originConnID, Event{Name: EvtTagDeleted, Data: TagDeletedPayload{
		ActivityID: p.ActivityID,
		TagID:      p.TagID,
	}})
}

// UpdateMapping replaces the participant's mapping submission wholesale.
// When isComplete is omitted the stored flag is preserved, so a position
// drag cannot silently un-complete a finished map.
func (e *Engine) UpdateMapping(ctx context.Context, originConnID string, p UpdateMappingPayload) {
	if p.ActivityID == "" || p.UserID == "" {
		log.Printf("realtime: update_mapping missing required fields, dropping")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	activity, err := e.store.FindActivity(storeCtx, p.ActivityID)
	if err != nil {
		log.Printf("realtime: update_mapping load %s: %v", p.ActivityID, err)
		return
	}

	name := fallbackName(p.UserID)
	if participant, ok := activity.FindParticipant(p.UserID); ok {
		name = participant.Name
	}
	complete := false
	for _, m := range activity.Mappings {
		if m.UserID == p.UserID {
			complete = m.IsComplete
			break
		}
	}
	if p.IsComplete != nil {
		complete = *p.IsComplete
	}
	positions := p.Positions
	if positions == nil {
		positions = []store.TagPosition{}
	}

	submission := store.MappingSubmission{
		UserID:     p.UserID,
		UserName:   name,
		Positions:  positions,
		IsComplete: complete,
		UpdatedAt:  time.Now().UTC(),
	}
	if _, err := e.store.UpsertMapping(storeCtx, p.ActivityID, submission); err != nil {
		log.Printf("realtime: update_mapping persist %s/%s: %v", p.ActivityID, p.UserID, err)
		return
	}

	e.hub.ToRoom(p.ActivityID, originConnID, Event{Name: EvtMappingUpdated, Data: MappingUpdatedPayload{
		ActivityID: p.ActivityID,
		UserID:     p.UserID,
		Positions:  positions,
		IsComplete: complete,
	}})
}

// SubmitRanking replaces the participant's ranking submission, mirroring
// the mapping semantics.
func (e *Engine) SubmitRanking(ctx context.Context, originConnID string, p SubmitRankingPayload) {
	if p.ActivityID == "" || p.UserID == "" {
		log.Printf("realtime: submit_ranking missing required fields, dropping")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	activity, err := e.store.FindActivity(storeCtx, p.ActivityID)
	if err != nil {
		log.Printf("realtime: submit_ranking load %s: %v", p.ActivityID, err)
		return
	}

	name := fallbackName(p.UserID)
	if participant, ok := activity.FindParticipant(p.UserID); ok {
		name = participant.Name
	}
	complete := false
	for _, r := range activity.Rankings {
		if r.UserID == p.UserID {
			complete = r.IsComplete
			break
		}
	}
	if p.IsComplete != nil {
		complete = *p.IsComplete
	}
	order := p.TagOrder
	if order == nil {
		order = []string{}
	}

	submission := store.RankingSubmission{
		UserID:     p.UserID,
		UserName:   name,
		TagOrder:   order,
		IsComplete: complete,
		UpdatedAt:  time.Now().UTC(),
	}
	if _, err := e.store.UpsertRanking(storeCtx, p.ActivityID, submission); err != nil {
		log.Printf("realtime: submit_ranking persist %s/%s: %v", p.ActivityID, p.UserID, err)
		return
	}

	e.hub.ToRoom(p.ActivityID, originConnID, Event{Name: EvtRankingUpdated, Data: RankingUpdatedPayload{
		ActivityID: p.ActivityID,
		UserID:     p.UserID,
		TagOrder:   order,
		IsComplete: complete,
	}})
}

// ChangePhase persists the host's phase choice and tells the room. Any
// phase-to-phase transition is allowed; the host is trusted to drive the
// session, including backwards. The activity status tracks the phase:
// reaching results completes the activity, leaving it reactivates.
func (e *Engine) ChangePhase(ctx context.Context, originConnID string, p ChangePhasePayload) {
	if p.ActivityID == "" || p.Phase == "" {
		log.Printf("realtime: change_phase missing required fields, dropping")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if _, err := e.store.SetPhase(storeCtx, p.ActivityID, p.Phase); err != nil {
		log.Printf("realtime: change_phase %s -> %s: %v", p.ActivityID, p.Phase, err)
		return
	}

	status := store.StatusActive
	if p.Phase == store.PhaseResults {
		status = store.StatusCompleted
	}
	if _, err := e.store.SetStatus(storeCtx, p.ActivityID, status); err != nil {
		log.Printf("realtime: set status %s -> %s: %v", p.ActivityID, status, err)
	}

	e.hub.ToRoom(p.ActivityID, originConnID, Event{Name: EvtPhaseChanged, Data: PhaseChangedPayload{
		ActivityID: p.ActivityID,
		Phase:      p.Phase,
	}})
}

// NotifyActivityCreated announces a new activity to every connection so
// lobby views refresh. The payload carries the full document when the store
// can serve it, otherwise just the id.
func (e *Engine) NotifyActivityCreated(ctx context.Context, activityID string) {
	e.notifyActivity(ctx, EvtActivityCreated, activityID)
}

// NotifyActivityUpdated announces a settings or metadata change.
func (e *Engine) NotifyActivityUpdated(ctx context.Context, activityID string) {
	e.notifyActivity(ctx, EvtActivityUpdated, activityID)
}

func (e *Engine) notifyActivity(ctx context.Context, name, activityID string) {
	if activityID == "" {
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if activity, err := e.store.FindActivity(storeCtx, activityID); err == nil {
		e.hub.ToAll(Event{Name: name, Data: activity})
		return
	}
	e.hub.ToAll(Event{Name: name, Data: ActivityRefPayload{ActivityID: activityID}})
}

// DeleteActivity removes the document and always broadcasts the deletion to
// every connection, even when the store write failed or the document was
// already gone. Clients viewing a dead activity must be told to leave;
// convergence here outranks strict accuracy.
func (e *Engine) DeleteActivity(ctx context.Context, activityID string) {
	if activityID == "" {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	if _, err := e.store.DeleteActivity(storeCtx, activityID); err != nil {
		log.Printf("realtime: delete activity %s: %v (broadcasting anyway)", activityID, err)
	}

	e.presence.DropActivity(activityID)
	e.hub.DropRoom(activityID)
	e.hub.ToAll(Event{Name: EvtActivityDeleted, Data: ActivityRefPayload{ActivityID: activityID}})
}

// broadcastPresence sends the merged presence table for the activity to its
// room. Durable participant records are overlaid with the live presence
// set; when the store is unreachable the broadcast degrades to live entries
// only rather than being skipped.
func (e *Engine) broadcastPresence(ctx context.Context, activityID, excludeConnID string) {
	present := e.presence.List(activityID)

	storeCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	entries := make([]PresenceEntry, 0, len(present))
	activity, err := e.store.FindActivity(storeCtx, activityID)
	if err == nil {
		presentSet := make(map[string]struct{}, len(present))
		for _, id := range present {
			presentSet[id] = struct{}{}
		}
		seen := make(map[string]struct{}, len(activity.Participants))
		for _, participant := range activity.Participants {
			_, connected := presentSet[participant.ID]
			entries = append(entries, PresenceEntry{
				ID:          participant.ID,
				Name:        participant.Name,
				IsConnected: connected,
			})
			seen[participant.ID] = struct{}{}
		}
		// Present participants the store has not caught up with yet.
		for _, id := range present {
			if _, ok := seen[id]; !ok {
				entries = append(entries, PresenceEntry{ID: id, Name: fallbackName(id), IsConnected: true})
			}
		}
	} else {
		log.Printf("realtime: presence load %s: %v (broadcasting live entries only)", activityID, err)
		for _, id := range present {
			entries = append(entries, PresenceEntry{ID: id, Name: fallbackName(id), IsConnected: true})
		}
	}

	e.hub.ToRoom(activityID, excludeConnID, Event{Name: EvtParticipantsUpdated, Data: ParticipantsUpdatedPayload{
		ActivityID:   activityID,
		Participants: entries,
	}})
}

// fallbackName derives a stable display name when none was supplied:
// "User-" plus the first 6 characters of the participant id.
func fallbackName(userID string) string {
	prefix := userID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return "User-" + prefix
}
