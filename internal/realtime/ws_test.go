package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mosaic/api/internal/store"
)

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newWSTestServer(t *testing.T, opts Options) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	engine := NewEngine(s, opts)
	t.Cleanup(engine.Close)
	srv := httptest.NewServer(NewWSServer(engine, nil))
	t.Cleanup(srv.Close)
	return srv, s
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWire(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return ev
}

func sendWire(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame, _ := json.Marshal(map[string]json.RawMessage{
		"event": json.RawMessage(`"` + event + `"`),
		"data":  payload,
	})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func seedWSActivity(t *testing.T, s *store.MemoryStore, id string) {
	t.Helper()
	now := time.Now()
	if err := s.InsertActivity(context.Background(), store.Activity{
		ID:        id,
		Name:      "Sprint retro",
		Phase:     store.PhaseGathering,
		Status:    store.StatusActive,
		Settings:  store.DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed activity: %v", err)
	}
}

func TestWSHandshakeAndJoin(t *testing.T) {
	srv, s := newWSTestServer(t, Options{})
	seedWSActivity(t, s, "act-1")

	conn := dialWS(t, srv)
	if ev := readWire(t, conn); ev.Event != EvtConnectionAccepted {
		t.Fatalf("expected %s first, got %s", EvtConnectionAccepted, ev.Event)
	}

	sendWire(t, conn, EvtJoinActivity, JoinPayload{ActivityID: "act-1", UserID: "u1", UserName: "Avery"})

	ev := readWire(t, conn)
	if ev.Event != EvtParticipantsUpdated {
		t.Fatalf("expected %s, got %s", EvtParticipantsUpdated, ev.Event)
	}
	var payload ParticipantsUpdatedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Participants) != 1 || payload.Participants[0].ID != "u1" || !payload.Participants[0].IsConnected {
		t.Errorf("unexpected presence payload: %+v", payload)
	}
}

func TestWSPeerReceivesTagBroadcast(t *testing.T) {
	srv, s := newWSTestServer(t, Options{})
	seedWSActivity(t, s, "act-1")

	alpha := dialWS(t, srv)
	readWire(t, alpha) // connection_accepted
	beta := dialWS(t, srv)
	readWire(t, beta)

	sendWire(t, alpha, EvtJoinActivity, JoinPayload{ActivityID: "act-1", UserID: "u1", UserName: "Avery"})
	readWire(t, alpha) // own presence view
	sendWire(t, beta, EvtJoinActivity, JoinPayload{ActivityID: "act-1", UserID: "u2", UserName: "Blake"})
	readWire(t, beta)  // own presence view
	readWire(t, alpha) // presence update for u2

	tag := AddTagPayload{ActivityID: "act-1"}
	tag.Tag.ID = "tag-1"
	tag.Tag.Text = "Flaky deploys"
	tag.Tag.CreatorID = "u1"
	tag.Tag.CreatorName = "Avery"
	sendWire(t, alpha, EvtAddTag, tag)

	ev := readWire(t, beta)
	if ev.Event != EvtTagAdded {
		t.Fatalf("expected %s, got %s", EvtTagAdded, ev.Event)
	}
	var payload TagAddedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Tag.Text != "Flaky deploys" {
		t.Errorf("unexpected tag: %+v", payload.Tag)
	}
}

func TestWSMalformedFrameDoesNotKillConnection(t *testing.T) {
	srv, s := newWSTestServer(t, Options{})
	seedWSActivity(t, s, "act-1")

	conn := dialWS(t, srv)
	readWire(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	sendWire(t, conn, "no_such_event", map[string]string{"x": "y"})

	// The connection must still be serviceable.
	sendWire(t, conn, EvtJoinActivity, JoinPayload{ActivityID: "act-1", UserID: "u1", UserName: "Avery"})
	if ev := readWire(t, conn); ev.Event != EvtParticipantsUpdated {
		t.Fatalf("expected %s after garbage frames, got %s", EvtParticipantsUpdated, ev.Event)
	}
}

func TestWSRejectionAtHardLimit(t *testing.T) {
	srv, s := newWSTestServer(t, Options{SoftConnectionLimit: 1, HardConnectionLimit: 1})
	seedWSActivity(t, s, "act-1")

	admitted := dialWS(t, srv)
	readWire(t, admitted) // connection_accepted
	readWire(t, admitted) // capacity_warning at the soft limit

	rejected := dialWS(t, srv)
	ev := readWire(t, rejected)
	if ev.Event != EvtConnectionRejected {
		t.Fatalf("expected %s, got %s", EvtConnectionRejected, ev.Event)
	}
	var payload ConnectionRejectedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Max != 1 || payload.RetryAfterSeconds <= 0 {
		t.Errorf("unexpected rejection payload: %+v", payload)
	}

	// The server closes the rejected socket after the event.
	_ = rejected.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := rejected.ReadMessage(); err == nil {
		t.Error("expected the rejected connection to be closed")
	}
}

func TestWSDisconnectUpdatesPeers(t *testing.T) {
	srv, s := newWSTestServer(t, Options{})
	seedWSActivity(t, s, "act-1")

	alpha := dialWS(t, srv)
	readWire(t, alpha)
	beta := dialWS(t, srv)
	readWire(t, beta)

	sendWire(t, alpha, EvtJoinActivity, JoinPayload{ActivityID: "act-1", UserID: "u1", UserName: "Avery"})
	readWire(t, alpha)
	sendWire(t, beta, EvtJoinActivity, JoinPayload{ActivityID: "act-1", UserID: "u2", UserName: "Blake"})
	readWire(t, beta)
	readWire(t, alpha)

	beta.Close()

	ev := readWire(t, alpha)
	if ev.Event != EvtParticipantsUpdated {
		t.Fatalf("expected %s after peer disconnect, got %s", EvtParticipantsUpdated, ev.Event)
	}
	var payload ParticipantsUpdatedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, entry := range payload.Participants {
		if entry.ID == "u2" && entry.IsConnected {
			t.Error("expected u2 to be marked disconnected")
		}
	}
}
