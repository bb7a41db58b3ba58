package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// IdentityResolver turns a bearer token into a participant identity. It is
// optional: identity usually arrives in event payloads, the resolver only
// supplies defaults when a client opened the socket with ?token=.
type IdentityResolver func(ctx context.Context, token string) (userID, userName string, err error)

// WSServer upgrades HTTP requests and bridges socket frames into engine
// calls.
type WSServer struct {
	engine   *Engine
	resolve  IdentityResolver
	upgrader websocket.Upgrader
}

func NewWSServer(engine *Engine, resolve IdentityResolver) *WSServer {
	return &WSServer{
		engine:  engine,
		resolve: resolve,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the app origin; origin policy is
			// enforced at the HTTP layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade: %v", err)
		return
	}
	s.serveConn(conn, token)
}

func (s *WSServer) serveConn(conn *websocket.Conn, token string) {
	defer conn.Close()

	// Clear any deadline inherited from the HTTP server; the socket is
	// long-lived and writes set their own deadlines.
	_ = conn.SetReadDeadline(time.Time{})

	wsc := &wsConn{id: uuid.NewString(), conn: conn}

	var defaultUserID, defaultUserName string
	if token != "" && s.resolve != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		userID, userName, err := s.resolve(ctx, token)
		cancel()
		if err != nil {
			log.Printf("realtime: resolve token for %s: %v", wsc.id, err)
		} else {
			defaultUserID, defaultUserName = userID, userName
		}
	}

	if !s.engine.Connect(wsc) {
		return
	}
	defer s.engine.Disconnect(context.Background(), wsc.id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("realtime: read %s: %v", wsc.id, err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("realtime: malformed frame from %s: %v", wsc.id, err)
			continue
		}
		s.dispatch(wsc, frame, defaultUserID, defaultUserName)
	}
}

// dispatch decodes the frame payload per event name and invokes the engine
// handler. Unknown events and undecodable payloads are logged and dropped;
// a misbehaving client never takes the connection down.
func (s *WSServer) dispatch(wsc *wsConn, frame Frame, defaultUserID, defaultUserName string) {
	ctx := context.Background()

	switch frame.Event {
	case EvtJoinActivity:
		var p JoinPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = defaultUserID
		}
		if p.UserName == "" {
			p.UserName = defaultUserName
		}
		s.engine.Join(ctx, wsc, p)
	case EvtLeaveActivity:
		var p LeavePayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = defaultUserID
		}
		s.engine.Leave(ctx, wsc.id, p)
	case EvtCreateActivity:
		var p ActivityRefPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		s.engine.NotifyActivityCreated(ctx, p.ActivityID)
	case EvtUpdateActivity:
		var p ActivityRefPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		s.engine.NotifyActivityUpdated(ctx, p.ActivityID)
	case EvtDeleteActivity:
		var p ActivityRefPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		s.engine.DeleteActivity(ctx, p.ActivityID)
	case EvtAddTag:
		var p AddTagPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		if p.Tag.CreatorID == "" {
			p.Tag.CreatorID = defaultUserID
		}
		s.engine.AddTag(ctx, wsc.id, p)
	case EvtVoteTag:
		var p VoteTagPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		if p.Vote.UserID == "" {
			p.Vote.UserID = defaultUserID
		}
		s.engine.VoteTag(ctx, wsc.id, p)
	case EvtDeleteTag:
		var p DeleteTagPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		s.engine.DeleteTag(ctx, wsc.id, p)
	case EvtUpdateMapping:
		var p UpdateMappingPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = defaultUserID
		}
		s.engine.UpdateMapping(ctx, wsc.id, p)
	case EvtSubmitRanking:
		var p SubmitRankingPayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = defaultUserID
		}
		s.engine.SubmitRanking(ctx, wsc.id, p)
	case EvtChangePhase:
		var p ChangePhasePayload
		if !decodeFrame(wsc.id, frame, &p) {
			return
		}
		s.engine.ChangePhase(ctx, wsc.id, p)
	default:
		log.Printf("realtime: unknown event %q from %s, dropping", frame.Event, wsc.id)
	}
}

func decodeFrame(connID string, frame Frame, dst any) bool {
	if len(frame.Data) == 0 {
		log.Printf("realtime: %s from %s has no payload, dropping", frame.Event, connID)
		return false
	}
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		log.Printf("realtime: decode %s from %s: %v", frame.Event, connID, err)
		return false
	}
	return true
}

// wsConn adapts a gorilla connection to the Subscriber interface. Writes
// are serialized through a mutex because broadcasts arrive from many
// goroutines.
type wsConn struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(ev)
}
