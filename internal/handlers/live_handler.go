package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/metrics"
	"github.com/anonto42/folio/backend/internal/presence"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxMessageSize   = 64 * 1024
	maxSubscriptions = 32
)

// LiveRequest is a client message on the live socket.
//
//	{"action":"subscribe","id":"inbox","query":{"path":"users/u1/notifications","orderBy":[{"field":"createdAt","desc":true}],"limit":20}}
//	{"action":"unsubscribe","id":"inbox"}
//	{"action":"visibility","visible":false}
type LiveRequest struct {
	Action  string           `json:"action"`
	ID      string           `json:"id,omitempty"`
	Query   *QueryDescriptor `json:"query,omitempty"`
	Visible *bool            `json:"visible,omitempty"`
}

// QueryDescriptor is the wire form of a document or collection query.
type QueryDescriptor struct {
	Path    string             `json:"path"`
	Where   []FilterDescriptor `json:"where,omitempty"`
	OrderBy []OrderDescriptor  `json:"orderBy,omitempty"`
	Limit   int                `json:"limit,omitempty"`
}

type FilterDescriptor struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type OrderDescriptor struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query converts the descriptor. Validation happens when it is bound.
func (d QueryDescriptor) Query() docstore.Query {
	q := docstore.Query{Path: d.Path, Limit: d.Limit}
	for _, f := range d.Where {
		q = q.Where(f.Field, docstore.FilterOp(f.Op), f.Value)
	}
	for _, o := range d.OrderBy {
		q = q.OrderBy(o.Field, o.Desc)
	}
	return q
}

// LiveDocument is one document of a snapshot. Exists is false for a watched
// document that is absent.
type LiveDocument struct {
	ID     string         `json:"id"`
	Path   string         `json:"path"`
	Exists bool           `json:"exists"`
	Data   map[string]any `json:"data,omitempty"`
}

// LiveEvent is a server message on the live socket.
type LiveEvent struct {
	Type      string         `json:"type"`
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Docs      []LiveDocument `json:"docs,omitempty"`
	Loading   bool           `json:"loading,omitempty"`
	Error     string         `json:"error,omitempty"`
	Path      string         `json:"path,omitempty"`
	Operation string         `json:"operation,omitempty"`
}

func liveDocument(d docstore.Document) (LiveDocument, error) {
	return LiveDocument{ID: d.ID, Path: d.Path, Exists: d.Exists, Data: d.Data}, nil
}

// LiveHandler streams live query snapshots over a WebSocket and keeps the
// caller's presence marker fresh while the socket is open.
type LiveHandler struct {
	store     docstore.Store
	bus       *errbus.Bus
	heartbeat *presence.Heartbeat
	metrics   metrics.Recorder
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewLiveHandler creates a LiveHandler. store should be the guarded store so
// every subscription is evaluated as the caller.
func NewLiveHandler(store docstore.Store, bus *errbus.Bus, heartbeat *presence.Heartbeat, rec metrics.Recorder, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &LiveHandler{
		store:     store,
		bus:       bus,
		heartbeat: heartbeat,
		metrics:   rec,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RegisterLiveRoutes registers the live socket
func (h *LiveHandler) RegisterLiveRoutes(g *echo.Group) {
	g.GET("/live", h.Live)
}

// Live upgrades the request and serves the socket until either side closes it
func (h *LiveHandler) Live(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "uid", id.UID, "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	s := &liveSession{
		handler: h,
		ws:      ws,
		ctx:     ctx,
		id:      uuid.NewString(),
		uid:     id.UID,
		out:     make(chan LiveEvent, 16),
		subs:    make(map[string]*liveSub),
	}
	log := h.logger.With("uid", id.UID, "session", s.id)
	log.Info("live session opened")

	unsubscribe := h.bus.Subscribe(s.onPermissionError)
	s.wg.Add(1)
	go s.writeLoop()
	if h.heartbeat != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			h.heartbeat.Run(ctx, &s.visibility)
		}()
	}

	s.send(LiveEvent{Type: "session", SessionID: s.id})
	err = s.readLoop()

	unsubscribe()
	s.closeAll()
	cancel()
	s.wg.Wait()
	_ = ws.Close()
	log.Info("live session closed", "reason", err)
	return nil
}

type liveSub struct {
	sub  *live.Subscription[LiveDocument]
	key  string
	stop func()
}

type liveSession struct {
	handler    *LiveHandler
	ws         *websocket.Conn
	ctx        context.Context
	id         string
	uid        string
	out        chan LiveEvent
	visibility presence.Visibility
	wg         sync.WaitGroup

	mu   sync.Mutex
	subs map[string]*liveSub
}

func (s *liveSession) send(ev LiveEvent) {
	select {
	case s.out <- ev:
	case <-s.ctx.Done():
	}
}

// onPermissionError forwards the caller's rejections. It runs on the
// emitting goroutine, so it never blocks.
func (s *liveSession) onPermissionError(pe errbus.PermissionError) {
	if pe.UID != s.uid {
		return
	}
	select {
	case s.out <- LiveEvent{Type: "permission_denied", Path: pe.Path, Operation: pe.Operation, Error: pe.Error()}:
	default:
	}
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-s.out:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteJSON(ev); err != nil {
				s.handler.logger.Warn("live write failed", "session", s.id, "error", err)
				_ = s.ws.Close()
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.ws.Close()
				return
			}
		}
	}
}

func (s *liveSession) readLoop() error {
	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var req LiveRequest
		if err := s.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return nil
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))

		switch req.Action {
		case "subscribe":
			s.subscribe(req)
		case "unsubscribe":
			s.unsubscribe(req.ID)
		case "visibility":
			if req.Visible != nil {
				s.visibility.SetVisible(*req.Visible)
			}
		default:
			s.send(LiveEvent{Type: "error", ID: req.ID, Error: "unknown action " + req.Action})
		}
	}
}

// subscribe binds id to the request's query. Re-sending an equivalent query
// for an existing id keeps its listener; a nil query leaves it idle.
func (s *liveSession) subscribe(req LiveRequest) {
	if req.ID == "" {
		s.send(LiveEvent{Type: "error", Error: "subscription id is required"})
		return
	}
	var q *docstore.Query
	if req.Query != nil {
		query := req.Query.Query()
		if err := query.Validate(); err != nil {
			s.send(LiveEvent{Type: "error", ID: req.ID, Error: err.Error()})
			return
		}
		q = &query
	}

	s.mu.Lock()
	entry, ok := s.subs[req.ID]
	if !ok {
		if len(s.subs) >= maxSubscriptions {
			s.mu.Unlock()
			s.send(LiveEvent{Type: "error", ID: req.ID, Error: "too many subscriptions"})
			return
		}
		entry = s.open(req.ID)
		s.subs[req.ID] = entry
	}
	s.mu.Unlock()

	key := ""
	if q != nil {
		key = q.Key()
	}
	if ok && key == entry.key {
		return
	}
	entry.key = key
	if q != nil {
		s.send(LiveEvent{Type: "snapshot", ID: req.ID, Loading: true})
	}
	if err := entry.sub.Update(q); err != nil {
		s.send(LiveEvent{Type: "error", ID: req.ID, Error: err.Error()})
	}
}

// open starts a subscription whose changes are forwarded until stop is called.
func (s *liveSession) open(id string) *liveSub {
	h := s.handler
	sub := live.New(s.ctx, h.store, h.bus, liveDocument, live.WithLogger(h.logger), live.WithMetrics(h.metrics))
	changes, cancel := sub.Changes()
	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-s.ctx.Done():
				return
			case st := <-changes:
				ev := LiveEvent{Type: "snapshot", ID: id, Docs: st.Data, Loading: st.Loading}
				if st.Err != nil {
					ev.Error = st.Err.Error()
				}
				s.send(ev)
			}
		}
	}()

	var once sync.Once
	return &liveSub{sub: sub, stop: func() {
		once.Do(func() {
			cancel()
			sub.Close()
			close(done)
		})
	}}
}

func (s *liveSession) unsubscribe(id string) {
	s.mu.Lock()
	entry, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		entry.stop()
	}
}

func (s *liveSession) closeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*liveSub)
	s.mu.Unlock()
	for _, entry := range subs {
		entry.stop()
	}
}
