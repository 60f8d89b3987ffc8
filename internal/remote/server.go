package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/autopilot/internal/engine"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/tracker"
)

// Engine is the control surface exposed to remote clients. Satisfied by
// engine.Controller.
type Engine interface {
	State() engine.EngineState
	Tasks(ctx context.Context) ([]tracker.Task, error)
	Pause() error
	Resume() error
	Interrupt() error
	Continue(ctx context.Context) error
	AddIterations(n int) error
	RemoveIterations(n int) error
}

// Server serves the control protocol over websocket at /ws. Connections must
// authenticate with the shared token before any other request is accepted.
type Server struct {
	addr  string
	token string
	eng   Engine
	bus   *events.EventBus
}

// NewServer creates a control server. An empty token disables all access:
// every connection is rejected at the auth step.
func NewServer(addr, token string, eng Engine, bus *events.EventBus) *Server {
	return &Server{addr: addr, token: token, eng: eng, bus: bus}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", websocket.Handler(func(ws *websocket.Conn) {
		s.handleConn(ctx, ws)
	}))

	srv := &http.Server{Addr: s.addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("remote server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// conn is one authenticated client connection. Writes are serialized through
// mu because the event forwarder goroutine shares the socket with request
// responses.
type conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	authed bool

	subMu  sync.Mutex
	events <-chan events.Event
	filter map[string]bool // nil means all event types
}

func (c *conn) send(resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := websocket.JSON.Send(c.ws, resp); err != nil {
		log.Printf("remote: send failed: %v", err)
	}
}

func (s *Server) handleConn(ctx context.Context, ws *websocket.Conn) {
	c := &conn{ws: ws}
	defer s.stopForwarding(c)

	for {
		var req Request
		if err := websocket.JSON.Receive(ws, &req); err != nil {
			return
		}

		if !c.authed {
			if req.Type != MsgAuth || s.token == "" || req.Token != s.token {
				c.send(errResult(req.ID, errors.New("authentication required")))
				return
			}
			c.authed = true
			c.send(okResult(req.ID))
			continue
		}

		s.dispatch(ctx, c, req)
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, req Request) {
	switch req.Type {
	case MsgGetState:
		st := s.eng.State()
		c.send(Response{ID: req.ID, Type: MsgStateResponse, Success: true, State: &st})

	case MsgGetTasks, MsgRefreshTasks:
		tasks, err := s.eng.Tasks(ctx)
		if err != nil {
			c.send(errResult(req.ID, err))
			return
		}
		c.send(Response{ID: req.ID, Type: MsgTasksResponse, Success: true, Tasks: tasks})

	case MsgPause:
		c.result(req.ID, s.eng.Pause())
	case MsgResume:
		c.result(req.ID, s.eng.Resume())
	case MsgInterrupt:
		c.result(req.ID, s.eng.Interrupt())
	case MsgContinue:
		c.result(req.ID, s.eng.Continue(ctx))
	case MsgAddIterations:
		c.result(req.ID, s.eng.AddIterations(req.Count))
	case MsgRemoveIterations:
		c.result(req.ID, s.eng.RemoveIterations(req.Count))

	case MsgSubscribe:
		s.startForwarding(c, req.EventTypes)
		c.send(okResult(req.ID))
	case MsgUnsubscribe:
		s.stopForwarding(c)
		c.send(okResult(req.ID))

	default:
		c.send(errResult(req.ID, fmt.Errorf("unknown request type %q", req.Type)))
	}
}

func (c *conn) result(id string, err error) {
	if err != nil {
		c.send(errResult(id, err))
		return
	}
	c.send(okResult(id))
}

// startForwarding streams every bus event to the client as engine_event. A
// repeated subscribe only replaces the type filter.
func (s *Server) startForwarding(c *conn, eventTypes []string) {
	var filter map[string]bool
	if len(eventTypes) > 0 {
		filter = make(map[string]bool, len(eventTypes))
		for _, t := range eventTypes {
			filter[t] = true
		}
	}

	c.subMu.Lock()
	c.filter = filter
	if c.events != nil {
		c.subMu.Unlock()
		return
	}
	ch := s.bus.SubscribeAll(0)
	c.events = ch
	c.subMu.Unlock()

	go func() {
		for ev := range ch {
			c.subMu.Lock()
			f := c.filter
			c.subMu.Unlock()
			if f != nil && !f[ev.EventType()] {
				continue
			}

			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("remote: marshal event %s: %v", ev.EventType(), err)
				continue
			}
			c.send(Response{
				Type:    MsgEngineEvent,
				Success: true,
				Event: &EventEnvelope{
					EventType: ev.EventType(),
					TaskID:    ev.TaskID(),
					Timestamp: ev.When(),
					Payload:   payload,
				},
			})
		}
	}()
}

// stopForwarding detaches the bus subscription; the forwarder goroutine exits
// when its channel closes.
func (s *Server) stopForwarding(c *conn) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.events != nil {
		s.bus.Unsubscribe(c.events)
		c.events = nil
	}
}
