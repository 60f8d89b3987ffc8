package remote

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/aristath/autopilot/internal/engine"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/tracker"
)

type fakeEngine struct {
	mu    sync.Mutex
	state engine.EngineState
	tasks []tracker.Task
	calls []string
}

func (f *fakeEngine) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeEngine) called(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == op {
			return true
		}
	}
	return false
}

func (f *fakeEngine) State() engine.EngineState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeEngine) Tasks(context.Context) ([]tracker.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks, nil
}

func (f *fakeEngine) Pause() error                 { f.record("pause"); return nil }
func (f *fakeEngine) Resume() error                { f.record("resume"); return nil }
func (f *fakeEngine) Interrupt() error             { f.record("interrupt"); return nil }
func (f *fakeEngine) Continue(context.Context) error { f.record("continue"); return nil }
func (f *fakeEngine) AddIterations(n int) error {
	f.record("add")
	if n <= 0 {
		return engine.ErrInvalidBound
	}
	return nil
}
func (f *fakeEngine) RemoveIterations(int) error { f.record("remove"); return nil }

// dialTestServer mounts the control handler on an httptest server and dials
// it. The returned conn is not yet authenticated.
func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	hs := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		s.handleConn(context.Background(), ws)
	}))
	t.Cleanup(hs.Close)

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, err := websocket.Dial(url, "", hs.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendRecv(t *testing.T, ws *websocket.Conn, req Request) Response {
	t.Helper()
	if err := websocket.JSON.Send(ws, req); err != nil {
		t.Fatalf("send %s: %v", req.Type, err)
	}
	var resp Response
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := websocket.JSON.Receive(ws, &resp); err != nil {
		t.Fatalf("receive for %s: %v", req.Type, err)
	}
	return resp
}

func authenticate(t *testing.T, ws *websocket.Conn, token string) {
	t.Helper()
	resp := sendRecv(t, ws, Request{ID: "auth-1", Type: MsgAuth, Token: token})
	if !resp.Success {
		t.Fatalf("auth rejected: %s", resp.Error)
	}
}

// TestServer_RejectsWrongToken verifies the connection is refused and closed
// on a bad token.
func TestServer_RejectsWrongToken(t *testing.T) {
	s := NewServer("", "secret", &fakeEngine{}, events.NewEventBus())
	ws := dialTestServer(t, s)

	resp := sendRecv(t, ws, Request{ID: "auth-1", Type: MsgAuth, Token: "wrong"})
	if resp.Success {
		t.Fatal("wrong token accepted")
	}

	// Server closes the socket after a failed auth
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var next Response
	if err := websocket.JSON.Receive(ws, &next); err == nil {
		t.Error("connection stayed open after auth failure")
	}
}

// TestServer_RequiresAuthFirst verifies non-auth requests before auth are
// refused.
func TestServer_RequiresAuthFirst(t *testing.T) {
	s := NewServer("", "secret", &fakeEngine{}, events.NewEventBus())
	ws := dialTestServer(t, s)

	resp := sendRecv(t, ws, Request{ID: "r1", Type: MsgGetState})
	if resp.Success {
		t.Error("unauthenticated get_state succeeded")
	}
}

// TestServer_EmptyTokenDisablesAccess verifies a server with no token rejects
// every client, even one sending an empty token.
func TestServer_EmptyTokenDisablesAccess(t *testing.T) {
	s := NewServer("", "", &fakeEngine{}, events.NewEventBus())
	ws := dialTestServer(t, s)

	resp := sendRecv(t, ws, Request{ID: "auth-1", Type: MsgAuth, Token: ""})
	if resp.Success {
		t.Error("tokenless server accepted a client")
	}
}

// TestServer_GetState verifies state requests return a correlated
// state_response.
func TestServer_GetState(t *testing.T) {
	eng := &fakeEngine{state: engine.EngineState{
		Status:           engine.StatusPaused,
		CurrentIteration: 4,
		RunID:            "run-9",
	}}
	s := NewServer("", "secret", eng, events.NewEventBus())
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	resp := sendRecv(t, ws, Request{ID: "r1", Type: MsgGetState})
	if resp.ID != "r1" || resp.Type != MsgStateResponse || !resp.Success {
		t.Fatalf("bad response envelope: %+v", resp)
	}
	if resp.State == nil || resp.State.RunID != "run-9" || resp.State.Status != engine.StatusPaused {
		t.Errorf("state payload mismatch: %+v", resp.State)
	}
}

// TestServer_GetTasks verifies task listing over the wire.
func TestServer_GetTasks(t *testing.T) {
	eng := &fakeEngine{tasks: []tracker.Task{
		{ID: "t1", Title: "one", Status: tracker.StatusOpen},
		{ID: "t2", Title: "two", Status: tracker.StatusCompleted},
	}}
	s := NewServer("", "secret", eng, events.NewEventBus())
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	resp := sendRecv(t, ws, Request{ID: "r1", Type: MsgGetTasks})
	if resp.Type != MsgTasksResponse || len(resp.Tasks) != 2 {
		t.Fatalf("bad tasks response: %+v", resp)
	}
	if resp.Tasks[0].ID != "t1" || resp.Tasks[1].Status != tracker.StatusCompleted {
		t.Errorf("task payload mismatch: %+v", resp.Tasks)
	}
}

// TestServer_ControlOperations verifies each control request reaches the
// engine and answers with one operation_result.
func TestServer_ControlOperations(t *testing.T) {
	eng := &fakeEngine{}
	s := NewServer("", "secret", eng, events.NewEventBus())
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	ops := []struct {
		req  Request
		call string
	}{
		{Request{ID: "p", Type: MsgPause}, "pause"},
		{Request{ID: "r", Type: MsgResume}, "resume"},
		{Request{ID: "i", Type: MsgInterrupt}, "interrupt"},
		{Request{ID: "c", Type: MsgContinue}, "continue"},
		{Request{ID: "a", Type: MsgAddIterations, Count: 2}, "add"},
		{Request{ID: "d", Type: MsgRemoveIterations, Count: 1}, "remove"},
	}
	for _, op := range ops {
		resp := sendRecv(t, ws, op.req)
		if resp.ID != op.req.ID || resp.Type != MsgOperationResult || !resp.Success {
			t.Errorf("%s: bad result %+v", op.req.Type, resp)
		}
		if !eng.called(op.call) {
			t.Errorf("%s: engine never called", op.req.Type)
		}
	}
}

// TestServer_OperationErrorsSurface verifies engine errors come back as
// failed operation_results.
func TestServer_OperationErrorsSurface(t *testing.T) {
	s := NewServer("", "secret", &fakeEngine{}, events.NewEventBus())
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	resp := sendRecv(t, ws, Request{ID: "a", Type: MsgAddIterations, Count: 0})
	if resp.Success {
		t.Fatal("invalid count reported success")
	}
	if resp.Error == "" {
		t.Error("failed result carries no error text")
	}
}

// TestServer_UnknownRequest verifies the fallthrough error result.
func TestServer_UnknownRequest(t *testing.T) {
	s := NewServer("", "secret", &fakeEngine{}, events.NewEventBus())
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	resp := sendRecv(t, ws, Request{ID: "x", Type: "teleport"})
	if resp.Success {
		t.Error("unknown request type reported success")
	}
}

// TestServer_SubscribeStreamsEvents verifies subscribe delivers bus events as
// engine_event pushes with the type filter applied.
func TestServer_SubscribeStreamsEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	s := NewServer("", "secret", &fakeEngine{}, bus)
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	resp := sendRecv(t, ws, Request{
		ID:         "sub",
		Type:       MsgSubscribe,
		EventTypes: []string{events.EventTypeTaskCompleted},
	})
	if !resp.Success {
		t.Fatalf("subscribe failed: %s", resp.Error)
	}

	// The filtered-out event must not arrive; the matching one must
	bus.Publish(events.TopicTask, events.TaskSelectedEvent{ID: "t1", Timestamp: time.Now()})
	bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: "t1", Timestamp: time.Now()})

	var push Response
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := websocket.JSON.Receive(ws, &push); err != nil {
		t.Fatalf("waiting for event push: %v", err)
	}
	if push.Type != MsgEngineEvent || push.Event == nil {
		t.Fatalf("expected engine_event, got %+v", push)
	}
	if push.Event.EventType != events.EventTypeTaskCompleted {
		t.Errorf("filter leaked event type %s", push.Event.EventType)
	}
	if push.Event.TaskID != "t1" {
		t.Errorf("event task id = %q", push.Event.TaskID)
	}
}

// TestServer_Unsubscribe verifies events stop after unsubscribe.
func TestServer_Unsubscribe(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	s := NewServer("", "secret", &fakeEngine{}, bus)
	ws := dialTestServer(t, s)
	authenticate(t, ws, "secret")

	if resp := sendRecv(t, ws, Request{ID: "sub", Type: MsgSubscribe}); !resp.Success {
		t.Fatalf("subscribe failed: %s", resp.Error)
	}
	if resp := sendRecv(t, ws, Request{ID: "unsub", Type: MsgUnsubscribe}); !resp.Success {
		t.Fatalf("unsubscribe failed: %s", resp.Error)
	}

	bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: "t1", Timestamp: time.Now()})

	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var push Response
	if err := websocket.JSON.Receive(ws, &push); err == nil {
		t.Errorf("received event after unsubscribe: %+v", push)
	}
}
