package remote

import (
	"encoding/json"
	"time"

	"github.com/aristath/autopilot/internal/engine"
	"github.com/aristath/autopilot/internal/tracker"
)

// MessageType discriminates protocol messages in both directions.
type MessageType string

// Client -> server requests.
const (
	MsgAuth             MessageType = "auth"
	MsgGetState         MessageType = "get_state"
	MsgGetTasks         MessageType = "get_tasks"
	MsgPause            MessageType = "pause"
	MsgResume           MessageType = "resume"
	MsgInterrupt        MessageType = "interrupt"
	MsgRefreshTasks     MessageType = "refresh_tasks"
	MsgAddIterations    MessageType = "add_iterations"
	MsgRemoveIterations MessageType = "remove_iterations"
	MsgContinue         MessageType = "continue"
	MsgSubscribe        MessageType = "subscribe"
	MsgUnsubscribe      MessageType = "unsubscribe"
)

// Server -> client messages.
const (
	MsgStateResponse   MessageType = "state_response"
	MsgTasksResponse   MessageType = "tasks_response"
	MsgOperationResult MessageType = "operation_result"
	MsgEngineEvent     MessageType = "engine_event"
)

// Request is a client message. Every request carries a unique ID and receives
// exactly one correlated response.
type Request struct {
	ID    string      `json:"id"`
	Type  MessageType `json:"type"`
	Token string      `json:"token,omitempty"` // auth only

	// add_iterations / remove_iterations
	Count int `json:"count,omitempty"`

	// subscribe; empty means all event types
	EventTypes []string `json:"event_types,omitempty"`
}

// Response is a server message. ID correlates to the originating request and
// is empty for engine_event pushes.
type Response struct {
	ID      string      `json:"id,omitempty"`
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`

	State *engine.EngineState `json:"state,omitempty"`
	Tasks []tracker.Task      `json:"tasks,omitempty"`
	Event *EventEnvelope      `json:"event,omitempty"`
}

// EventEnvelope wraps one bus event for the wire.
type EventEnvelope struct {
	EventType string          `json:"event_type"`
	TaskID    string          `json:"task_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// okResult builds a successful operation_result for a request.
func okResult(id string) Response {
	return Response{ID: id, Type: MsgOperationResult, Success: true}
}

// errResult builds a failed operation_result for a request.
func errResult(id string, err error) Response {
	return Response{ID: id, Type: MsgOperationResult, Success: false, Error: err.Error()}
}
