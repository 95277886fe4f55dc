package chat

import "time"

// State 表示会话所处的交互阶段。
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
)

// Snapshot is the render view of a session at one point in time.
type Snapshot struct {
	SessionID  string    `json:"sessionId"`
	State      State     `json:"state"`
	Pending    bool      `json:"pending"`
	Draft      string    `json:"draft"`
	Queued     int       `json:"queued"`
	Transcript []Message `json:"transcript"`
}

// Summary is the list view of a session.
type Summary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
	State        State     `json:"state"`
}
