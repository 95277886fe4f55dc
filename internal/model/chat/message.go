package chat

import "time"

// Role 标识消息的发送方，创建后不可变。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind 区分普通回复与错误提示。
type Kind string

const (
	KindText  Kind = "text"
	KindError Kind = "error"
)

// ActionIntent describes a structured trading directive attached to a message.
// Nothing populates it yet; it is carried so the wire format stays stable.
type ActionIntent struct {
	Kind     string  `json:"kind"` // buy | sell
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Message is one entry of a session transcript.
type Message struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"sessionId"`
	Role         Role          `json:"role"`
	Kind         Kind          `json:"kind"`
	Body         string        `json:"body"`
	CreatedAt    time.Time     `json:"createdAt"`
	ActionIntent *ActionIntent `json:"actionIntent,omitempty"`
}

// IsError reports whether the message carries a responder failure notice.
func (m Message) IsError() bool {
	return m.Kind == KindError
}
