package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	eventBuffer  = 32
)

// WebSocketHandler 助手会话的WebSocket处理器
type WebSocketHandler struct {
	assistantSvc *assistant.Service
	market       market.Store
	upgrader     websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(assistantSvc *assistant.Service, store market.Store) *WebSocketHandler {
	return &WebSocketHandler{
		assistantSvc: assistantSvc,
		market:       store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage carries submit and draft text.
type TextMessage struct {
	Text string `json:"text"`
}

// QuickActionMessage selects a quick action by key or label.
type QuickActionMessage struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.assistantSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	events := make(chan assistant.Event, eventBuffer)
	initial, unsubscribe := session.SubscribeWithSnapshot(func(evt assistant.Event) {
		select {
		case events <- evt:
		default:
			log.Printf("[websocket] dropping event for slow client session=%s", sessionID)
		}
	})
	defer unsubscribe()

	go h.pingLoop(ctx, conn)
	go h.forwardEvents(ctx, conn, sessionID, events)

	h.send(conn, "connected", sessionID, initial)

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		raw.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, sessionID, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, session, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, session *assistant.Session, msg *inboundMessage) {
	var err error
	switch msg.Type {
	case "submit":
		var payload TextMessage
		if err = decodeData(msg.Data, &payload); err == nil {
			_, err = session.Submit(ctx, payload.Text)
		}
	case "quick_action":
		var payload QuickActionMessage
		if err = decodeData(msg.Data, &payload); err == nil {
			err = h.quickAction(ctx, session, payload)
		}
	case "draft":
		var payload TextMessage
		if err = decodeData(msg.Data, &payload); err == nil {
			err = session.SetDraft(payload.Text)
		}
	case "cancel":
		err = session.Cancel()
	default:
		h.sendError(conn, session.ID(), "unsupported message type: "+msg.Type)
		return
	}

	if err != nil {
		h.sendError(conn, session.ID(), err.Error())
	}
}

func (h *WebSocketHandler) quickAction(ctx context.Context, session *assistant.Session, payload QuickActionMessage) error {
	label := payload.Label
	if action := strings.TrimSpace(payload.Action); action != "" {
		quick, ok := h.market.FindQuickAction(action)
		if !ok {
			return errors.New("unknown quick action")
		}
		label = quick.Label
	}
	_, err := session.QuickAction(ctx, label)
	return err
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid payload")
	}
	return nil
}

// forwardEvents 将会话渲染事件推送给客户端
func (h *WebSocketHandler) forwardEvents(ctx context.Context, conn *wsConn, sessionID string, events <-chan assistant.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if evt.Type == assistant.EventError && evt.Err != nil {
				h.send(conn, string(evt.Type), sessionID, map[string]any{
					"message":  evt.Err.Error(),
					"snapshot": evt.Snapshot,
				})
				continue
			}
			h.send(conn, string(evt.Type), sessionID, evt.Snapshot)
		}
	}
}

func (h *WebSocketHandler) send(conn *wsConn, msgType, sessionID string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msgType, err)
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, sessionID, message string) {
	h.send(conn, "error", sessionID, map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
