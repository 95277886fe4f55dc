package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
	"github.com/zhouzirui/crypto-canvas/backend/pkg/utils"
)

const (
	defaultHeartbeat = 15 * time.Second
	eventBuffer      = 32
)

// Handler pushes session render events to browsers via Server-Sent Events
type Handler struct {
	assistantSvc *assistant.Service
	heartbeat    time.Duration
}

// New creates a new stream handler. A non-positive heartbeat uses the default interval.
func New(assistantSvc *assistant.Service, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		assistantSvc: assistantSvc,
		heartbeat:    heartbeat,
	}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

// StreamResponse represents one pushed event
type StreamResponse struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionId,omitempty"`
	Snapshot  *chat.Snapshot `json:"snapshot,omitempty"`
	Error     string         `json:"error,omitempty"`
	Time      string         `json:"time,omitempty"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.assistantSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan assistant.Event, eventBuffer)
	initial, unsubscribe := session.SubscribeWithSnapshot(func(evt assistant.Event) {
		select {
		case events <- evt:
		default:
			log.Printf("[sse] dropping event for slow client session=%s", sessionID)
		}
	})
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	ctx := r.Context()
	log.Printf("[sse] opening event stream for session=%s", sessionID)

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     string(assistant.EventSnapshot),
		SessionID: sessionID,
		Snapshot:  &initial,
	})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing event stream for session=%s", sessionID)
			return
		case evt := <-events:
			utils.SendSSEChunk(w, flusher, toResponse(sessionID, evt))
		case t := <-ticker.C:
			if _, err := h.assistantSvc.GetSession(ctx, sessionID); err != nil {
				utils.SendSSEChunk(w, flusher, StreamResponse{
					Event:     "closed",
					SessionID: sessionID,
				})
				return
			}
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event: "heartbeat",
				Time:  t.UTC().Format(time.RFC3339),
			})
		}
	}
}

func toResponse(sessionID string, evt assistant.Event) StreamResponse {
	snapshot := evt.Snapshot
	resp := StreamResponse{
		Event:     string(evt.Type),
		SessionID: sessionID,
		Snapshot:  &snapshot,
	}
	if evt.Err != nil {
		resp.Error = evt.Err.Error()
	}
	return resp
}
