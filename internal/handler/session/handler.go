package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
	"github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
	"github.com/zhouzirui/crypto-canvas/backend/pkg/utils"
)

// Handler 助手会话的HTTP处理器
type Handler struct {
	assistantSvc *assistant.Service
	market       market.Store
}

// New 创建会话处理器
func New(assistantSvc *assistant.Service, store market.Store) *Handler {
	return &Handler{
		assistantSvc: assistantSvc,
		market:       store,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleCloseSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmit)
	r.Post("/sessions/{sessionID}/quick-actions", h.handleQuickAction)
	r.Put("/sessions/{sessionID}/draft", h.handleDraft)
	r.Post("/sessions/{sessionID}/cancel", h.handleCancel)
}

type submitResponse struct {
	Message  chat.Message  `json:"message"`
	Snapshot chat.Snapshot `json:"snapshot"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.assistantSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.assistantSvc.ListSessions(r.Context()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.assistantSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit 提交用户消息
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.ErrInvalidBody.Error())
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	message, err := session.Submit(r.Context(), payload.Text)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, submitResponse{Message: message, Snapshot: session.Snapshot()})
}

// handleQuickAction 通过快捷操作提交预设短语，可传 action 键或 label 文本
func (h *Handler) handleQuickAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
		Label  string `json:"label"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.ErrInvalidBody.Error())
		return
	}

	label := payload.Label
	if action := strings.TrimSpace(payload.Action); action != "" {
		quick, ok := h.market.FindQuickAction(action)
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, "unknown quick action")
			return
		}
		label = quick.Label
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	message, err := session.QuickAction(r.Context(), label)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, submitResponse{Message: message, Snapshot: session.Snapshot()})
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, utils.ErrInvalidBody.Error())
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := session.SetDraft(payload.Text); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := session.Cancel(); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*assistant.Session, bool) {
	session, err := h.assistantSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return nil, false
	}
	return session, true
}

// StatusFor maps assistant errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
