package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/crypto-canvas/backend/internal/handler/market"
	"github.com/zhouzirui/crypto-canvas/backend/internal/handler/realtime"
	"github.com/zhouzirui/crypto-canvas/backend/internal/handler/session"
	"github.com/zhouzirui/crypto-canvas/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/crypto-canvas/backend/internal/middleware"
	marketModel "github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
	"github.com/zhouzirui/crypto-canvas/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(store marketModel.Store, assistantSvc *assistant.Service, heartbeat time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": len(assistantSvc.ListSessions(r.Context())),
		})
	})

	marketHandler := market.New(store)
	sessionHandler := session.New(assistantSvc, store)
	streamHandler := stream.New(assistantSvc, heartbeat)
	wsHandler := realtime.NewWebSocketHandler(assistantSvc, store)

	r.Route("/api", func(api chi.Router) {
		marketHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)

		// Render events for the assistant view
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
