package market

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
	"github.com/zhouzirui/crypto-canvas/backend/pkg/utils"
)

// DefaultPair is served when the order book query names no pair.
const DefaultPair = "BTC/USDT"

// Handler 行情与账户快照的HTTP处理器
type Handler struct {
	store market.Store
}

// New 创建行情处理器
func New(store market.Store) *Handler {
	return &Handler{
		store: store,
	}
}

// RegisterRoutes 注册行情相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/quick-actions", h.handleQuickActions)
	r.Get("/market/pairs", h.handlePairs)
	r.Get("/market/orderbook", h.handleOrderBook)
	r.Get("/market/trades", h.handleTrades)
	r.Get("/market/estimate", h.handleEstimate)
	r.Get("/orders/open", h.handleOpenOrders)
	r.Get("/positions", h.handlePositions)
	r.Get("/portfolio", h.handlePortfolio)
	r.Get("/portfolio/performance", h.handlePerformance)
}

func (h *Handler) handleQuickActions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.QuickActions())
}

func (h *Handler) handlePairs(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Pairs())
}

// handleOrderBook 返回指定交易对的盘口
func (h *Handler) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	pair := strings.TrimSpace(r.URL.Query().Get("pair"))
	if pair == "" {
		pair = DefaultPair
	}

	book, err := h.store.OrderBook(pair)
	if err != nil {
		if errors.Is(err, market.ErrPairNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, book)
}

func (h *Handler) handleTrades(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.RecentTrades())
}

// handleEstimate 计算下单预估金额
func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	amount, err := parseQueryFloat(r, "amount")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	price, err := parseQueryFloat(r, "price")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid price")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]float64{
		"amount": amount,
		"price":  price,
		"total":  market.Estimate(amount, price),
	})
}

func (h *Handler) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.OpenOrders())
}

func (h *Handler) handlePositions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Positions())
}

func (h *Handler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Portfolio())
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Performance())
}

// parseQueryFloat treats a missing parameter as zero.
func parseQueryFloat(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
