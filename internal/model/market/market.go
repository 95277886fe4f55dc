package market

import "math"

// TradingPair is a quoted market shown in the pair selector.
type TradingPair struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// OrderBookEntry is one price level of the book.
type OrderBookEntry struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Total  float64 `json:"total"`
}

// OrderBook groups ask and bid levels for a pair.
type OrderBook struct {
	Pair string           `json:"pair"`
	Asks []OrderBookEntry `json:"asks"`
	Bids []OrderBookEntry `json:"bids"`
}

// Trade is a recently filled trade.
type Trade struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Time   string  `json:"time"`
	Side   string  `json:"type"`
}

// Order is an open order of the account.
type Order struct {
	ID     string  `json:"id"`
	Pair   string  `json:"pair"`
	Side   string  `json:"type"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
	Status string  `json:"status"`
}

// Position is a held asset with unrealised PnL.
type Position struct {
	Symbol     string  `json:"symbol"`
	Amount     float64 `json:"amount"`
	Value      float64 `json:"value"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnlPercent"`
}

// Asset is a portfolio holding.
type Asset struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Value      float64 `json:"value"`
	Price      float64 `json:"price"`
	Change24h  float64 `json:"change24h"`
	Allocation float64 `json:"allocation"`
}

// Portfolio summarises the account.
type Portfolio struct {
	TotalValue       float64 `json:"totalValue"`
	AvailableBalance float64 `json:"availableBalance"`
	TodayPnL         float64 `json:"todayPnL"`
	TodayPnLPercent  float64 `json:"todayPnLPercent"`
	Assets           []Asset `json:"assets"`
}

// PerformancePoint is one sample of the portfolio value series.
type PerformancePoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// QuickAction is a predefined phrase the assistant view can inject.
type QuickAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

func level(price, amount float64) OrderBookEntry {
	return OrderBookEntry{Price: price, Amount: amount, Total: math.Round(price * amount)}
}

// Estimate returns the order value shown beside the trading form.
func Estimate(amount, price float64) float64 {
	if amount <= 0 || price <= 0 {
		return 0
	}
	return amount * price
}
