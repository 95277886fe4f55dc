package market

// Snapshot bundles every static dataset the dashboard renders.
type Snapshot struct {
	Pairs        []TradingPair
	OrderBooks   map[string]OrderBook
	Trades       []Trade
	OpenOrders   []Order
	Positions    []Position
	Portfolio    Portfolio
	Performance  []PerformancePoint
	QuickActions []QuickAction
}

// Seed provides the sample market data shown by the dashboard.
func Seed() Snapshot {
	return Snapshot{
		Pairs: []TradingPair{
			{Symbol: "BTC/USDT", Price: 35000, Change: 2.1},
			{Symbol: "ETH/USDT", Price: 1300, Change: -0.8},
			{Symbol: "BNB/USDT", Price: 245, Change: 1.5},
		},
		OrderBooks: map[string]OrderBook{
			"BTC/USDT": {
				Pair: "BTC/USDT",
				Asks: []OrderBookEntry{
					level(35020, 0.5),
					level(35015, 0.8),
					level(35010, 1.2),
					level(35005, 0.3),
					level(35000, 2.1),
				},
				Bids: []OrderBookEntry{
					level(34995, 0.7),
					level(34990, 1.1),
					level(34985, 0.6),
					level(34980, 0.9),
					level(34975, 1.5),
				},
			},
		},
		Trades: []Trade{
			{Price: 35000, Amount: 0.02, Time: "14:32:15", Side: "buy"},
			{Price: 34998, Amount: 0.15, Time: "14:32:10", Side: "sell"},
			{Price: 35002, Amount: 0.08, Time: "14:32:05", Side: "buy"},
			{Price: 34999, Amount: 0.25, Time: "14:31:58", Side: "sell"},
			{Price: 35001, Amount: 0.12, Time: "14:31:45", Side: "buy"},
		},
		OpenOrders: []Order{
			{ID: "1", Pair: "BTC/USDT", Side: "buy", Amount: 0.1, Price: 34500, Status: "open"},
			{ID: "2", Pair: "ETH/USDT", Side: "sell", Amount: 2.0, Price: 1320, Status: "partial"},
		},
		Positions: []Position{
			{Symbol: "BTC", Amount: 0.25, Value: 8750, PnL: 125.50, PnLPercent: 1.45},
			{Symbol: "ETH", Amount: 2.5, Value: 3250, PnL: -45.20, PnLPercent: -1.37},
		},
		Portfolio: Portfolio{
			TotalValue:       12580.50,
			AvailableBalance: 580.50,
			TodayPnL:         245.80,
			TodayPnLPercent:  1.99,
			Assets: []Asset{
				{Symbol: "BTC", Name: "Bitcoin", Amount: 0.25, Value: 8750.00, Price: 35000.00, Change24h: 2.1, Allocation: 69.6},
				{Symbol: "ETH", Name: "Ethereum", Amount: 2.5, Value: 3250.00, Price: 1300.00, Change24h: -0.8, Allocation: 25.8},
				{Symbol: "USDT", Name: "Tether", Amount: 580.50, Value: 580.50, Price: 1.00, Change24h: 0, Allocation: 4.6},
			},
		},
		Performance: []PerformancePoint{
			{Date: "01/10", Value: 11200},
			{Date: "01/11", Value: 11650},
			{Date: "01/12", Value: 11420},
			{Date: "01/13", Value: 12100},
			{Date: "01/14", Value: 12580},
		},
		QuickActions: []QuickAction{
			{Label: "查询BTC价格", Action: "price_btc"},
			{Label: "买入ETH", Action: "buy_eth"},
			{Label: "查看市场趋势", Action: "market_trend"},
			{Label: "我的持仓", Action: "my_portfolio"},
		},
	}
}
