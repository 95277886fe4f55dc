package market

import "errors"

// ErrPairNotFound is returned for pairs without an order book.
var ErrPairNotFound = errors.New("trading pair not found")

// Store exposes read-only market snapshots for HTTP handlers and the assistant.
type Store interface {
	Pairs() []TradingPair
	OrderBook(pair string) (OrderBook, error)
	RecentTrades() []Trade
	OpenOrders() []Order
	Positions() []Position
	Portfolio() Portfolio
	Performance() []PerformancePoint
	QuickActions() []QuickAction
	FindQuickAction(action string) (QuickAction, bool)
}

// MemoryStore implements Store over a fixed Snapshot.
type MemoryStore struct {
	data Snapshot
}

// NewMemoryStore returns a MemoryStore serving the supplied snapshot.
func NewMemoryStore(data Snapshot) *MemoryStore {
	return &MemoryStore{data: data}
}

func (s *MemoryStore) Pairs() []TradingPair {
	return append([]TradingPair(nil), s.data.Pairs...)
}

// OrderBook returns the book for pair. Asks are ordered from the highest price down.
func (s *MemoryStore) OrderBook(pair string) (OrderBook, error) {
	book, ok := s.data.OrderBooks[pair]
	if !ok {
		return OrderBook{}, ErrPairNotFound
	}
	return OrderBook{
		Pair: book.Pair,
		Asks: append([]OrderBookEntry(nil), book.Asks...),
		Bids: append([]OrderBookEntry(nil), book.Bids...),
	}, nil
}

func (s *MemoryStore) RecentTrades() []Trade {
	return append([]Trade(nil), s.data.Trades...)
}

func (s *MemoryStore) OpenOrders() []Order {
	return append([]Order(nil), s.data.OpenOrders...)
}

func (s *MemoryStore) Positions() []Position {
	return append([]Position(nil), s.data.Positions...)
}

func (s *MemoryStore) Portfolio() Portfolio {
	p := s.data.Portfolio
	p.Assets = append([]Asset(nil), p.Assets...)
	return p
}

func (s *MemoryStore) Performance() []PerformancePoint {
	return append([]PerformancePoint(nil), s.data.Performance...)
}

func (s *MemoryStore) QuickActions() []QuickAction {
	return append([]QuickAction(nil), s.data.QuickActions...)
}

// FindQuickAction looks up a quick action by its action key.
func (s *MemoryStore) FindQuickAction(action string) (QuickAction, bool) {
	for _, item := range s.data.QuickActions {
		if item.Action == action {
			return item, true
		}
	}
	return QuickAction{}, false
}
