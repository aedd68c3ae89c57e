package exchange

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/betbot/copycat/internal/domain"
)

// MockAdapter is a mock exchange adapter for testing
type MockAdapter struct {
	mu sync.RWMutex

	// Response data
	Trades      map[string][]domain.SourceTrade // keyed by wallet
	Prices      map[string]decimal.Decimal      // keyed by asset
	Orders      map[string]*OrderStatus         // keyed by order id
	NextOrderID string
	NextState   OrderState

	// Call tracking
	Calls        map[string]int
	PlacedLimit  []domain.CopyOrderRequest
	PlacedMarket []domain.CopyOrderRequest
	Cancelled    []string

	// Error injection
	ErrorOnNext map[string]error
}

// NewMockAdapter creates a new mock adapter
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Trades:      make(map[string][]domain.SourceTrade),
		Prices:      make(map[string]decimal.Decimal),
		Orders:      make(map[string]*OrderStatus),
		NextOrderID: "order-1",
		NextState:   OrderStatePending,
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockAdapter) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockAdapter) FetchTradeHistory(ctx context.Context, wallet string, limit int) ([]domain.SourceTrade, error) {
	if err := m.trackCall("FetchTradeHistory"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	trades := m.Trades[wallet]
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (m *MockAdapter) CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := m.trackCall("CurrentPrice"); err != nil {
		return decimal.Zero, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.Prices[asset]; ok {
		return p, nil
	}
	return decimal.NewFromFloat(0.5), nil
}

func (m *MockAdapter) PlaceLimitOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error) {
	if err := m.trackCall("PlaceLimitOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlacedLimit = append(m.PlacedLimit, req)
	h := &OrderHandle{OrderID: m.NextOrderID, State: m.NextState}
	m.Orders[h.OrderID] = &OrderStatus{OrderID: h.OrderID, State: h.State}
	return h, nil
}

func (m *MockAdapter) PlaceMarketOrder(ctx context.Context, req domain.CopyOrderRequest) (*OrderHandle, error) {
	if err := m.trackCall("PlaceMarketOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlacedMarket = append(m.PlacedMarket, req)
	h := &OrderHandle{OrderID: m.NextOrderID + "-mkt", State: OrderStateFilled}
	m.Orders[h.OrderID] = &OrderStatus{OrderID: h.OrderID, State: h.State}
	return h, nil
}

func (m *MockAdapter) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	if err := m.trackCall("GetOrderStatus"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.Orders[orderID]; ok {
		return st, nil
	}
	return nil, ErrNotFound
}

func (m *MockAdapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := m.trackCall("CancelOrder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	st, ok := m.Orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if st.State == OrderStatePending {
		st.State = OrderStateCancelled
	}
	return nil
}

// SetOrderState flips an order into the given state (e.g. simulate a fill).
func (m *MockAdapter) SetOrderState(orderID string, state OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.Orders[orderID]; ok {
		st.State = state
	} else {
		m.Orders[orderID] = &OrderStatus{OrderID: orderID, State: state}
	}
}
