package exchanges

import (
	"context"
	"fmt"
	"sync"
)

// Static serves fixed klines, for offline runs and tests
type Static struct {
	mu     sync.RWMutex
	klines map[string][]*Kline
	calls  int
}

// NewStatic creates an empty static feed
func NewStatic() *Static {
	return &Static{klines: make(map[string][]*Kline)}
}

func staticKey(symbol, interval string) string {
	return symbol + "|" + interval
}

// Set stores klines for a symbol and interval, oldest first
func (s *Static) Set(symbol, interval string, klines []*Kline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.klines[staticKey(symbol, interval)] = klines
}

// GetName returns the feed name
func (s *Static) GetName() string {
	return "static"
}

// Calls reports how many GetKlines calls were served
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// GetKlines returns the newest limit klines stored for symbol and interval
func (s *Static) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	klines, ok := s.klines[staticKey(symbol, interval)]
	if !ok {
		return nil, fmt.Errorf("no klines for %s %s", symbol, interval)
	}
	if limit > 0 && len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}

	out := make([]*Kline, len(klines))
	copy(out, klines)
	return out, nil
}
