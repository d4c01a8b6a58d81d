package exchanges

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Kline represents a candlestick/kline data point
type Kline struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Interval  string    `json:"interval,omitempty"`
}

// MarketData is the read-only market data surface used to bind script series.
// Klines are returned oldest first.
type MarketData interface {
	GetName() string
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*Kline, error)
}

// Intervals lists the supported kline intervals
var Intervals = []string{"1m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "12h", "1d", "1w"}

// ValidInterval reports whether interval is one of Intervals
func ValidInterval(interval string) bool {
	for _, i := range Intervals {
		if i == interval {
			return true
		}
	}
	return false
}

// parseKline builds a kline from the decimal strings exchanges return.
// Malformed prices are an error rather than a zero bar.
func parseKline(symbol, interval string, ts time.Time, open, high, low, closePrice, volume string) (*Kline, error) {
	fields := [...]struct {
		name  string
		value string
	}{
		{"open", open},
		{"high", high},
		{"low", low},
		{"close", closePrice},
		{"volume", volume},
	}

	var parsed [len(fields)]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f.value, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline %s %q at %s: %w", f.name, f.value, ts.Format(time.RFC3339), err)
		}
		parsed[i] = v
	}

	return &Kline{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      parsed[0],
		High:      parsed[1],
		Low:       parsed[2],
		Close:     parsed[3],
		Volume:    parsed[4],
		Interval:  interval,
	}, nil
}
