package exchanges

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/rs/zerolog"
)

// BybitExchange serves spot klines from the Bybit V5 REST API
type BybitExchange struct {
	client  *bybit.Client
	logger  zerolog.Logger
	name    string
	testnet bool
}

// NewBybit creates a new Bybit exchange instance. Market data does not
// require credentials, so apiKey and secret may be empty.
func NewBybit(apiKey, secret string, testnet bool, logger zerolog.Logger) *BybitExchange {
	client := bybit.NewClient()
	if apiKey != "" {
		client = client.WithAuth(apiKey, secret)
	}
	if testnet {
		client = client.WithBaseURL("https://api-testnet.bybit.com")
	}

	return &BybitExchange{
		client:  client,
		logger:  logger.With().Str("exchange", "bybit").Logger(),
		name:    "bybit",
		testnet: testnet,
	}
}

// GetName returns the exchange name
func (b *BybitExchange) GetName() string {
	return b.name
}

// mapInterval maps common intervals to Bybit V5 format
func (b *BybitExchange) mapInterval(interval string) string {
	intervalMap := map[string]string{
		"1m":  "1",
		"5m":  "5",
		"15m": "15",
		"30m": "30",
		"1h":  "60",
		"2h":  "120",
		"4h":  "240",
		"6h":  "360",
		"12h": "720",
		"1d":  "D",
		"1w":  "W",
	}

	return intervalMap[interval]
}

// GetKlines fetches spot klines. Bybit returns the newest bar first; the
// result is reordered oldest first.
func (b *BybitExchange) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*Kline, error) {
	bybitInterval := b.mapInterval(interval)
	if bybitInterval == "" {
		return nil, fmt.Errorf("unsupported interval: %s", interval)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	param := bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(symbol),
		Interval: bybit.Interval(bybitInterval),
		Limit:    &limit,
	}

	resp, err := b.client.V5().Market().GetKline(param)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	b.logger.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("result_count", len(resp.Result.List)).
		Msg("Received spot klines from Bybit API")

	klines := make([]*Kline, 0, len(resp.Result.List))
	for _, item := range resp.Result.List {
		startTime, err := strconv.ParseInt(item.StartTime, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline start time %q: %w", item.StartTime, err)
		}

		kline, err := parseKline(symbol, interval, time.UnixMilli(startTime),
			item.Open, item.High, item.Low, item.Close, item.Volume)
		if err != nil {
			return nil, err
		}
		klines = append(klines, kline)
	}

	sortKlines(klines)
	return klines, nil
}

func sortKlines(klines []*Kline) {
	sort.Slice(klines, func(i, j int) bool {
		return klines[i].Timestamp.Before(klines[j].Timestamp)
	})
}
