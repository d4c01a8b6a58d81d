package exchanges

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bitvavo/go-bitvavo-api"
	"github.com/rs/zerolog"
)

// BitvavoExchange serves klines from the Bitvavo REST API
type BitvavoExchange struct {
	client  *bitvavo.Bitvavo
	logger  zerolog.Logger
	name    string
	testnet bool
}

// NewBitvavo creates a new Bitvavo exchange instance
func NewBitvavo(apiKey, secret string, testnet bool, logger zerolog.Logger) *BitvavoExchange {
	client := &bitvavo.Bitvavo{
		ApiKey:       apiKey,
		ApiSecret:    secret,
		RestUrl:      "https://api.bitvavo.com/v2",
		WsUrl:        "wss://ws.bitvavo.com/v2/",
		AccessWindow: 10000,
	}

	return &BitvavoExchange{
		client:  client,
		logger:  logger.With().Str("exchange", "bitvavo").Logger(),
		name:    "bitvavo",
		testnet: testnet,
	}
}

// GetName returns the exchange name
func (b *BitvavoExchange) GetName() string {
	return b.name
}

// GetKlines fetches candles for a market such as BTC-EUR. Bitvavo uses the
// same interval names as Intervals, except weekly bars which it does not
// serve.
func (b *BitvavoExchange) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*Kline, error) {
	if !ValidInterval(interval) || interval == "1w" {
		return nil, fmt.Errorf("unsupported interval: %s", interval)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candles, err := b.client.Candles(symbol, interval, map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get candles: %w", err)
	}

	b.logger.Debug().
		Str("market", symbol).
		Str("interval", interval).
		Int("result_count", len(candles)).
		Msg("Received candles from Bitvavo API")

	klines := make([]*Kline, 0, len(candles))
	for _, c := range candles {
		kline, err := parseKline(symbol, interval, time.UnixMilli(int64(c.Timestamp)),
			c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return nil, err
		}
		klines = append(klines, kline)
	}

	sortKlines(klines)
	return klines, nil
}
