package engine

import (
	"context"
	"fmt"

	"github.com/arijanluiken/tradescript/internal/interpreter"
	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

// BarCache stores bars fetched from an exchange so later runs can work
// offline. *database.DB implements it.
type BarCache interface {
	GetKlines(exchange, symbol, interval string, limit int) ([]*exchanges.Kline, error)
	SaveKlines(exchange, symbol, interval string, klines []*exchanges.Kline) error
}

// loadBars resolves the bars for a request: inline bars first, then the
// exchange feed, then the bar cache. A request without bars or symbol runs
// against empty series.
func (e *Engine) loadBars(ctx context.Context, req *Request) ([]*exchanges.Kline, error) {
	if len(req.Bars) > 0 {
		return req.Bars, nil
	}
	if req.Symbol == "" {
		return nil, nil
	}

	interval := req.Interval
	if interval == "" {
		interval = e.feedConfig.DefaultInterval
	}
	if !exchanges.ValidInterval(interval) {
		return nil, fmt.Errorf("unsupported interval: %s", interval)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.feedConfig.DefaultLimit
	}

	exchange := req.Exchange
	if exchange == "" && e.feed != nil {
		exchange = e.feed.GetName()
	}

	var feedErr error
	if e.feed != nil && exchange == e.feed.GetName() {
		klines, err := e.feed.GetKlines(ctx, req.Symbol, interval, limit)
		if err == nil && len(klines) > 0 {
			if e.cache != nil {
				if err := e.cache.SaveKlines(exchange, req.Symbol, interval, klines); err != nil {
					e.logger.Warn().Err(err).Str("symbol", req.Symbol).Msg("Failed to cache klines")
				}
			}
			return klines, nil
		}
		feedErr = err
		e.logger.Warn().Err(err).
			Str("exchange", exchange).
			Str("symbol", req.Symbol).
			Str("interval", interval).
			Msg("Feed unavailable, falling back to bar cache")
	}

	if e.cache != nil {
		klines, err := e.cache.GetKlines(exchange, req.Symbol, interval, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to read bar cache: %w", err)
		}
		if len(klines) > 0 {
			return klines, nil
		}
	}

	if feedErr != nil {
		return nil, fmt.Errorf("no bars for %s %s: %w", req.Symbol, interval, feedErr)
	}
	return nil, fmt.Errorf("no bars for %s %s on %s", req.Symbol, interval, exchange)
}

// bindBars defines the price series, oldest bar first so that offset 0 is
// the newest bar
func bindBars(in *interpreter.Interpreter, bars []*exchanges.Kline) {
	n := len(bars)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	hl2 := make([]float64, n)
	hlc3 := make([]float64, n)
	ohlc4 := make([]float64, n)
	times := make([]float64, n)

	for i, b := range bars {
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
		volume[i] = b.Volume
		hl2[i] = (b.High + b.Low) / 2
		hlc3[i] = (b.High + b.Low + b.Close) / 3
		ohlc4[i] = (b.Open + b.High + b.Low + b.Close) / 4
		times[i] = float64(b.Timestamp.UnixMilli())
	}

	in.Define("open", interpreter.NewSeries(open))
	in.Define("high", interpreter.NewSeries(high))
	in.Define("low", interpreter.NewSeries(low))
	in.Define("close", interpreter.NewSeries(closes))
	in.Define("volume", interpreter.NewSeries(volume))
	in.Define("hl2", interpreter.NewSeries(hl2))
	in.Define("hlc3", interpreter.NewSeries(hlc3))
	in.Define("ohlc4", interpreter.NewSeries(ohlc4))
	in.Define("time", interpreter.NewSeries(times))
	in.Define("bar_count", interpreter.Number(n))
}
