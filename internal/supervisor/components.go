package supervisor

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/builtins"
	"github.com/arijanluiken/tradescript/internal/engine"
	"github.com/arijanluiken/tradescript/pkg/config"
	"github.com/arijanluiken/tradescript/pkg/database"
	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

// Components are the services shared by every executor
type Components struct {
	DB       *database.DB
	Registry *builtins.Registry
	Feed     exchanges.MarketData
	Engine   *engine.Engine
}

// Build opens the database, loads the builtin registry and creates the
// market data feed and script engine from configuration. An empty feed
// exchange or "none" runs without a feed.
func Build(cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry, err := builtins.FromConfig(cfg.Script, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load builtins: %w", err)
	}

	feed, err := newFeed(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts := []engine.Option{
		engine.WithBarCache(db),
		engine.WithScriptStore(db),
	}
	if feed != nil {
		opts = append(opts, engine.WithFeed(feed))
	}

	return &Components{
		DB:       db,
		Registry: registry,
		Feed:     feed,
		Engine:   engine.New(cfg, registry, logger, opts...),
	}, nil
}

// Close releases the database
func (c *Components) Close() error {
	return c.DB.Close()
}

func newFeed(cfg *config.Config, logger zerolog.Logger) (exchanges.MarketData, error) {
	name := cfg.Feed.Exchange
	if name == "" || name == "none" {
		return nil, nil
	}

	credentials := map[string]interface{}{}
	switch name {
	case "bybit":
		credentials["api_key"] = cfg.BybitAPIKey
		credentials["secret"] = cfg.BybitSecret
		credentials["testnet"] = cfg.BybitTestnet
	case "bitvavo":
		credentials["api_key"] = cfg.BitvavoAPIKey
		credentials["secret"] = cfg.BitvavoSecret
		credentials["testnet"] = cfg.BitvavoTestnet
	}

	feed, err := exchanges.NewFactory(logger).CreateExchange(name, credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed: %w", err)
	}
	return feed, nil
}
