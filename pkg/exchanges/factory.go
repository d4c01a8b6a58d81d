package exchanges

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Factory builds market data feeds by exchange name
type Factory struct {
	logger zerolog.Logger
}

// NewFactory creates a new exchange factory
func NewFactory(logger zerolog.Logger) *Factory {
	return &Factory{
		logger: logger.With().Str("component", "exchange_factory").Logger(),
	}
}

// CreateExchange creates a market data feed based on the exchange name.
// Recognised config keys are api_key, secret and testnet.
func (f *Factory) CreateExchange(exchangeName string, config map[string]interface{}) (MarketData, error) {
	f.logger.Info().
		Str("exchange", exchangeName).
		Msg("Creating exchange instance")

	apiKey, _ := config["api_key"].(string)
	secret, _ := config["secret"].(string)
	testnet, _ := config["testnet"].(bool)

	if apiKey != "" && secret == "" {
		return nil, fmt.Errorf("%s secret is required when api_key is set", exchangeName)
	}

	switch exchangeName {
	case "bybit":
		return NewBybit(apiKey, secret, testnet, f.logger), nil
	case "bitvavo":
		return NewBitvavo(apiKey, secret, testnet, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", exchangeName)
	}
}

// GetSupportedExchanges returns a list of supported exchange names
func (f *Factory) GetSupportedExchanges() []string {
	return []string{"bybit", "bitvavo"}
}
