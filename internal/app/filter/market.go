package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/voicebox/internal/domain/track"
)

// MarketConfig represents the configuration for MarketFilter.
type MarketConfig struct {
	Market string `yaml:"market" mapstructure:"market" validate:"omitempty,len=2"`
}

// MarketFilter rejects catalog tracks that are not offered in the configured market.
type MarketFilter struct {
	market string
}

// NewMarketFilter creates a MarketFilter for market. An empty market accepts everything.
func NewMarketFilter(market string) *MarketFilter {
	return &MarketFilter{market: market}
}

func (f *MarketFilter) Name() string {
	return "market_filter"
}

func (f *MarketFilter) Description() string {
	return "Rejects catalog tracks that are not available in the configured market"
}

func (f *MarketFilter) ReturnCodes() []string {
	return []string{"market_restriction"}
}

func (f *MarketFilter) ValidateConfig(settings map[string]any) error {
	var config MarketConfig
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.market = config.Market
	return nil
}

func (f *MarketFilter) AppliesTo(requesterType track.RequesterType) bool {
	// Region locks hold whoever asked for the track
	return true
}

func (f *MarketFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.market == "" {
		return Accept()
	}
	if !t.IsAvailableInMarket(f.market) {
		return Reject("market_restriction")
	}
	return Accept()
}

func init() {
	Register("market_filter", func(Deps) Filter {
		return &MarketFilter{}
	})
}
