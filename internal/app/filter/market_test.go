package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/domain/track"
)

func TestMarketFilter_Check(t *testing.T) {
	playable := true
	regional := track.New("local", "Local Hit")
	regional.Markets = []string{"KR"}
	relinked := regional
	relinked.IsPlayable = &playable

	tests := []struct {
		name   string
		market string
		track  track.Track
		want   bool
	}{
		{"no market configured", "", regional, true},
		{"not offered", "JP", regional, false},
		{"offered", "KR", regional, true},
		{"relinked", "JP", relinked, true},
		{"no catalog data", "JP", track.New("https://youtu.be/x", "Video"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewMarketFilter(tt.market).Check(context.Background(), Request{}, tt.track)
			assert.Equal(t, tt.want, res.Accepted)
			if !tt.want {
				assert.Equal(t, "market_restriction", res.Code)
			}
		})
	}
}

func TestMarketFilter_ValidateConfig(t *testing.T) {
	f := &MarketFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"market": "JP"}))
	assert.Equal(t, "JP", f.market)

	require.NoError(t, f.ValidateConfig(nil))
	assert.Empty(t, f.market)

	assert.Error(t, f.ValidateConfig(map[string]any{"market": "JAPAN"}))
}

func TestMarketFilter_AppliesTo(t *testing.T) {
	f := NewMarketFilter("JP")
	assert.True(t, f.AppliesTo(track.RequesterTypeUser))
	assert.True(t, f.AppliesTo(track.RequesterTypeSystem))
}
