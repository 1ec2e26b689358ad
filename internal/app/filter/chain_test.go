package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/domain/track"
)

func TestUserPendingFilter_CheckTable(t *testing.T) {
	alice := track.Requester{ID: "alice", Type: track.RequesterTypeUser}
	bob := track.Requester{ID: "bob", Type: track.RequesterTypeUser}

	queued := func(r track.Requester, n int) []track.QueuedTrack {
		out := make([]track.QueuedTrack, n)
		for i := range out {
			out[i] = track.QueuedTrack{Track: track.New("ref", "title"), Requester: r}
		}
		return out
	}

	tests := []struct {
		name         string
		pending      []track.QueuedTrack
		wantAccepted bool
	}{
		{"no pending tracks", nil, true},
		{"below limit", queued(alice, 1), true},
		{"at limit", queued(alice, 2), false},
		{"other requesters do not count", append(queued(bob, 5), queued(alice, 1)...), true},
	}

	filter := &UserPendingFilter{}
	require.NoError(t, filter.ValidateConfig(map[string]any{"max_pending": 2}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filter.Check(context.Background(), Request{Requester: alice, Pending: tt.pending}, track.New("new", "new"))

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "user_pending", result.Code)
			}
		})
	}
}

func TestFilters_AppliesTo(t *testing.T) {
	filters := []Filter{
		NewDurationLimitFilter(),
		NewDuplicateTrackFilter(),
		&UserPendingFilter{},
	}

	for _, f := range filters {
		t.Run(f.Name(), func(t *testing.T) {
			assert.True(t, f.AppliesTo(track.RequesterTypeUser))
			assert.False(t, f.AppliesTo(track.RequesterTypeSystem))
			assert.NotEmpty(t, f.Description())
			assert.NotEmpty(t, f.ReturnCodes())
		})
	}
}

func TestChain_Admit(t *testing.T) {
	chain, err := NewChainFromConfig(map[string]Settings{
		"duplicate_track_filter": {Enabled: true},
		"duration_limit_filter":  {Enabled: true, Settings: map[string]any{"max_minutes": 10}},
		"user_pending_filter":    {Enabled: false},
	}, Deps{})
	require.NoError(t, err)
	require.Len(t, chain.Filters(), 2)
	// name order
	assert.Equal(t, "duplicate_track_filter", chain.Filters()[0].Name())

	user := track.Requester{ID: "u1", Type: track.RequesterTypeUser}
	system := track.Requester{ID: "sys", Type: track.RequesterTypeSystem}
	queued := []track.QueuedTrack{{Track: track.New("dup", "Dup"), Requester: user}}

	ok, code := chain.Admit(context.Background(), "room", user, track.New("dup", "Dup"), queued)
	assert.False(t, ok)
	assert.Equal(t, "duplicate_track", code)

	ok, code = chain.Admit(context.Background(), "room", user, track.New("epic", "Epic").WithDuration(time.Hour), nil)
	assert.False(t, ok)
	assert.Equal(t, "duration_limit_exceeded", code)

	// system requests bypass user filters
	ok, _ = chain.Admit(context.Background(), "room", system, track.New("dup", "Dup"), queued)
	assert.True(t, ok)

	ok, code = chain.Admit(context.Background(), "room", user, track.New("fresh", "Fresh"), queued)
	assert.True(t, ok)
	assert.Empty(t, code)
}

func TestNewChainFromConfig_Errors(t *testing.T) {
	_, err := NewChainFromConfig(map[string]Settings{"no_such_filter": {Enabled: true}}, Deps{})
	assert.Error(t, err)

	_, err = NewChainFromConfig(map[string]Settings{
		"duration_limit_filter": {Enabled: true, Settings: map[string]any{"max_minutes": -1}},
	}, Deps{})
	assert.Error(t, err)

	// disabled unknown filters are ignored
	chain, err := NewChainFromConfig(map[string]Settings{"no_such_filter": {Enabled: false}}, Deps{})
	require.NoError(t, err)
	assert.Empty(t, chain.Filters())
}

func TestGetRegistered(t *testing.T) {
	registered := GetRegistered()
	for _, name := range []string{"duration_limit_filter", "duplicate_track_filter", "user_pending_filter", "kicked_listener_filter", "market_filter"} {
		factory, ok := registered[name]
		require.True(t, ok, name)
		assert.Equal(t, name, factory(Deps{}).Name())
	}
}
