package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/domain/track"
)

type kickList map[string]bool

func (k kickList) IsKicked(contextID, requesterID string) bool {
	return k[contextID+"/"+requesterID]
}

func TestKickedFilter_Check(t *testing.T) {
	f := NewKickedFilter(kickList{"lobby/bob": true})
	candidate := track.New("song", "Song")

	tests := []struct {
		name      string
		contextID string
		requester string
		want      bool
	}{
		{"kicked", "lobby", "bob", false},
		{"other requester", "lobby", "alice", true},
		{"other context", "stage", "bob", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Check(context.Background(), Request{
				ContextID: tt.contextID,
				Requester: track.Requester{ID: tt.requester, Type: track.RequesterTypeUser},
			}, candidate)
			assert.Equal(t, tt.want, res.Accepted)
			if !tt.want {
				assert.Equal(t, "kicked", res.Code)
			}
		})
	}
}

func TestKickedFilter_WithoutLookup(t *testing.T) {
	f := NewKickedFilter(nil)
	res := f.Check(context.Background(), Request{ContextID: "lobby", Requester: track.Requester{ID: "bob"}}, track.New("a", "A"))
	assert.True(t, res.Accepted)
}

func TestKickedFilter_FromConfig(t *testing.T) {
	chain, err := NewChainFromConfig(map[string]Settings{
		"kicked_listener_filter": {Enabled: true},
	}, Deps{Kicks: kickList{"lobby/bob": true}})
	require.NoError(t, err)

	bob := track.Requester{ID: "bob", Type: track.RequesterTypeUser}
	ok, code := chain.Admit(context.Background(), "lobby", bob, track.New("a", "A"), nil)
	assert.False(t, ok)
	assert.Equal(t, "kicked", code)

	ok, _ = chain.Admit(context.Background(), "stage", bob, track.New("a", "A"), nil)
	assert.True(t, ok)
}
