package filter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicebox/internal/domain/track"
)

func pendingFrom(ids ...string) []track.QueuedTrack {
	out := make([]track.QueuedTrack, len(ids))
	for i, id := range ids {
		out[i] = track.QueuedTrack{
			Track:     track.New(fmt.Sprintf("ref-%d", i), "song"),
			Requester: track.Requester{ID: id, Type: track.RequesterTypeUser},
		}
	}
	return out
}

func TestUserPendingFilter_Check(t *testing.T) {
	f := &UserPendingFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{"max_pending": "2"}))

	alice := track.Requester{ID: "alice", Type: track.RequesterTypeUser}
	candidate := track.New("new", "New Song")

	res := f.Check(context.Background(), Request{Requester: alice, Pending: pendingFrom("alice", "bob", "bob")}, candidate)
	assert.True(t, res.Accepted)

	res = f.Check(context.Background(), Request{Requester: alice, Pending: pendingFrom("alice", "bob", "alice")}, candidate)
	assert.False(t, res.Accepted)
	assert.Equal(t, "user_pending", res.Code)
}

func TestUserPendingFilter_ValidateConfig(t *testing.T) {
	f := &UserPendingFilter{}
	require.NoError(t, f.ValidateConfig(nil))
	assert.Equal(t, 25, f.config.MaxPending)

	assert.Error(t, f.ValidateConfig(map[string]any{"max_pending": -1}))
}

func TestUserPendingFilter_AppliesTo(t *testing.T) {
	f := &UserPendingFilter{}
	assert.True(t, f.AppliesTo(track.RequesterTypeUser))
	assert.False(t, f.AppliesTo(track.RequesterTypeSystem))
}
