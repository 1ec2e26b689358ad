package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts ...ClientOption) (*testEnv, *Client) {
	t.Helper()

	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	opts = append([]ClientOption{WithHTTPClient(ts.Client())}, opts...)
	return env, NewClient(ts.URL+"/", opts...)
}

func TestClient_Commands(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	reply, err := c.Enqueue(ctx, "lobby", "alice", "Alice", "first")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "queued", reply.Code)
	assert.Equal(t, []string{"Title of first"}, reply.Queued)

	reply, err = c.Enqueue(ctx, "lobby", "alice", "Alice", "second")
	require.NoError(t, err)
	require.True(t, reply.OK)

	reply, err = c.Queue(ctx, "lobby")
	require.NoError(t, err)
	require.Len(t, reply.Queue, 1)
	assert.Equal(t, "second", reply.Queue[0].Reference)
	require.NotNil(t, reply.Queue[0].DurationSeconds)
	assert.Equal(t, 180, *reply.Queue[0].DurationSeconds)

	reply, err = c.Status(ctx, "lobby")
	require.NoError(t, err)
	require.NotNil(t, reply.Session)
	assert.Equal(t, "lobby", reply.Session.ContextID)

	reply, err = c.Control(ctx, "lobby", "pause", "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "paused", reply.Code)

	reply, err = c.Control(ctx, "lobby", "stop", "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "stopped", reply.Code)
	assert.Equal(t, "stopped: "+reply.Message, reply.String())

	reply, err = c.Status(ctx, "lobby")
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, http.StatusNotFound, reply.Status)
	assert.Equal(t, "rejected [no_active_session]: "+reply.Message, reply.String())

	_, err = c.Control(ctx, "lobby", "rewind", "alice", "Alice")
	assert.Error(t, err)
}

func TestClient_Admin(t *testing.T) {
	_, anon := newTestClient(t)
	reply, err := anon.Sessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, reply.Status)

	_, c := newTestClient(t, WithAdminToken("secret"))
	ctx := context.Background()

	for _, id := range []string{"lobby", "stage"} {
		reply, err := c.Enqueue(ctx, id, "alice", "", "song")
		require.NoError(t, err)
		require.True(t, reply.OK)
	}

	reply, err = c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, reply.Sessions, 2)

	reply, err = c.StopSession(ctx, "stage")
	require.NoError(t, err)
	assert.True(t, reply.OK)

	reply, err = c.StopAll(ctx)
	require.NoError(t, err)
	require.NotNil(t, reply.Stopped)
	assert.Equal(t, 1, *reply.Stopped)
}

func TestClient_LeaveAndKick(t *testing.T) {
	_, c := newTestClient(t, WithAdminToken("secret"))
	ctx := context.Background()

	reply, err := c.Join(ctx, "lobby", "bob", "Bob")
	require.NoError(t, err)
	require.True(t, reply.OK)

	reply, err = c.Leave(ctx, "lobby", "bob", "Bob")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "left", reply.Code)

	reply, err = c.Leave(ctx, "lobby", "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, reply.Status)
	assert.Equal(t, "not_in_context", reply.Code)

	reply, err = c.Kick(ctx, "lobby", "bob")
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "kicked", reply.Code)

	reply, err = c.Join(ctx, "lobby", "bob", "Bob")
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, http.StatusForbidden, reply.Status)
	assert.Equal(t, "kicked", reply.Code)
}

func TestClient_Subscribe(t *testing.T) {
	env, c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan EventInfo, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.Subscribe(ctx, "lobby", func(ev EventInfo) { events <- ev })
	}()

	require.Eventually(t, func() bool {
		return env.server.notifier.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	reply, err := c.Enqueue(context.Background(), "lobby", "alice", "Alice", "song")
	require.NoError(t, err)
	require.True(t, reply.OK)

	select {
	case ev := <-events:
		assert.Equal(t, "track_started", ev.Type)
		assert.Equal(t, "lobby", ev.ContextID)
		require.NotNil(t, ev.Track)
		assert.Equal(t, "Alice", ev.Track.RequestedBy)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}

func TestClient_SubscribeAllRequiresToken(t *testing.T) {
	_, c := newTestClient(t)
	err := c.Subscribe(context.Background(), "", func(EventInfo) {})
	assert.Error(t, err)
}
