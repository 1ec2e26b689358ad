package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/notification"
)

var errStreamClosed = errors.New("event stream closed")

type eventView struct {
	Seq       uint64     `json:"seq"`
	Type      string     `json:"type"`
	ContextID string     `json:"context_id"`
	SessionID string     `json:"session_id"`
	State     string     `json:"state"`
	Track     *trackView `json:"track,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	At        time.Time  `json:"at"`
}

// ndjsonStream writes notifications as newline-delimited JSON.
type ndjsonStream struct {
	mu     sync.Mutex
	w      gin.ResponseWriter
	enc    *json.Encoder
	closed bool
}

var _ notification.Stream = (*ndjsonStream)(nil)

func (st *ndjsonStream) Send(n *notification.Notification) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return errStreamClosed
	}

	ev := n.Event
	view := eventView{
		Seq:       n.SequenceNo,
		Type:      ev.Type.String(),
		ContextID: ev.ContextID,
		SessionID: ev.SessionID,
		State:     ev.State.String(),
		Reason:    ev.Reason,
		At:        ev.At,
	}
	if ev.Track != nil {
		tv := newTrackView(*ev.Track)
		view.Track = &tv
	}

	if err := st.enc.Encode(view); err != nil {
		return err
	}
	st.w.Flush()
	return nil
}

func (st *ndjsonStream) close() {
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
}

// handleEvents streams playback events until the client disconnects.
// Without an :id path parameter every context is streamed.
func (s *Server) handleEvents(c *gin.Context) {
	contextID := c.Param("id")

	stream := &ndjsonStream{w: c.Writer, enc: json.NewEncoder(c.Writer)}

	// Hold the stream until headers are out so no event is written first.
	stream.mu.Lock()
	id := s.notifier.Subscribe(contextID, stream)
	defer func() {
		s.notifier.Unsubscribe(id)
		stream.close()
	}()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	stream.mu.Unlock()

	zlog.Debug().Str("context", contextID).Str("subscription", id).Msg("http: event stream opened")

	select {
	case <-c.Request.Context().Done():
	case <-s.notifier.Done(id):
	}

	zlog.Debug().Str("context", contextID).Str("subscription", id).Msg("http: event stream closed")
}
