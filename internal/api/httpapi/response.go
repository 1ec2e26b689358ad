package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/app/session"
	"github.com/osa030/voicebox/internal/domain/track"
)

const maxBodyBytes = 64 << 10

type response struct {
	OK       bool          `json:"ok"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Queued   []string      `json:"queued,omitempty"`
	Rejected int           `json:"rejected,omitempty"`
	Session  *sessionView  `json:"session,omitempty"`
	Sessions []sessionView `json:"sessions,omitempty"`
	Queue    []trackView   `json:"queue,omitempty"`
	Stopped  *int          `json:"stopped,omitempty"`
}

type trackView struct {
	Reference       string    `json:"reference"`
	Title           string    `json:"title"`
	Uploader        string    `json:"uploader,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	RequestedBy     string    `json:"requested_by,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

func newTrackView(qt track.QueuedTrack) trackView {
	v := trackView{
		Reference:    qt.Track.Reference,
		Title:        qt.Track.Title,
		Uploader:     qt.Track.UploaderName,
		ThumbnailURL: qt.Track.ThumbnailURL,
		RequestedBy:  qt.Requester.Name,
		AddedAt:      qt.AddedAt,
	}
	if secs := qt.Track.DurationSeconds(); secs >= 0 {
		v.DurationSeconds = &secs
	}
	return v
}

type sessionView struct {
	ID        string     `json:"id"`
	ContextID string     `json:"context_id"`
	State     string     `json:"state"`
	Current   *trackView `json:"current,omitempty"`
	Queued    int        `json:"queued"`
	Members   []string   `json:"members,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newSessionView(info playback.Info) sessionView {
	v := sessionView{
		ID:        info.ID,
		ContextID: info.ContextID,
		State:     info.State.String(),
		Queued:    info.Queued,
		CreatedAt: info.CreatedAt,
	}
	if info.Current != nil {
		cur := newTrackView(*info.Current)
		v.Current = &cur
	}
	return v
}

// commandRequest is the body accepted by every command route.
type commandRequest struct {
	Requester struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"requester"`
	Query string `json:"query,omitempty"`
}

func (c commandRequest) requester() (track.Requester, error) {
	id := strings.TrimSpace(c.Requester.ID)
	if id == "" {
		return track.Requester{}, errors.Wrap(session.ErrInvalidRequest, "requester.id is required")
	}
	name := strings.TrimSpace(c.Requester.Name)
	if name == "" {
		name = id
	}
	return track.Requester{ID: id, Name: name, Type: track.RequesterTypeUser}, nil
}

// kickRequest is the body of the admin kick route.
type kickRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
}

func invalidRequest(err error) error {
	return errors.Wrapf(session.ErrInvalidRequest, "malformed body: %v", err)
}

// bindRequester decodes the command body into req and returns its requester.
// req may be nil for routes that carry nothing but the requester. An empty
// body decodes as an empty request. On failure the error response is
// already written.
func (s *Server) bindRequester(c *gin.Context, req *commandRequest) (track.Requester, bool) {
	if req == nil {
		req = &commandRequest{}
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(c, invalidRequest(err))
		return track.Requester{}, false
	}

	requester, err := req.requester()
	if err != nil {
		s.writeError(c, err)
		return track.Requester{}, false
	}
	return requester, true
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotPlaying):
		return http.StatusConflict
	case errors.Is(err, session.ErrKicked), errors.Is(err, session.ErrNotInContext):
		return http.StatusForbidden
	case errors.Is(err, session.ErrContextUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zlog.Warn().Err(err).Msg("http: command failed")
	} else {
		zlog.Debug().Err(err).Msg("http: command rejected")
	}

	code := session.Code(err)
	c.JSON(status, response{
		Code:    code,
		Message: s.config.GetMessage(code),
	})
}

// writeResult writes a successful response with the message for code.
func (s *Server) writeResult(c *gin.Context, code string, resp response) {
	resp.OK = true
	resp.Code = code
	resp.Message = s.config.GetMessage(code)
	c.JSON(http.StatusOK, resp)
}
