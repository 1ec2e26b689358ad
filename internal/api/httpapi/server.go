// Package httpapi serves the command surface over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/notification"
	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/app/session"
	"github.com/osa030/voicebox/internal/domain/track"
	"github.com/osa030/voicebox/internal/infra/config"
)

// Server routes HTTP requests to the session manager.
type Server struct {
	sessions *session.Manager
	notifier *notification.Manager
	config   *config.Config
	limiter  *limiterSet
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// New creates a new Server. gatherer may be nil to disable /metrics.
func New(sessions *session.Manager, notifier *notification.Manager, cfg *config.Config, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		sessions: sessions,
		notifier: notifier,
		config:   cfg,
		limiter:  newLimiterSet(cfg.Server.EnqueueRate, cfg.Server.EnqueueBurst),
		gatherer: gatherer,
		router:   gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery(), logRequests())

	corsConfig := cors.DefaultConfig()
	if len(s.config.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", AdminTokenHeader}
	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/v1")
	{
		contexts := v1.Group("/contexts/:id")
		contexts.GET("", s.handleStatus)
		contexts.POST("/join", s.handleJoin)
		contexts.POST("/leave", s.handleLeave)
		contexts.POST("/queue", s.limitEnqueue(), s.handleEnqueue)
		contexts.GET("/queue", s.handleListQueue)
		contexts.POST("/skip", s.control(s.sessions.Skip))
		contexts.POST("/pause", s.control(s.sessions.Pause))
		contexts.POST("/resume", s.control(s.sessions.Resume))
		contexts.POST("/stop", s.control(s.sessions.Stop))
		contexts.GET("/events", s.handleEvents)

		admin := v1.Group("/admin", s.requireAdmin())
		admin.GET("/sessions", s.handleListSessions)
		admin.POST("/sessions/:id/stop", s.handleStopSession)
		admin.POST("/sessions/:id/kick", s.handleKick)
		admin.POST("/stop-all", s.handleStopAll)
		admin.GET("/events", s.handleEvents)
	}

	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) handleJoin(c *gin.Context) {
	requester, ok := s.bindRequester(c, nil)
	if !ok {
		return
	}

	sess, err := s.sessions.JoinContext(c.Request.Context(), c.Param("id"), requester)
	if err != nil {
		s.writeError(c, err)
		return
	}

	view := newSessionView(sess.Info())
	s.writeResult(c, "joined", response{Session: &view})
}

func (s *Server) handleLeave(c *gin.Context) {
	requester, ok := s.bindRequester(c, nil)
	if !ok {
		return
	}

	if err := s.sessions.LeaveContext(c.Param("id"), requester); err != nil {
		s.writeError(c, err)
		return
	}
	s.writeResult(c, "left", response{})
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var req commandRequest
	requester, ok := s.bindRequester(c, &req)
	if !ok {
		return
	}

	result, err := s.sessions.Enqueue(c.Request.Context(), c.Param("id"), req.Query, requester)
	if err != nil {
		s.writeError(c, err)
		return
	}

	code := enqueueCode(result)
	c.JSON(http.StatusOK, response{
		OK:       result.Count() > 0,
		Code:     code,
		Message:  s.config.GetMessage(code),
		Queued:   result.Titles,
		Rejected: result.Rejected,
	})
}

// enqueueCode picks the result code shown for an enqueue. When nothing was
// queued and a filter rejected an entry, the filter's code explains why.
func enqueueCode(result playback.EnqueueResult) string {
	if result.Count() > 0 {
		return "queued"
	}
	for _, reason := range result.Reasons {
		if reason != playback.RejectUnavailable {
			return reason
		}
	}
	return "nothing_found"
}

func (s *Server) handleListQueue(c *gin.Context) {
	queued, err := s.sessions.ListQueue(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	views := make([]trackView, len(queued))
	for i, qt := range queued {
		views[i] = newTrackView(qt)
	}
	s.writeResult(c, "success", response{Queue: views})
}

func (s *Server) handleStatus(c *gin.Context) {
	info, err := s.sessions.Status(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	view := newSessionView(info)
	view.Members = s.memberNames(info.ContextID)
	s.writeResult(c, "success", response{Session: &view})
}

type controlFunc func(ctx context.Context, contextID string, requester track.Requester) (playback.Status, error)

func (s *Server) control(fn controlFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester, ok := s.bindRequester(c, nil)
		if !ok {
			return
		}

		status, err := fn(c.Request.Context(), c.Param("id"), requester)
		if err != nil {
			s.writeError(c, err)
			return
		}
		s.writeResult(c, string(status), response{})
	}
}

func (s *Server) handleListSessions(c *gin.Context) {
	infos := s.sessions.Sessions()
	views := make([]sessionView, len(infos))
	for i, info := range infos {
		views[i] = newSessionView(info)
		views[i].Members = s.memberNames(info.ContextID)
	}
	s.writeResult(c, "success", response{Sessions: views})
}

func (s *Server) handleStopSession(c *gin.Context) {
	status, err := s.sessions.StopSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeResult(c, string(status), response{})
}

func (s *Server) handleKick(c *gin.Context) {
	var req kickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, invalidRequest(err))
		return
	}

	if err := s.sessions.Kick(c.Param("id"), req.RequesterID); err != nil {
		s.writeError(c, err)
		return
	}
	s.writeResult(c, "kicked", response{})
}

func (s *Server) handleStopAll(c *gin.Context) {
	n, err := s.sessions.StopAll(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeResult(c, "stopped", response{Stopped: &n})
}

func (s *Server) memberNames(contextID string) []string {
	members := s.sessions.Members(contextID)
	if len(members) == 0 {
		return nil
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return names
}

// logRequests logs every request at debug level once it has been served.
func logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		ev := zlog.Debug()
		if len(c.Errors) > 0 {
			ev = zlog.Warn().Str("errors", c.Errors.String())
		}
		ev.Msgf("http: %s %s status=%d elapsed=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started))
	}
}
