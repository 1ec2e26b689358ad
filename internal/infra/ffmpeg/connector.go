// Package ffmpeg implements the audio output sink as one ffmpeg process per track.
package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
)

var contextIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Config represents ffmpeg output configuration.
type Config struct {
	Path      string                        // ffmpeg binary
	TargetFor func(contextID string) string // output URL or file for a context
	Format    string
	Codec     string
	Bitrate   string
	// AllowedContexts restricts which contexts may connect. Empty allows any.
	AllowedContexts []string
	StopGrace       time.Duration // SIGTERM to SIGKILL delay
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Connector attaches ffmpeg sinks to contexts.
type Connector struct {
	cfg      Config
	allowed  map[string]bool
	lookPath func(string) (string, error)
	command  commandFunc
}

var _ playback.Connector = (*Connector)(nil)

// NewConnector creates a new connector.
func NewConnector(cfg Config) *Connector {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}

	var allowed map[string]bool
	if len(cfg.AllowedContexts) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedContexts))
		for _, id := range cfg.AllowedContexts {
			allowed[id] = true
		}
	}

	return &Connector{
		cfg:      cfg,
		allowed:  allowed,
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
	}
}

// Connect implements playback.Connector.
func (c *Connector) Connect(_ context.Context, contextID string) (playback.Sink, error) {
	if !contextIDPattern.MatchString(contextID) {
		return nil, errors.Mark(errors.Newf("invalid context identifier %q", contextID), playback.ErrContextUnavailable)
	}
	if c.allowed != nil && !c.allowed[contextID] {
		return nil, errors.Mark(errors.Newf("context %s is not allowed", contextID), playback.ErrContextUnavailable)
	}

	path, err := c.lookPath(c.cfg.Path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "ffmpeg binary %s", c.cfg.Path), playback.ErrContextUnavailable)
	}

	target := contextID
	if c.cfg.TargetFor != nil {
		target = c.cfg.TargetFor(contextID)
	}
	if isLocalPath(target) {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to create output directory"), playback.ErrContextUnavailable)
		}
	}

	zlog.Debug().Str("context", contextID).Str("target", redact(target)).Msg("ffmpeg: connected")

	return &Sink{
		contextID: contextID,
		path:      path,
		target:    target,
		format:    c.cfg.Format,
		codec:     c.cfg.Codec,
		bitrate:   c.cfg.Bitrate,
		stopGrace: c.cfg.StopGrace,
		command:   c.command,
	}, nil
}

func isLocalPath(target string) bool {
	return !strings.Contains(target, "://") && target != "-" && target != "pipe:1"
}

// redact hides credentials in output URLs before logging.
func redact(target string) string {
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		return target
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return target
	}
	if slash := strings.Index(rest, "/"); slash >= 0 && slash < at {
		return target
	}
	return scheme + "://***@" + rest[at+1:]
}
