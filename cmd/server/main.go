// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/voicebox/internal/api/httpapi"
	"github.com/osa030/voicebox/internal/app/filter"
	"github.com/osa030/voicebox/internal/app/notification"
	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/app/session"
	"github.com/osa030/voicebox/internal/app/session/registry"
	"github.com/osa030/voicebox/internal/infra/config"
	"github.com/osa030/voicebox/internal/infra/ffmpeg"
	"github.com/osa030/voicebox/internal/infra/logger"
	"github.com/osa030/voicebox/internal/infra/media"
	"github.com/osa030/voicebox/internal/infra/metrics"
)

var (
	app        = kingpin.New("voicebox-server", "voicebox playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %+v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic so deferred cleanup runs on error paths too.
func run(cfg *config.Config) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	members := registry.NewMembers()
	chain, err := filter.NewChainFromConfig(filterSettings(cfg), filter.Deps{Kicks: members})
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	resolver, err := media.NewResolverFromConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create media resolver")
	}
	zlog.Info().Msgf("Media sources: %s", strings.Join(resolver.Sources(), ", "))

	connector := ffmpeg.NewConnector(ffmpeg.Config{
		Path:            cfg.Output.FFmpegPath,
		TargetFor:       cfg.OutputTarget,
		Format:          cfg.Output.Format,
		Codec:           cfg.Output.Codec,
		Bitrate:         cfg.Output.Bitrate,
		AllowedContexts: cfg.Output.AllowedContexts,
	})

	notifier := notification.NewManager()
	defer notifier.Close()

	sessionMgr := session.NewManager(session.Config{
		Playback: playback.Config{
			IdleGrace:   cfg.Playback.IdleGrace,
			StopTimeout: cfg.Playback.StopTimeout,
			Publisher:   notifier,
			Admission:   chain,
			Metrics:     m,
		},
		Members:     members,
		RequireJoin: cfg.Playback.RequireJoin,
	}, resolver, connector)

	api := httpapi.New(sessionMgr, notifier, cfg, reg)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(api.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the listener a moment before hooks start talking to it
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received %s, shutting down...", sig)
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Playback.ShutdownTimeout)
	defer cancel()

	// Stop sessions first so subscribers see the final events
	stopped, err := sessionMgr.StopAll(shutdownCtx)
	if err != nil {
		zlog.Error().Msgf("Failed to stop sessions: %+v", err)
	}
	zlog.Info().Msgf("Stopped %d session(s)", stopped)

	notifier.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// filterSettings converts the filters section into chain settings.
func filterSettings(cfg *config.Config) map[string]filter.Settings {
	settings := make(map[string]filter.Settings, len(cfg.Filters))
	for name, fc := range cfg.Filters {
		settings[name] = filter.Settings{
			Enabled:  fc.Enabled,
			Settings: fc.Settings,
		}
	}

	// The market filter follows the Spotify market unless told otherwise.
	if ms, ok := settings["market_filter"]; ok {
		if _, set := ms.Settings["market"]; !set {
			merged := make(map[string]any, len(ms.Settings)+1)
			for k, v := range ms.Settings {
				merged[k] = v
			}
			merged["market"] = cfg.Spotify.Market
			ms.Settings = merged
			settings["market_filter"] = ms
		}
	}
	return settings
}

// printFilters prints available filters.
func printFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registered[name](filter.Deps{})
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
