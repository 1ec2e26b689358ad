// Package main provides the Spotify authentication tool.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/voicebox/internal/infra/logger"
)

var (
	app          = kingpin.New("voicebox-auth", "Obtain a Spotify refresh token for voicebox")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	wait         = app.Flag("wait", "How long to wait for the browser").Default("5m").Duration()
)

const completePage = `<!DOCTYPE html>
<html><head><title>voicebox</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>Authorization complete</h1>
<p>You can close this window and return to the terminal.</p>
</body></html>
`

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := authorize(ctx)
	if err != nil {
		zlog.Error().Msgf("auth: %+v", err)
		os.Exit(1)
	}

	fmt.Println("Add this to your server.yaml:")
	fmt.Println()
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: %q\n", token.RefreshToken)
	fmt.Println()
	fmt.Println("Or set it in the environment:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=%q\n", token.RefreshToken)
}

// authorize runs the authorization-code flow against a local callback server.
func authorize(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()
	redirect := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)

	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirect),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		// Private playlists are only readable with this scope
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	tokens := make(chan *oauth2.Token, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msg("auth: callback with unexpected state")
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			zlog.Warn().Err(err).Msg("auth: token exchange failed")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, completePage)

		select {
		case tokens <- token:
		default:
		}
	})

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
	if err != nil {
		return nil, errors.Wrap(err, "failed to listen for the callback")
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error().Err(err).Msg("auth: callback server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Println("Open this URL in a browser to authorize voicebox:")
	fmt.Println()
	fmt.Println(auth.AuthURL(state))
	fmt.Println()

	timer := time.NewTimer(*wait)
	defer timer.Stop()

	select {
	case token := <-tokens:
		if token.RefreshToken == "" {
			return nil, errors.New("spotify returned no refresh token")
		}
		zlog.Info().Msg("auth: authorization complete")
		return token, nil
	case <-timer.C:
		return nil, errors.Newf("no callback within %s", *wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
