// Package main provides the user CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/voicebox/internal/api/httpapi"
)

var (
	app     = kingpin.New("voicebox-usercli", "voicebox user client for testing")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	user    = app.Flag("user", "Requester ID").Envar("VOICEBOX_USER").Default("cli").String()
	name    = app.Flag("name", "Requester display name").Envar("VOICEBOX_NAME").String()
	timeout = app.Flag("timeout", "Request timeout").Default("90s").Duration()

	joinCmd     = app.Command("join", "Join a context")
	joinContext = joinCmd.Arg("context", "Context ID").Required().String()

	leaveCmd     = app.Command("leave", "Leave a context")
	leaveContext = leaveCmd.Arg("context", "Context ID").Required().String()

	playCmd     = app.Command("play", "Queue a URL or search text").Alias("queue")
	playContext = playCmd.Arg("context", "Context ID").Required().String()
	playQuery   = playCmd.Arg("query", "URL or search text").Required().Strings()

	skipCmd     = app.Command("skip", "Skip the current track")
	skipContext = skipCmd.Arg("context", "Context ID").Required().String()

	pauseCmd     = app.Command("pause", "Pause playback")
	pauseContext = pauseCmd.Arg("context", "Context ID").Required().String()

	resumeCmd     = app.Command("resume", "Resume playback")
	resumeContext = resumeCmd.Arg("context", "Context ID").Required().String()

	stopCmd     = app.Command("stop", "Stop playback and leave the output")
	stopContext = stopCmd.Arg("context", "Context ID").Required().String()

	listCmd     = app.Command("list", "List queued tracks")
	listContext = listCmd.Arg("context", "Context ID").Required().String()

	statusCmd     = app.Command("status", "Show the session of a context")
	statusContext = statusCmd.Arg("context", "Context ID").Required().String()

	subscribeCmd     = app.Command("subscribe", "Stream playback events")
	subscribeContext = subscribeCmd.Arg("context", "Context ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := httpapi.NewClient(*server)

	if command == subscribeCmd.FullCommand() {
		subscribe(client, *subscribeContext)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		reply *httpapi.Reply
		err   error
	)
	switch command {
	case joinCmd.FullCommand():
		reply, err = client.Join(ctx, *joinContext, *user, *name)
	case leaveCmd.FullCommand():
		reply, err = client.Leave(ctx, *leaveContext, *user, *name)
	case playCmd.FullCommand():
		reply, err = client.Enqueue(ctx, *playContext, *user, *name, strings.Join(*playQuery, " "))
	case skipCmd.FullCommand():
		reply, err = client.Control(ctx, *skipContext, "skip", *user, *name)
	case pauseCmd.FullCommand():
		reply, err = client.Control(ctx, *pauseContext, "pause", *user, *name)
	case resumeCmd.FullCommand():
		reply, err = client.Control(ctx, *resumeContext, "resume", *user, *name)
	case stopCmd.FullCommand():
		reply, err = client.Control(ctx, *stopContext, "stop", *user, *name)
	case listCmd.FullCommand():
		reply, err = client.Queue(ctx, *listContext)
	case statusCmd.FullCommand():
		reply, err = client.Status(ctx, *statusContext)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	printReply(reply)
	if !reply.OK {
		os.Exit(1)
	}
}

func printReply(r *httpapi.Reply) {
	fmt.Println(r.String())

	for _, title := range r.Queued {
		fmt.Printf("  + %s\n", title)
	}
	if r.Rejected > 0 {
		fmt.Printf("  %d entries rejected\n", r.Rejected)
	}

	if r.Session != nil {
		printSession(*r.Session)
	}

	if len(r.Queue) > 0 {
		fmt.Println("Queue:")
		for i, t := range r.Queue {
			fmt.Printf("  %2d. %s\n", i+1, formatTrack(t))
		}
	}
}

func printSession(s httpapi.SessionInfo) {
	fmt.Printf("Context: %s\n", s.ContextID)
	fmt.Printf("  Session ID: %s\n", s.ID)
	fmt.Printf("  State: %s\n", s.State)
	if s.Current != nil {
		fmt.Printf("  Now playing: %s\n", formatTrack(*s.Current))
	}
	fmt.Printf("  Queued: %d\n", s.Queued)
	if len(s.Members) > 0 {
		fmt.Printf("  Members: %s\n", strings.Join(s.Members, ", "))
	}
}

func formatTrack(t httpapi.TrackInfo) string {
	out := t.Title
	if t.Uploader != "" {
		out += " - " + t.Uploader
	}
	if t.DurationSeconds != nil {
		out += fmt.Sprintf(" [%s]", time.Duration(*t.DurationSeconds)*time.Second)
	}
	if t.RequestedBy != "" {
		out += " (requested by " + t.RequestedBy + ")"
	}
	return out
}

func subscribe(client *httpapi.Client, contextID string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Subscribed to events. Press Ctrl+C to exit.")

	err := client.Subscribe(ctx, contextID, func(ev httpapi.EventInfo) {
		fmt.Printf("[%d] %s %s state=%s", ev.Seq, ev.At.Format(time.TimeOnly), ev.Type, ev.State)
		if ev.Track != nil {
			fmt.Printf(" track=%q", ev.Track.Title)
		}
		if ev.Reason != "" {
			fmt.Printf(" reason=%s", ev.Reason)
		}
		fmt.Println()
	})
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}
