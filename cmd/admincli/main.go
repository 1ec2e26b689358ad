// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/voicebox/internal/api/httpapi"
)

var (
	app    = kingpin.New("voicebox-admincli", "voicebox admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// sessions command
	sessionsCmd = app.Command("sessions", "List live sessions").Alias("list")

	// stop command
	stopCmd     = app.Command("stop", "Force-stop the session of a context")
	stopContext = stopCmd.Arg("context", "Context ID").Required().String()

	// kick command
	kickCmd       = app.Command("kick", "Remove a requester from a context")
	kickContext   = kickCmd.Arg("context", "Context ID").Required().String()
	kickRequester = kickCmd.Arg("requester", "Requester ID").Required().String()

	// stop-all command
	stopAllCmd = app.Command("stop-all", "Force-stop every session")

	// watch command
	watchCmd = app.Command("watch", "Stream events of every context")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := httpapi.NewClient(*server, httpapi.WithAdminToken(*token))

	if command == watchCmd.FullCommand() {
		watch(client)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		reply *httpapi.Reply
		err   error
	)
	switch command {
	case sessionsCmd.FullCommand():
		reply, err = client.Sessions(ctx)
	case stopCmd.FullCommand():
		reply, err = client.StopSession(ctx, *stopContext)
	case kickCmd.FullCommand():
		reply, err = client.Kick(ctx, *kickContext, *kickRequester)
	case stopAllCmd.FullCommand():
		reply, err = client.StopAll(ctx)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Println(reply.String())
		os.Exit(1)
	}

	switch command {
	case sessionsCmd.FullCommand():
		listSessions(reply.Sessions)
	case stopAllCmd.FullCommand():
		if reply.Stopped != nil {
			fmt.Printf("Stopped %d session(s)\n", *reply.Stopped)
		}
	default:
		fmt.Println(reply.String())
	}
}

func listSessions(sessions []httpapi.SessionInfo) {
	if len(sessions) == 0 {
		fmt.Println("No live sessions")
		return
	}

	fmt.Printf("%-20s %-10s %-7s %-20s %s\n", "CONTEXT", "STATE", "QUEUED", "SINCE", "NOW PLAYING")
	for _, s := range sessions {
		current := "-"
		if s.Current != nil {
			current = s.Current.Title
		}
		fmt.Printf("%-20s %-10s %-7d %-20s %s\n",
			s.ContextID, s.State, s.Queued, s.CreatedAt.Local().Format(time.DateTime), current)
	}
}

func watch(client *httpapi.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := client.Subscribe(ctx, "", func(ev httpapi.EventInfo) {
		title := ""
		if ev.Track != nil {
			title = ev.Track.Title
		}
		fmt.Printf("[%d] %-16s %-16s %-10s %s\n", ev.Seq, ev.ContextID, ev.Type, ev.State, title)
	})
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}
