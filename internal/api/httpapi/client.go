package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Reply is the decoded body of a command response.
type Reply struct {
	OK       bool          `json:"ok"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Queued   []string      `json:"queued"`
	Rejected int           `json:"rejected"`
	Session  *SessionInfo  `json:"session"`
	Sessions []SessionInfo `json:"sessions"`
	Queue    []TrackInfo   `json:"queue"`
	Stopped  *int          `json:"stopped"`

	Status int `json:"-"`
}

// TrackInfo describes a queued or playing track.
type TrackInfo struct {
	Reference       string    `json:"reference"`
	Title           string    `json:"title"`
	Uploader        string    `json:"uploader"`
	DurationSeconds *int      `json:"duration_seconds"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	RequestedBy     string    `json:"requested_by"`
	AddedAt         time.Time `json:"added_at"`
}

// SessionInfo describes a playback session.
type SessionInfo struct {
	ID        string     `json:"id"`
	ContextID string     `json:"context_id"`
	State     string     `json:"state"`
	Current   *TrackInfo `json:"current"`
	Queued    int        `json:"queued"`
	Members   []string   `json:"members"`
	CreatedAt time.Time  `json:"created_at"`
}

// EventInfo is one line of an event stream.
type EventInfo struct {
	Seq       uint64     `json:"seq"`
	Type      string     `json:"type"`
	ContextID string     `json:"context_id"`
	SessionID string     `json:"session_id"`
	State     string     `json:"state"`
	Track     *TrackInfo `json:"track"`
	Reason    string     `json:"reason"`
	At        time.Time  `json:"at"`
}

// Client calls the voicebox HTTP API.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithAdminToken sets the token sent on admin routes.
func WithAdminToken(token string) ClientOption {
	return func(c *Client) { c.adminToken = token }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join joins contextID as the given requester.
func (c *Client) Join(ctx context.Context, contextID, userID, name string) (*Reply, error) {
	return c.command(ctx, contextID, "join", userID, name, "")
}

// Leave leaves contextID as the given requester.
func (c *Client) Leave(ctx context.Context, contextID, userID, name string) (*Reply, error) {
	return c.command(ctx, contextID, "leave", userID, name, "")
}

// Enqueue resolves query and queues the result in contextID.
func (c *Client) Enqueue(ctx context.Context, contextID, userID, name, query string) (*Reply, error) {
	return c.command(ctx, contextID, "queue", userID, name, query)
}

// Control sends skip, pause, resume or stop to contextID.
func (c *Client) Control(ctx context.Context, contextID, action, userID, name string) (*Reply, error) {
	switch action {
	case "skip", "pause", "resume", "stop":
	default:
		return nil, errors.Newf("unknown action %q", action)
	}
	return c.command(ctx, contextID, action, userID, name, "")
}

// Queue lists the tracks waiting in contextID.
func (c *Client) Queue(ctx context.Context, contextID string) (*Reply, error) {
	return c.do(ctx, http.MethodGet, contextPath(contextID, "queue"), nil, false)
}

// Status returns the session of contextID.
func (c *Client) Status(ctx context.Context, contextID string) (*Reply, error) {
	return c.do(ctx, http.MethodGet, contextPath(contextID, ""), nil, false)
}

// Sessions lists every live session.
func (c *Client) Sessions(ctx context.Context) (*Reply, error) {
	return c.do(ctx, http.MethodGet, "/v1/admin/sessions", nil, true)
}

// StopSession force-stops the session of contextID.
func (c *Client) StopSession(ctx context.Context, contextID string) (*Reply, error) {
	return c.do(ctx, http.MethodPost, "/v1/admin/sessions/"+url.PathEscape(contextID)+"/stop", nil, true)
}

// Kick removes userID from contextID and bars it from rejoining.
func (c *Client) Kick(ctx context.Context, contextID, userID string) (*Reply, error) {
	body := kickRequest{RequesterID: userID}
	return c.do(ctx, http.MethodPost, "/v1/admin/sessions/"+url.PathEscape(contextID)+"/kick", body, true)
}

// StopAll force-stops every session.
func (c *Client) StopAll(ctx context.Context) (*Reply, error) {
	return c.do(ctx, http.MethodPost, "/v1/admin/stop-all", nil, true)
}

// Subscribe streams events of contextID to fn until ctx ends or the server
// closes the stream. An empty contextID subscribes to every context and
// requires the admin token.
func (c *Client) Subscribe(ctx context.Context, contextID string, fn func(EventInfo)) error {
	path, admin := "/v1/admin/events", true
	if contextID != "" {
		path, admin = contextPath(contextID, "events"), false
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil, admin)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reply, err := decodeReply(resp)
		if err != nil {
			return err
		}
		return errors.Newf("subscribe: %s (%s)", reply.Message, reply.Code)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev EventInfo
		if err := json.Unmarshal(line, &ev); err != nil {
			return errors.Wrap(err, "malformed event")
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "read events")
	}
	return nil
}

func (c *Client) command(ctx context.Context, contextID, action, userID, name, query string) (*Reply, error) {
	body := commandRequest{Query: query}
	body.Requester.ID = userID
	body.Requester.Name = name
	return c.do(ctx, http.MethodPost, contextPath(contextID, action), body, false)
}

func (c *Client) do(ctx context.Context, method, path string, body any, admin bool) (*Reply, error) {
	req, err := c.newRequest(ctx, method, path, body, admin)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	return decodeReply(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, admin bool) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin && c.adminToken != "" {
		req.Header.Set(AdminTokenHeader, c.adminToken)
	}
	return req, nil
}

func decodeReply(resp *http.Response) (*Reply, error) {
	var reply Reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes<<4)).Decode(&reply); err != nil {
		return nil, errors.Wrapf(err, "decode response (status %d)", resp.StatusCode)
	}
	reply.Status = resp.StatusCode
	return &reply, nil
}

func contextPath(contextID, action string) string {
	p := "/v1/contexts/" + url.PathEscape(contextID)
	if action != "" {
		p += "/" + action
	}
	return p
}

// String renders a one-line summary of the reply.
func (r *Reply) String() string {
	if r.OK {
		return fmt.Sprintf("%s: %s", r.Code, r.Message)
	}
	return fmt.Sprintf("rejected [%s]: %s", r.Code, r.Message)
}
