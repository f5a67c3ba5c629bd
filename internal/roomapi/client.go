package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies admin credentials for room service calls.
type TokenSource interface {
	AdminToken() (string, error)
}

// Room is the subset of the room service's room record this system uses.
type Room struct {
	SID             string `json:"sid"`
	Name            string `json:"name"`
	CreationTime    int64  `json:"creation_time,string"`
	NumParticipants int    `json:"num_participants"`
}

// Client talks to a LiveKit-compatible room service over its JSON twirp
// surface. Every call carries a freshly signed admin token.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

func NewClient(serverURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: httpBaseURL(serverURL),
		tokens:  tokens,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// httpBaseURL rewrites a websocket media URL into the HTTP origin the room
// service listens on.
func httpBaseURL(serverURL string) string {
	u := strings.TrimSpace(serverURL)
	u = strings.TrimRight(u, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	default:
		return u
	}
}

func (c *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	var room Room
	err := c.call(ctx, "CreateRoom", map[string]any{"name": name}, &room)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	return c.call(ctx, "DeleteRoom", map[string]any{"room": name}, nil)
}

func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.call(ctx, "ListRooms", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) call(ctx context.Context, method string, req any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("room service URL is not configured")
	}
	adminToken, err := c.tokens.AdminToken()
	if err != nil {
		return fmt.Errorf("sign admin token: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/twirp/livekit.RoomService/" + method
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+adminToken)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("room service %s status %d: %s", method, res.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
