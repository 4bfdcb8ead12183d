// Package client is the HTTP client for the identity service, used by
// spawners to resolve uids and gids before launching containers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SpawnInfo mirrors the service response.
type SpawnInfo struct {
	UID         int    `json:"uid"`
	GID         int    `json:"gid"`
	AllUserGids []int  `json:"all_user_gids"`
	Username    string `json:"username"`
	Groupname   string `json:"groupname"`
	EtcPasswd   string `json:"etc_passwd"`
	EtcGroup    string `json:"etc_group"`
}

const (
	defaultTimeout = 30 * time.Second
	cacheSize      = 1024
)

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	cache   *lru.Cache[string, SpawnInfo]
}

type Option func(*Client)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	cache, err := lru.New[string, SpawnInfo](cacheSize)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		cache:   cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CheckAlive pings the service health endpoint.
func (c *Client) CheckAlive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check-alive", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("check-alive returned %s", resp.Status)
	}
	return nil
}

type spawnInfoRequest struct {
	UUID       string   `json:"uuid"`
	Ezid       string   `json:"ezid"`
	ActiveTeam string   `json:"active_team"`
	Teams      []string `json:"teams"`
}

// GetSpawnInfo resolves the identities with the service, bypassing the
// local cache.
func (c *Client) GetSpawnInfo(ctx context.Context, uuid, ezid, activeTeam string, teams []string) (SpawnInfo, error) {
	body, err := json.Marshal(spawnInfoRequest{
		UUID: uuid, Ezid: ezid, ActiveTeam: activeTeam, Teams: teams,
	})
	if err != nil {
		return SpawnInfo{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get-spawn-info", bytes.NewReader(body))
	if err != nil {
		return SpawnInfo{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return SpawnInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SpawnInfo{}, decodeError(resp)
	}
	var info SpawnInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return SpawnInfo{}, fmt.Errorf("decoding spawn info: %w", err)
	}
	return info, nil
}

// CachedGetSpawnInfo is GetSpawnInfo behind an LRU keyed on the full
// parameter tuple. Suitable for spawners that re-resolve the same user
// repeatedly within one session.
func (c *Client) CachedGetSpawnInfo(ctx context.Context, uuid, ezid, activeTeam string, teams []string) (SpawnInfo, error) {
	key := cacheKey(uuid, ezid, activeTeam, teams)
	if info, ok := c.cache.Get(key); ok {
		return info, nil
	}
	info, err := c.GetSpawnInfo(ctx, uuid, ezid, activeTeam, teams)
	if err != nil {
		return SpawnInfo{}, err
	}
	c.cache.Add(key, info)
	return info, nil
}

// ClearCache drops every cached spawn info, forcing the next lookup to
// hit the service.
func (c *Client) ClearCache() {
	c.cache.Purge()
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func cacheKey(uuid, ezid, activeTeam string, teams []string) string {
	return strings.Join(append([]string{uuid, ezid, activeTeam}, teams...), "\x00")
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return fmt.Errorf("service returned %s: %s", resp.Status, envelope.Error)
	}
	return fmt.Errorf("service returned %s", resp.Status)
}
