package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// DefaultEFPBaseURL is the public Ethereum Follow Protocol API.
const DefaultEFPBaseURL = "https://api.ethfollow.xyz/api/v1"

// EFPStats is a user's follower graph summary.
type EFPStats struct {
	Followers int64
	Following int64
}

// EFPClient reads the Ethereum Follow Protocol social graph.
type EFPClient interface {
	Stats(ctx context.Context, user string) (EFPStats, error)
	IsFollowing(ctx context.Context, follower, target string) (bool, error)
}

// EFPConfig configures the HTTP client.
type EFPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPEFPClient talks to the EFP REST API.
type HTTPEFPClient struct {
	cfg    EFPConfig
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPEFPClient returns a client for cfg.
func NewHTTPEFPClient(cfg EFPConfig, httpClient *http.Client, logger *slog.Logger) *HTTPEFPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEFPBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPEFPClient{cfg: cfg, http: httpClient, logger: logger}
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

type statsResponse struct {
	FollowersCount flexInt `json:"followers_count"`
	FollowingCount flexInt `json:"following_count"`
}

type buttonStateResponse struct {
	State struct {
		Follow bool `json:"follow"`
		Block  bool `json:"block"`
		Mute   bool `json:"mute"`
	} `json:"state"`
}

// Stats returns follower and following counts for user (address or ENS name).
func (c *HTTPEFPClient) Stats(ctx context.Context, user string) (EFPStats, error) {
	var resp statsResponse
	found, err := c.get(ctx, "stats", "/users/"+url.PathEscape(user)+"/stats", &resp)
	if err != nil || !found {
		return EFPStats{}, err
	}
	return EFPStats{Followers: int64(resp.FollowersCount), Following: int64(resp.FollowingCount)}, nil
}

// IsFollowing reports whether follower follows target and has not blocked
// or muted it.
func (c *HTTPEFPClient) IsFollowing(ctx context.Context, follower, target string) (bool, error) {
	var resp buttonStateResponse
	p := "/users/" + url.PathEscape(follower) + "/" + url.PathEscape(target) + "/buttonState"
	found, err := c.get(ctx, "buttonState", p, &resp)
	if err != nil || !found {
		return false, err
	}
	return resp.State.Follow && !resp.State.Block && !resp.State.Mute, nil
}

// get returns found=false for 404, which EFP uses for users without a list.
func (c *HTTPEFPClient) get(ctx context.Context, op, p string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+p, nil)
	if err != nil {
		return false, fmt.Errorf("build efp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, gaterr.Provider("efp", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, gaterr.Provider("efp", op, fmt.Errorf("upstream status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("efp request rejected", "op", op, "status", resp.StatusCode, "body", string(body))
		return false, fmt.Errorf("efp %s: status %d", op, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, gaterr.Provider("efp", op, fmt.Errorf("decode response: %w", err))
	}
	return true, nil
}
