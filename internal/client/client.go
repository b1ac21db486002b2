// Package client is the REST client for the greenworld backend. All
// failures are mapped onto the errors package taxonomy: transport problems
// become Unavailable, 401 becomes Unauthenticated (and drops the stored
// token), 5xx and malformed bodies become Internal. Callers decide how far
// to degrade; the settlement path never surfaces these to the player.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/storage"
)

const (
	tokenKey       = "auth_token"
	defaultTimeout = 15 * time.Second
	maxBodySize    = 1 << 20
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	Storage storage.Store

	HTTPClient *http.Client
}

type Client struct {
	base    string
	kv      storage.Store
	http    *http.Client
	timeout time.Duration
}

func New(c Config) *Client {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}

	return &Client{
		base:    c.BaseURL,
		kv:      c.Storage,
		http:    c.HTTPClient,
		timeout: c.Timeout,
	}
}

type User struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Coins    int64  `json:"coins"`
}

// GameResult is the backend's settlement response. Both fields are
// optional: the settler falls back locally when either is missing.
type GameResult struct {
	Awarded *int64 `json:"awarded"`
	Coins   *int64 `json:"coins"`
}

type RatingEntry struct {
	Email string  `json:"email"`
	Coins float64 `json:"coins"`
}

type Tree struct {
	SlotID string `json:"slot_id"`
	Level  int    `json:"level"`
}

func (c *Client) Token() (string, bool) {
	return c.kv.Get(tokenKey)
}

func (c *Client) ClearToken() {
	_ = c.kv.Delete(tokenKey)
}

func (c *Client) Register(ctx context.Context, fullName, email, password string) (User, error) {
	var u User
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"full_name": fullName,
		"email":     email,
		"password":  password,
	}, &u)
	return u, err
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}

	if resp.AccessToken == "" {
		return errors.New(errors.CodeInternal, errors.WithMessagef("login: empty token in response"))
	}

	return c.kv.Set(tokenKey, resp.AccessToken)
}

func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &u)
	return u, err
}

// CurrentUserCoins fetches the live server balance.
func (c *Client) CurrentUserCoins(ctx context.Context) (int64, error) {
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return 0, err
	}
	return u.Coins, nil
}

func (c *Client) SubmitGameResult(ctx context.Context, resultID, game string, score, durationSec int) (GameResult, error) {
	var r GameResult
	err := c.do(ctx, http.MethodPost, "/games/result", map[string]any{
		"result_id":    resultID,
		"game":         game,
		"score":        score,
		"duration_sec": durationSec,
	}, &r)
	return r, err
}

func (c *Client) Rating(ctx context.Context) ([]RatingEntry, error) {
	var resp struct {
		Entries []RatingEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/rating", nil, &resp)
	return resp.Entries, err
}

func (c *Client) Trees(ctx context.Context) ([]Tree, error) {
	var resp struct {
		Trees []Tree `json:"trees"`
	}
	err := c.do(ctx, http.MethodGet, "/trees", nil, &resp)
	return resp.Trees, err
}

func (c *Client) BuyTree(ctx context.Context, slotID string) (Tree, error) {
	var t Tree
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/trees/%s/buy", slotID), nil, &t)
	return t, err
}

func (c *Client) UpgradeTree(ctx context.Context, slotID string) (Tree, error) {
	var t Tree
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/trees/%s/upgrade", slotID), nil, &t)
	return t, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Internal(fmt.Errorf("client: marshal request: %w", err))
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return errors.Internal(fmt.Errorf("client: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := c.kv.Get(tokenKey); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("%s %s failed", method, path),
			errors.WithCause(err))
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("%s %s: read response", method, path),
			errors.WithCause(err))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if res.StatusCode == http.StatusUnauthorized {
			c.ClearToken()
		}
		return errors.New(errors.FromHTTPStatus(res.StatusCode),
			errors.WithMessagef("%s", errorDetail(data, res.Status)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Internal(fmt.Errorf("client: decode %s %s: %w", method, path, err))
	}

	return nil
}

// errorDetail pulls a human-readable message out of an error body, falling
// back to the HTTP status line.
func errorDetail(data []byte, status string) string {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Detail != "" {
			return body.Detail
		}
	}

	return status
}
