// Package client talks to the DeepSafe HTTP API. Client implements
// progression.Repository so a Store can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
)

// Session is the token pair returned by sign-in, sign-up and refresh.
type Session struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Profile      *model.Profile `json:"profile"`
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithToken sets the initial access token.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the access token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	OK      bool            `json:"ok"`
	Value   json.RawMessage `json:"value"`
	Kind    result.Kind     `json:"kind"`
	Message string          `json:"message"`
}

// do sends a request and decodes the envelope value into out. A failed
// envelope is returned as a *result.Error with the server's kind.
func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case json.RawMessage:
			reader = bytes.NewReader(b)
		default:
			buf, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to encode request: %w", err)
			}
			reader = bytes.NewReader(buf)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result.Wrap(result.KindBackend, "server unreachable", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return result.Wrap(result.KindBackend, fmt.Sprintf("unexpected response (status %d)", resp.StatusCode), err)
	}
	if !env.OK {
		kind := env.Kind
		if !kind.Valid() {
			kind = result.KindBackend
		}
		return result.New(kind, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Value, out); err != nil {
			return result.Wrap(result.KindBackend, "failed to decode response", err)
		}
	}
	return nil
}

// ========== Auth ==========

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// SignUp registers an account and adopts its access token.
func (c *Client) SignUp(ctx context.Context, email, username, password string) (*Session, error) {
	return c.session(ctx, "/v1/auth/signup", credentials{Email: email, Username: username, Password: password})
}

// SignIn authenticates with a password and adopts the access token.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return c.session(ctx, "/v1/auth/signin", credentials{Email: email, Password: password})
}

// Refresh rotates the refresh token and adopts the new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.session(ctx, "/v1/auth/refresh", map[string]string{"refresh_token": refreshToken})
}

// SignOut revokes a refresh token and forgets the access token.
func (c *Client) SignOut(ctx context.Context, refreshToken string) error {
	err := c.do(ctx, http.MethodPost, "/v1/auth/signout", map[string]string{"refresh_token": refreshToken}, nil, nil)
	if err == nil {
		c.SetToken("")
	}
	return err
}

func (c *Client) session(ctx context.Context, path string, body any) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, path, body, nil, &sess); err != nil {
		return nil, err
	}
	c.SetToken(sess.AccessToken)
	return &sess, nil
}

// Me returns the signed-in profile.
func (c *Client) Me(ctx context.Context) (*model.Profile, error) {
	var p model.Profile
	if err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ========== Progression ==========

// FetchProgress returns the signed-in user's progress. The API scopes
// progress to the token, so userID is not sent.
func (c *Client) FetchProgress(ctx context.Context, _ string) (model.Progress, error) {
	var p model.Progress
	err := c.do(ctx, http.MethodGet, "/v1/me/progress", nil, nil, &p)
	return p, err
}

// SaveProgress writes a patch guarded by the expected version.
func (c *Client) SaveProgress(ctx context.Context, _ string, patch model.ProgressPatch, version int64) (model.Progress, error) {
	var p model.Progress
	header := http.Header{"If-Match": {strconv.Quote(strconv.FormatInt(version, 10))}}
	err := c.do(ctx, http.MethodPatch, "/v1/me/progress", patch, header, &p)
	return p, err
}

// BadgeCatalog returns every badge.
func (c *Client) BadgeCatalog(ctx context.Context) ([]model.Badge, error) {
	var badges []model.Badge
	err := c.do(ctx, http.MethodGet, "/v1/badges", nil, nil, &badges)
	return badges, err
}

// PurchaseItem buys one unit of a shop item.
func (c *Client) PurchaseItem(ctx context.Context, _ string, itemID string) (model.PurchaseOutcome, error) {
	var out model.PurchaseOutcome
	err := c.do(ctx, http.MethodPost, "/v1/shop/items/"+itemID+"/purchase", nil, nil, &out)
	return out, err
}

// LoginResult is the daily login outcome.
type LoginResult struct {
	Progress   model.Progress `json:"progress"`
	Rewarded   bool           `json:"rewarded"`
	Reward     int64          `json:"reward"`
	FreezeUsed bool           `json:"freeze_used"`
	NewBadges  []string       `json:"new_badges"`
}

// DailyLogin records today's login.
func (c *Client) DailyLogin(ctx context.Context) (*LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/v1/me/login", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ========== Shop ==========

// ShopItems returns the catalog.
func (c *Client) ShopItems(ctx context.Context) ([]model.ShopItem, error) {
	var items []model.ShopItem
	err := c.do(ctx, http.MethodGet, "/v1/shop/items", nil, nil, &items)
	return items, err
}

// Inventory returns the signed-in user's items.
func (c *Client) Inventory(ctx context.Context) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := c.do(ctx, http.MethodGet, "/v1/me/inventory", nil, nil, &items)
	return items, err
}

// ========== Backup ==========

// ExportBackup downloads a full backup document.
func (c *Client) ExportBackup(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/v1/admin/backup", nil, nil, &raw)
	return raw, err
}

// RestoreBackup uploads a document produced by ExportBackup.
func (c *Client) RestoreBackup(ctx context.Context, doc json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/restore", doc, nil, nil)
}
