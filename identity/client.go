// Package identity is a client for the identity provider's admin REST API
// (GoTrue-compatible: /auth/v1/admin/users).
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	adminUsersPath = "/auth/v1/admin/users"
	DefaultPerPage = 1000
	DefaultMaxPage = 50
)

var ErrNotConfigured = errors.New("IDENTITY_URL and IDENTITY_SERVICE_KEY are required")

// User is an identity-provider account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type CreateUserParams struct {
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

type UpdateUserParams struct {
	Password     string         `json:"password,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity admin api: %d %s", e.Status, e.Message)
}

type Config struct {
	URL        string
	ServiceKey string
	// MaxPages bounds FindUserByEmail; each page holds PerPage users.
	MaxPages int
	PerPage  int
	Timeout  time.Duration
}

// ConfigFromEnv reads IDENTITY_URL, IDENTITY_SERVICE_KEY and IDENTITY_MAX_PAGES.
func ConfigFromEnv() Config {
	cfg := Config{
		URL:        strings.TrimSpace(os.Getenv("IDENTITY_URL")),
		ServiceKey: strings.TrimSpace(os.Getenv("IDENTITY_SERVICE_KEY")),
		MaxPages:   DefaultMaxPage,
		PerPage:    DefaultPerPage,
		Timeout:    30 * time.Second,
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("IDENTITY_MAX_PAGES"))); err == nil && n > 0 {
		cfg.MaxPages = n
	}
	return cfg
}

type Client struct {
	cfg    Config
	base   string
	client *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid IDENTITY_URL: %w", err)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPage
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.URL, "/") + adminUsersPath,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ListUsers returns one page of users (pages start at 1).
func (c *Client) ListUsers(ctx context.Context, page int, perPage int) ([]User, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var out struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, c.base+"?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// FindUserByEmail pages through the user list; the admin API has no lookup by email.
// It returns nil when no user matches within MaxPages pages.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	for page := 1; page <= c.cfg.MaxPages; page++ {
		users, err := c.ListUsers(ctx, page, c.cfg.PerPage)
		if err != nil {
			return nil, err
		}
		for i := range users {
			if strings.EqualFold(users[i].Email, email) {
				return &users[i], nil
			}
		}
		if len(users) < c.cfg.PerPage {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("user %s not found within %d pages of %d", email, c.cfg.MaxPages, c.cfg.PerPage)
}

func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, c.base, params, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateUserById(ctx context.Context, id string, params UpdateUserParams) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPut, c.base+"/"+url.PathEscape(id), params, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.base+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", c.cfg.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// errorMessage picks the human readable part of an error body.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"msg", "message", "error_description", "error"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}
