// Package client talks to a StayKeep server over its REST surface. Its
// collections, feed and claimer implement the same entity contracts as the
// in-process store, so core components run unchanged against either.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/models"
)

const defaultTimeout = 10 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request except the event stream.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client is a StayKeep API client.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	timeout time.Duration
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:8080". token is sent as a bearer credential when set.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported server url %q", baseURL)
	}
	c := &Client{base: u, token: token, http: &http.Client{}, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = u.Path + "/api/" + strings.TrimPrefix(path, "/")
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Error statuses are mapped back onto the apperr sentinels.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("client: encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, statusError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("client: decode %s: %w", req.URL.Path, err)
		}
	}
	return resp.StatusCode, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	msg := fmt.Sprintf("server returned %d: %s", resp.StatusCode, body.Error)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	case http.StatusBadRequest:
		return apperr.Validation(errors.New(body.Error))
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, apperr.ErrAlreadyExists)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, apperr.ErrUnauthorized)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, apperr.ErrForbidden)
	default:
		return errors.New("client: " + msg)
	}
}

// Me describes the authenticated caller.
type Me struct {
	User    identity.User   `json:"user"`
	Profile *models.Profile `json:"profile,omitempty"`
}

// Me returns the caller as the server sees it.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	_, err := c.do(ctx, http.MethodGet, "me", nil, nil, &me)
	return me, err
}

// ProfileByUserID resolves the caller's own profile. Other users' profiles
// are not visible through this call.
func (c *Client) ProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	if me.Profile == nil || me.User.UserID != userID {
		return nil, fmt.Errorf("client: profile for %s: %w", userID, apperr.ErrNotFound)
	}
	return me.Profile, nil
}

// User returns the caller as an identity user with its profile filled in.
func (c *Client) User(ctx context.Context) (*identity.User, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	u := me.User
	if u.ProfileID == "" && me.Profile != nil {
		u.ProfileID = me.Profile.ID
	}
	return &u, nil
}
