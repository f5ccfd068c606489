// Package upstream is the console's client for the platform API: it forwards
// page requests with the right actor's bearer token attached and implements
// the login and permission endpoints the session core depends on.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AuthPath is the authorization endpoint. Both actor classes currently share
// the one path; the identity object in the response tells them apart.
const AuthPath = "/api/admin/login"

// Permission endpoints for the employee actor. The second is consulted only
// when the first yields an empty list.
const (
	permissionsPath         = "/api/employee/me"
	permissionsFallbackPath = "/api/me/permissions"
)

// Client talks to the platform API on behalf of console sessions.
type Client struct {
	base   string
	http   *http.Client
	direct *http.Client
	logger *slog.Logger
}

// NewClient builds a Client for the given API origin. Trailing slashes on the
// base URL are trimmed. Page-scoped calls go through the auth transport;
// background permission fetches bypass it and carry an explicit token.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics Recorder) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Transport: NewTransport(nil, logger, metrics), Timeout: timeout},
		direct: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.base
}

// Login posts credentials to the authorization endpoint. The returned payload
// still needs token and identity extraction; a nil payload always comes with
// an *AuthError carrying the upstream message when one was given.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginPayload, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+AuthPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&failure)
		return nil, &AuthError{Status: res.StatusCode, Message: failure.Error}
	}

	var payload LoginPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, &AuthError{Status: res.StatusCode, Err: err}
	}
	return &payload, nil
}

// Forward issues a page-scoped request against the platform API and returns
// the raw response. Auth side effects (session teardown, pending navigation)
// have already been applied by the transport when this returns; callers must
// check the session's pending redirect before relaying the response.
func (c *Client) Forward(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// FetchPermissions revalidates an employee's permission list. It carries the
// token explicitly and skips the page transport: refresh runs in the
// background, detached from any view. A transport failure is an error; a
// non-2xx response from both endpoints resolves to an empty list, which the
// caller commits as-is (fail closed).
func (c *Client) FetchPermissions(ctx context.Context, tok string) ([]string, error) {
	perms, err := c.fetchPermissionList(ctx, permissionsPath, tok)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		perms, err = c.fetchPermissionList(ctx, permissionsFallbackPath, tok)
		if err != nil {
			return nil, err
		}
	}
	return perms, nil
}

func (c *Client) fetchPermissionList(ctx context.Context, path, tok string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	res, err := c.direct.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, nil
	}

	var envelope struct {
		Perms       []string `json:"perms"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if len(envelope.Perms) > 0 {
		return envelope.Perms, nil
	}
	return envelope.Permissions, nil
}
