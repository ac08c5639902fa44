// Package remote is the agent-side client for the anchord backend: the
// session store over HTTP and the change feed over WebSocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anchorhq/anchor/internal/domain"
)

// CredentialSource supplies the cached credential for outgoing
// requests. Returns (nil, nil) when no user is signed in.
type CredentialSource interface {
	Credential(ctx context.Context) (*domain.Credential, error)
}

// Client talks to an anchord server. It implements engine.SessionStore
// and, via Subscribe, listener.Feed.
type Client struct {
	baseURL string
	httpc   *http.Client
	creds   CredentialSource
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, creds CredentialSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
	}
}

// Register creates an account on the server.
func (c *Client) Register(ctx context.Context, email, displayName, password string) error {
	body := map[string]string{"email": email, "display_name": displayName, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/register", body, nil, false)
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.Credential, error) {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp, false); err != nil {
		return nil, err
	}
	return &domain.Credential{UserID: resp.UserID, Token: resp.Token}, nil
}

// QueryActive returns the user's most recent active session, or
// domain.ErrNotFound when there is none.
func (c *Client) QueryActive(ctx context.Context) (*domain.Session, error) {
	var session domain.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/active", nil, &session, true); err != nil {
		return nil, err
	}
	return &session, nil
}

// Insert stores a new active session row.
func (c *Client) Insert(ctx context.Context, session *domain.Session) error {
	body := map[string]any{
		"id":         session.ID,
		"mode_id":    session.ModeID,
		"mode_name":  session.ModeName,
		"websites":   session.Websites,
		"started_at": session.StartedAt.UTC().Format(time.RFC3339),
	}
	return c.do(ctx, http.MethodPost, "/api/sessions", body, session, true)
}

// DeactivateActive marks all of the user's active rows inactive.
func (c *Client) DeactivateActive(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/deactivate", struct{}{}, nil, true)
}

// DeleteSession removes a session row; the cascade path for mode deletion.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil, true)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrConflict
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: %s", method, path, readError(resp.Body, resp.StatusCode))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if cred == nil {
		return "", domain.ErrUnauthenticated
	}
	return cred.Token, nil
}

func readError(body io.Reader, status int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(status)
}
