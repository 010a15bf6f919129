// Package backend is the HTTP client for the chatlink account API. All calls
// except Authenticate carry the session token as a bearer credential.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors callers branch on.
var (
	// ErrInvalidCredentials covers 401/403 from Authenticate and an expired
	// or revoked token (401) on authenticated calls.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden is a 403 on an authenticated call: the token is valid but
	// the resource is off limits.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable covers transport failures and 5xx responses. The caller
	// may suggest a retry; the client never retries on its own.
	ErrUnavailable = errors.New("backend unavailable")
)

// TokenSource supplies the current session token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the chatlink backend API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New creates a client for the API at baseURL. tokens may be nil for a client
// that only authenticates.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
}

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	AccessToken string       `json:"access_token"`
	User        *UserSummary `json:"user"`
}

// Authenticate exchanges credentials for a session token. A 2xx response
// without an access_token is treated as an error, never as success. The user
// may be nil even on success; callers fall back to Me.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, *UserSummary, error) {
	body, err := json.Marshal(authenticateRequest{Email: email, Password: password})
	if err != nil {
		return "", nil, fmt.Errorf("encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authenticate", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, serverMessage(resp.Body))
	case resp.StatusCode >= 500:
		return "", nil, fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", nil, fmt.Errorf("authenticate: unexpected status %d", resp.StatusCode)
	}

	var auth authenticateResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", nil, fmt.Errorf("decode authenticate response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", nil, fmt.Errorf("authenticate: response missing access_token")
	}
	return auth.AccessToken, auth.User, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*UserSummary, error) {
	var user UserSummary
	if err := c.getJSON(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Organizations lists the organizations the user belongs to. A 403 means the
// user simply has none and maps to an empty list, not an error.
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	err := c.getJSON(ctx, "/organizations", &orgs)
	if errors.Is(err, ErrForbidden) {
		return []Organization{}, nil
	}
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

// OrganizationAgents lists the agents owned by one organization.
func (c *Client) OrganizationAgents(ctx context.Context, orgID int64) ([]Agent, error) {
	var agents []Agent
	if err := c.getJSON(ctx, fmt.Sprintf("/organizations/%d/agents", orgID), &agents); err != nil {
		return nil, err
	}
	// Some deployments omit organization_id on the nested route.
	for i := range agents {
		if agents[i].OrganizationID == 0 {
			agents[i].OrganizationID = orgID
		}
	}
	return agents, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, serverMessage(resp.Body))
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, serverMessage(resp.Body))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// serverMessage extracts a human-readable message from an error body.
func serverMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "request rejected"
	}
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return strings.TrimSpace(string(data))
}
