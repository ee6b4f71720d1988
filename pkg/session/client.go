// Package session implements the authenticated HTTP surface of the AirBnG
// client: login/logout/reissue against the backend plus a Coordinator that
// transparently renews the bearer credential on authorization failures.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/HaejunJang/airbng/pkg/slogx"
	"github.com/HaejunJang/airbng/pkg/token"
)

// Client talks to the AirBnG backend. Unauthenticated endpoints (login,
// reissue) go through HTTPClient directly; authenticated calls should use
// the client returned by Authorized, whose transport is the Coordinator.
//
// HTTPClient carries a cookie jar: the reissue endpoint authenticates via
// the durable session cookie set at login, not via the bearer token.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	tokens      *token.Store
	coordinator *Coordinator
	authorized  *http.Client
	logger      *slog.Logger
}

// NewClient builds a Client around the given token store.
func NewClient(baseURL string, tokens *token.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	jar, _ := cookiejar.New(nil)
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Jar:     jar,
	}

	c := &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}

	c.coordinator = NewCoordinator(tokens, slogx.Transport(logger, nil), c.Reissue, logger)
	c.authorized = &http.Client{
		Transport: c.coordinator,
		Jar:       jar,
		// No client timeout here: authenticated calls carry their own
		// context deadlines and a renewal may extend a single round trip.
	}

	return c
}

// Tokens exposes the credential store backing this client.
func (c *Client) Tokens() *token.Store { return c.tokens }

// Authorized returns the http.Client UI collaborators use for every
// authenticated call. Bearer attachment and 401-driven renewal are handled
// by its transport.
func (c *Client) Authorized() *http.Client { return c.authorized }

// Coordinator exposes the refresh coordinator, mainly for registering the
// session-lost handler.
func (c *Client) Coordinator() *Coordinator { return c.coordinator }

// SetSessionLostHandler registers fn to run when a renewal fails terminally.
func (c *Client) SetSessionLostHandler(fn func()) {
	c.coordinator.SetSessionLostHandler(fn)
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates the member. On success the backend sets the durable
// session cookie and returns the bearer credential in the Authorization
// response header, which is stored for subsequent authenticated calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.url("/login"),
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if err := parseErrorResponse(resp); err != nil {
		return err
	}

	raw := resp.Header.Get("Authorization")
	if raw == "" {
		return fmt.Errorf("login response missing authorization header")
	}
	c.tokens.Set(raw)

	c.logger.Info("logged in", "member_id", c.tokens.SubjectID())
	return nil
}

// Logout ends the session. The request goes through the authorized client
// so the backend sees which session to terminate. The call is best-effort:
// local credential state is cleared regardless of what the backend answers.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/logout"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.authorized.Do(req)
	if err != nil {
		c.logger.Warn("logout request failed, clearing local session anyway", "error", err)
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// Reissue asks the backend for a fresh bearer credential. The call carries
// no body and no bearer: it authenticates through the durable session
// cookie. The new credential arrives in the Authorization response header.
// Any non-2xx answer means the session cannot be renewed.
func (c *Client) Reissue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/reissue"), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &RenewalError{StatusCode: resp.StatusCode}
	}

	raw := resp.Header.Get("Authorization")
	if raw == "" {
		return "", fmt.Errorf("reissue response missing authorization header")
	}
	return raw, nil
}
