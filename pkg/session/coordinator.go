package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/HaejunJang/airbng/pkg/token"
)

// retriedKey marks a request that has already been replayed once after a
// renewal, so a second 401 is returned to the caller instead of looping.
type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// renewalResult is delivered to every caller parked on an in-flight renewal.
type renewalResult struct {
	raw string
	err error
}

// Coordinator is an http.RoundTripper that attaches the current bearer
// credential to outbound requests and serializes renewal when the backend
// reports an authorization failure.
//
// For any burst of concurrent 401s exactly one reissue call is made; the
// remaining callers are parked as waiters and replayed once the renewal
// settles. Transport-level errors never enter the renewal path.
type Coordinator struct {
	tokens *token.Store
	base   http.RoundTripper
	logger *slog.Logger

	// reissue performs the actual renewal call and returns the new raw
	// bearer value.
	reissue func(ctx context.Context) (string, error)

	// onSessionLost is invoked exactly once per failed renewal, after the
	// token store has been cleared and all waiters rejected.
	onSessionLost func()

	mu       sync.Mutex
	inflight bool
	waiters  []chan renewalResult
}

// NewCoordinator builds a Coordinator over base. A nil base falls back to
// http.DefaultTransport.
func NewCoordinator(
	tokens *token.Store,
	base http.RoundTripper,
	reissue func(ctx context.Context) (string, error),
	logger *slog.Logger,
) *Coordinator {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		tokens:  tokens,
		base:    base,
		reissue: reissue,
		logger:  logger,
	}
}

// SetSessionLostHandler registers the callback fired when a renewal fails
// terminally. Typically the UI redirects to login from here.
func (c *Coordinator) SetSessionLostHandler(fn func()) {
	c.mu.Lock()
	c.onSessionLost = fn
	c.mu.Unlock()
}

// RoundTrip implements http.RoundTripper.
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(c.authorize(req))
	if err != nil {
		// No response at all. Propagate directly, never renew on this.
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if isRetried(req.Context()) {
		// Already replayed once, hand the 401 back.
		return resp, nil
	}

	resp.Body.Close()

	if _, err := c.renew(req.Context()); err != nil {
		return nil, err
	}

	retry, err := cloneForRetry(req)
	if err != nil {
		return nil, err
	}
	return c.RoundTrip(retry)
}

// authorize returns a shallow clone of req carrying the current bearer
// credential, or req itself when no live credential is present.
func (c *Coordinator) authorize(req *http.Request) *http.Request {
	cred, ok := c.tokens.Get()
	if !ok {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+cred.Raw)
	return out
}

// renew performs a single-flight credential renewal. The caller that finds
// no renewal in flight owns the reissue call; everyone else parks on a
// waiter channel and receives whatever the owner's renewal produced. The
// renewal always settles before any waiter is resolved.
func (c *Coordinator) renew(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.inflight {
		ch := make(chan renewalResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.raw, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.inflight = true
	c.mu.Unlock()

	// Detach from the owning request's cancellation: the renewal serves
	// every parked caller, not just the request that happened to start it.
	raw, err := c.reissue(context.WithoutCancel(ctx))
	if err != nil {
		var rerr *RenewalError
		if !errors.As(err, &rerr) {
			err = &RenewalError{Err: err}
		}
		c.tokens.Clear()
		c.logger.Warn("credential renewal failed", "error", err)
	} else {
		c.tokens.Set(raw)
		c.logger.Debug("credential renewed")
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inflight = false
	lost := c.onSessionLost
	c.mu.Unlock()

	res := renewalResult{raw: raw, err: err}
	for _, ch := range waiters {
		ch <- res
	}

	if err != nil {
		if lost != nil {
			lost()
		}
		return "", err
	}
	return raw, nil
}

// cloneForRetry rebuilds req for its single post-renewal replay. Requests
// with a body need GetBody so the payload can be re-read.
func cloneForRetry(req *http.Request) (*http.Request, error) {
	out := req.Clone(markRetried(req.Context()))
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, ErrRequestNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}
