// Package authpoll detects a login completed in a separately opened web-app
// tab. The tab is outside chatlink's control and never notifies us, so the
// only observable is a pollable snapshot of its storage and DOM; the poller
// tolerates partial intermediate states (token present but redirect still in
// flight, notice visible but token not yet written) with a bounded retry.
package authpoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chatlink/chatlink/internal/backend"
	"github.com/chatlink/chatlink/internal/logging"
)

// ErrNoSignal is returned when the bounded retries are exhausted without a
// completed login. It is not fatal: the user can re-trigger the check.
var ErrNoSignal = errors.New("no login detected")

// Snapshot is one read-only observation of the web-app tab.
type Snapshot struct {
	// Token is the session token from the tab's local storage, if written.
	Token string

	// User is the raw stored user record, if written.
	User json.RawMessage

	// CurrentURL is the tab's location at probe time.
	CurrentURL string

	// IsDashboard reports whether the tab reached the post-login destination.
	IsDashboard bool

	// HasToast/ToastText expose any visible transient notification.
	HasToast  bool
	ToastText string

	// IsAlreadyLoggedIn is a best-effort signal derived from notification
	// text. It only ever shortens the wait for the token, never replaces it.
	IsAlreadyLoggedIn bool
}

// Prober produces snapshots of the web-app tab. A nil snapshot with a nil
// error means no matching tab exists yet.
type Prober interface {
	Probe(ctx context.Context) (*Snapshot, error)
}

// Result is a detected login.
type Result struct {
	Token string

	// User is nil when the tab had no stored user record; the caller must
	// resolve the user through the backend instead.
	User *backend.UserSummary
}

// SleepFunc waits for d or until ctx is done. Injectable for tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultSleep sleeps on the wall clock, honoring cancellation.
func DefaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const (
	// DefaultRetryDelay is the wait between probes while a redirect or token
	// write is assumed to be in flight.
	DefaultRetryDelay = 3 * time.Second

	// DefaultMaxAttempts bounds one Poll call. The user can always trigger
	// another.
	DefaultMaxAttempts = 20
)

// Poller drives repeated probes until a login is detected or attempts run out.
type Poller struct {
	prober      Prober
	sleep       SleepFunc
	retryDelay  time.Duration
	maxAttempts int
}

// Option configures a Poller.
type Option func(*Poller)

// WithSleep replaces the clock (tests).
func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) { p.sleep = fn }
}

// WithRetryDelay overrides the delay between probes.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Poller) { p.retryDelay = d }
}

// WithMaxAttempts overrides the attempt bound.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

// New creates a Poller over the given prober.
func New(prober Prober, opts ...Option) *Poller {
	p := &Poller{
		prober:      prober,
		sleep:       DefaultSleep,
		retryDelay:  DefaultRetryDelay,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll probes until success, exhaustion, or cancellation. report receives an
// actionable status line on every iteration so the user always knows a manual
// re-trigger is possible. Probe failures (tab missing, page mid-load,
// cross-origin) are "not yet available", never errors.
func (p *Poller) Poll(ctx context.Context, report func(status string)) (*Result, error) {
	if report == nil {
		report = func(string) {}
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		snap, err := p.prober.Probe(ctx)
		if err != nil {
			logging.Debugf("authpoll: probe attempt %d: %v", attempt, err)
			snap = nil
		}

		switch {
		case snap == nil:
			report("Waiting for the login tab to open...")

		case snap.Token != "" && snap.IsDashboard:
			report("Login detected.")
			return &Result{Token: snap.Token, User: decodeUser(snap.User)}, nil

		case snap.Token != "":
			// Token written but the tab still shows the login page: a
			// client-side redirect is assumed to be in flight.
			report("Login detected, waiting for the page to finish redirecting...")

		case snap.IsAlreadyLoggedIn:
			report("You appear to be logged in already, waiting for the session to appear...")

		default:
			report("No login detected yet. Complete the login in the browser tab.")
		}

		if attempt == p.maxAttempts {
			break
		}
		if err := p.sleep(ctx, p.retryDelay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d checks", ErrNoSignal, p.maxAttempts)
}

func decodeUser(raw json.RawMessage) *backend.UserSummary {
	if len(raw) == 0 {
		return nil
	}
	var user backend.UserSummary
	if err := json.Unmarshal(raw, &user); err != nil {
		logging.Debugf("authpoll: stored user record unreadable: %v", err)
		return nil
	}
	if user.ID == 0 && user.Email == "" {
		return nil
	}
	return &user
}
