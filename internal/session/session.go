// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package session owns the login/logout lifecycle and ties it to tracking:
// logging in persists the session and starts the tracking orchestrator,
// logging out tears both down, and a process resume reconciles whatever the
// store says should be happening with what actually is.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jahanasherin1/SafeNet-sub000/internal/logging"
	"github.com/jahanasherin1/SafeNet-sub000/internal/queue"
	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

// ErrNoSession is returned when an operation needs a logged-in session.
var ErrNoSession = errors.New("no active session")

// ErrTokenExpired is returned when the stored or presented token is past its
// expiry.
var ErrTokenExpired = errors.New("session token expired")

// Session is the persisted login record.
type Session struct {
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LoggedInAt time.Time `json:"loggedInAt"`
}

// Expired reports whether the session token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Tracker is the slice of the tracking orchestrator the controller drives.
type Tracker interface {
	Start(ctx context.Context) (bool, error)
	Stop()
	EnsureRunning(ctx context.Context) bool
	ShouldBeTracking() bool
	StatusString() string
}

// Controller manages the session record and the tracking lifecycle bound to
// it.
type Controller struct {
	st   *store.Store
	orch Tracker
	q    *queue.Queue
}

// NewController creates a session controller.
func NewController(st *store.Store, orch Tracker, q *queue.Queue) *Controller {
	return &Controller{st: st, orch: orch, q: q}
}

// Login persists the session and starts tracking. The token is issued and
// signed by the backend; the agent never holds the signing key, so it parses
// the claims unverified purely to learn the expiry — authenticity is the
// backend's problem on every request it receives.
//
// Returns whether tracking actually started. A permission refusal leaves the
// session logged in with tracking off; the UI re-requests and retries.
func (c *Controller) Login(ctx context.Context, email, name, token string) (bool, error) {
	expiresAt, err := tokenExpiry(token)
	if err != nil {
		return false, fmt.Errorf("parse session token: %w", err)
	}
	now := time.Now()
	if !expiresAt.IsZero() && now.After(expiresAt) {
		return false, ErrTokenExpired
	}

	sess := Session{
		Email:      email,
		Name:       name,
		Token:      token,
		ExpiresAt:  expiresAt,
		LoggedInAt: now.UTC(),
	}
	if err := c.st.SetJSON(store.KeySession, sess); err != nil {
		return false, fmt.Errorf("persist session: %w", err)
	}
	logging.Info().Str("email", email).Time("expires_at", expiresAt).Msg("session started")

	started, err := c.orch.Start(ctx)
	if err != nil {
		// The session stands; tracking can be retried on resume or by
		// the next heartbeat once the platform recovers.
		return false, fmt.Errorf("start tracking: %w", err)
	}
	return started, nil
}

// Logout stops tracking and clears the session record. Safe to call when
// nobody is logged in.
func (c *Controller) Logout() error {
	c.orch.Stop()
	if err := c.st.Remove(store.KeySession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	logging.Info().Msg("session ended")
	return nil
}

// HandleResume reconciles persisted intent with reality after the process
// comes back: an expired session is cleared outright, a live one with
// tracking intent gets tracking restarted if it is not already running.
// Returns whether tracking is active afterwards.
func (c *Controller) HandleResume(ctx context.Context) (bool, error) {
	sess, ok, err := c.Current()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if sess.Expired(time.Now()) {
		logging.Warn().Str("email", sess.Email).Msg("stored session expired, logging out")
		if err := c.Logout(); err != nil {
			return false, err
		}
		return false, ErrTokenExpired
	}

	if c.orch.ShouldBeTracking() {
		c.orch.EnsureRunning(ctx)
	}
	return c.orch.ShouldBeTracking(), nil
}

// Current returns the persisted session, if any.
func (c *Controller) Current() (Session, bool, error) {
	var sess Session
	found, err := c.st.GetJSON(store.KeySession, &sess)
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return sess, found, nil
}

// Active reports whether a non-expired session is present.
func (c *Controller) Active() bool {
	sess, ok, err := c.Current()
	return err == nil && ok && !sess.Expired(time.Now())
}

// Status is the session summary for an embedding UI.
type Status struct {
	TrackingActive  bool   `json:"trackingActive"`
	QueuedLocations int    `json:"queuedLocations"`
	Diagnostics     string `json:"diagnostics"`
}

// Status summarizes the session's tracking and queue state.
func (c *Controller) Status() Status {
	s := Status{
		TrackingActive: c.orch.ShouldBeTracking(),
		Diagnostics:    c.orch.StatusString(),
	}
	if c.q != nil {
		s.QueuedLocations = c.q.Len()
	}
	return s
}

// PersistedEmail returns the email of the stored session, or "". The tracking
// orchestrator uses this to stamp samples after a restart without holding a
// reference back to the controller.
func PersistedEmail(st *store.Store) func() string {
	return func() string {
		var sess Session
		found, err := st.GetJSON(store.KeySession, &sess)
		if err != nil || !found {
			return ""
		}
		return sess.Email
	}
}

// tokenExpiry extracts the exp claim without verifying the signature. A token
// without an exp claim yields a zero time, meaning no client-side expiry.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
