// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jahanasherin1/SafeNet-sub000/internal/store"
)

// fakeTracker records orchestrator calls.
type fakeTracker struct {
	startCalls  int
	stopCalls   int
	ensureCalls int
	startResult bool
	startErr    error
	intent      bool
}

func (f *fakeTracker) Start(context.Context) (bool, error) {
	f.startCalls++
	if f.startErr == nil && f.startResult {
		f.intent = true
	}
	return f.startResult, f.startErr
}

func (f *fakeTracker) Stop() {
	f.stopCalls++
	f.intent = false
}

func (f *fakeTracker) EnsureRunning(context.Context) bool {
	f.ensureCalls++
	return false
}

func (f *fakeTracker) ShouldBeTracking() bool { return f.intent }

func (f *fakeTracker) StatusString() string { return "test" }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// signToken builds a backend-style HS256 token. The agent only reads the
// claims, so the signing key is irrelevant here.
func signToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"email": "user@example.com"}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestLoginPersistsSessionAndStartsTracking(t *testing.T) {
	st := openTestStore(t)
	tracker := &fakeTracker{startResult: true}
	ctrl := NewController(st, tracker, nil)

	expiry := time.Now().Add(time.Hour)
	started, err := ctrl.Login(context.Background(), "user@example.com", "Asha", signToken(t, expiry))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !started {
		t.Error("expected tracking started")
	}
	if tracker.startCalls != 1 {
		t.Errorf("expected 1 start call, got %d", tracker.startCalls)
	}

	sess, ok, err := ctrl.Current()
	if err != nil || !ok {
		t.Fatalf("current: ok=%v err=%v", ok, err)
	}
	if sess.Email != "user@example.com" || sess.Name != "Asha" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.ExpiresAt.Unix() != expiry.Unix() {
		t.Errorf("expected expiry %v, got %v", expiry.Unix(), sess.ExpiresAt.Unix())
	}
}

func TestLoginRejectsExpiredToken(t *testing.T) {
	st := openTestStore(t)
	tracker := &fakeTracker{}
	ctrl := NewController(st, tracker, nil)

	_, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Now().Add(-time.Hour)))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if tracker.startCalls != 0 {
		t.Error("expired login must not start tracking")
	}
	if _, ok, _ := ctrl.Current(); ok {
		t.Error("expired login must not persist a session")
	}
}

func TestLoginRejectsMalformedToken(t *testing.T) {
	ctrl := NewController(openTestStore(t), &fakeTracker{}, nil)

	if _, err := ctrl.Login(context.Background(), "user@example.com", "", "not-a-jwt"); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
}

func TestLoginWithoutExpClaimSucceeds(t *testing.T) {
	ctrl := NewController(openTestStore(t), &fakeTracker{startResult: true}, nil)

	started, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Time{}))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !started {
		t.Error("expected tracking started")
	}
}

func TestLoginSurvivesPermissionRefusal(t *testing.T) {
	st := openTestStore(t)
	ctrl := NewController(st, &fakeTracker{startResult: false}, nil)

	started, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if started {
		t.Error("expected tracking not started")
	}
	// The session stands even though tracking did not start.
	if !ctrl.Active() {
		t.Error("expected session active after refusal")
	}
}

func TestLogoutStopsTrackingAndClearsSession(t *testing.T) {
	st := openTestStore(t)
	tracker := &fakeTracker{startResult: true}
	ctrl := NewController(st, tracker, nil)

	if _, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := ctrl.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if tracker.stopCalls != 1 {
		t.Errorf("expected 1 stop call, got %d", tracker.stopCalls)
	}
	if _, ok, _ := ctrl.Current(); ok {
		t.Error("expected session cleared")
	}
}

func TestLogoutWithoutSessionIsSafe(t *testing.T) {
	ctrl := NewController(openTestStore(t), &fakeTracker{}, nil)
	if err := ctrl.Logout(); err != nil {
		t.Errorf("logout without session: %v", err)
	}
}

func TestHandleResumeRestartsTracking(t *testing.T) {
	st := openTestStore(t)
	tracker := &fakeTracker{startResult: true}
	ctrl := NewController(st, tracker, nil)

	if _, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("login: %v", err)
	}

	active, err := ctrl.HandleResume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !active {
		t.Error("expected tracking active after resume")
	}
	if tracker.ensureCalls != 1 {
		t.Errorf("expected reconcile call, got %d", tracker.ensureCalls)
	}
}

func TestHandleResumeClearsExpiredSession(t *testing.T) {
	st := openTestStore(t)
	tracker := &fakeTracker{}
	ctrl := NewController(st, tracker, nil)

	// Persist an already-expired session directly, as if time passed while
	// the process was down.
	sess := Session{
		Email:     "user@example.com",
		Token:     signToken(t, time.Now().Add(-time.Minute)),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := st.SetJSON(store.KeySession, sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	_, err := ctrl.HandleResume(context.Background())
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if tracker.stopCalls != 1 {
		t.Error("expected tracking stopped on expired resume")
	}
	if _, ok, _ := ctrl.Current(); ok {
		t.Error("expected expired session cleared")
	}
}

func TestHandleResumeWithoutSession(t *testing.T) {
	ctrl := NewController(openTestStore(t), &fakeTracker{}, nil)

	active, err := ctrl.HandleResume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if active {
		t.Error("expected no tracking without a session")
	}
}

func TestStatusReflectsTrackerAndQueue(t *testing.T) {
	st := openTestStore(t)
	tracker := &fakeTracker{startResult: true}
	q := seedQueue(t, st, &countingSender{}, 2)
	ctrl := NewController(st, tracker, q)

	status := ctrl.Status()
	if status.TrackingActive {
		t.Error("expected tracking inactive before login")
	}
	if status.QueuedLocations != 2 {
		t.Errorf("expected 2 queued locations, got %d", status.QueuedLocations)
	}

	if _, err := ctrl.Login(context.Background(), "user@example.com", "", signToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("login: %v", err)
	}
	if status := ctrl.Status(); !status.TrackingActive {
		t.Error("expected tracking active after login")
	}
}

func TestPersistedEmail(t *testing.T) {
	st := openTestStore(t)

	emailFn := PersistedEmail(st)
	if got := emailFn(); got != "" {
		t.Errorf("expected empty email without session, got %q", got)
	}

	if err := st.SetJSON(store.KeySession, Session{Email: "user@example.com"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if got := emailFn(); got != "user@example.com" {
		t.Errorf("expected persisted email, got %q", got)
	}
}
