package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medadmin/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, st store.Store) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:        baseURL,
		Store:          st,
		Logger:         testLogger(),
		RequestTimeout: 5 * time.Second,
		RefreshTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAttachAuthInjectsStoredBearer(t *testing.T) {
	st := store.NewMemStore()
	st.Set(store.KeyAccessToken, "t1")
	c := newTestClient(t, "http://backend.test", st)

	req := httptest.NewRequest(http.MethodGet, "http://backend.test/x", nil)
	c.attachAuth(req)
	c.attachAuth(req) // repeated injection must not stack headers

	if got := req.Header.Values("Authorization"); len(got) != 1 || got[0] != "Bearer t1" {
		t.Fatalf("unexpected Authorization headers: %v", got)
	}
}

func TestAttachAuthLeavesUnauthenticatedRequestUntouched(t *testing.T) {
	c := newTestClient(t, "http://backend.test", store.NewMemStore())

	req := httptest.NewRequest(http.MethodGet, "http://backend.test/x", nil)
	c.attachAuth(req)

	if got := req.Header.Get("Authorization"); got != "" {
		t.Fatalf("expected no Authorization header, got %q", got)
	}
}

// refreshableBackend is a backend whose protected endpoint rejects every
// token except the current one, and whose refresh endpoint rotates it.
type refreshableBackend struct {
	mu           sync.Mutex
	currentToken string
	nextToken    string
	refreshCalls int32
	refreshDelay time.Duration
	refreshFails bool
	alwaysReject bool
	seenAuth     []string
}

func (b *refreshableBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.refreshCalls, 1)
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}
		if b.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "refresh token revoked"})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.currentToken = b.nextToken
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  b.nextToken,
			"refreshToken": "rotated-refresh",
		})
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.seenAuth = append(b.seenAuth, auth)
		current := b.currentToken
		b.mu.Unlock()
		if b.alwaysReject || auth != "Bearer "+current {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"ok": true}})
	})
	return mux
}

func TestExpiredTokenIsRefreshedAndRequestReplayed(t *testing.T) {
	backend := &refreshableBackend{currentToken: "t2", nextToken: "t2"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	st := store.NewMemStore()
	st.Set(store.KeyAccessToken, "t1")
	st.Set(store.KeyRefreshToken, "r1")
	c := newTestClient(t, srv.URL, st)

	var env Envelope
	if err := c.Do(context.Background(), http.MethodGet, "/protected", nil, nil, &env); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success envelope")
	}
	if calls := atomic.LoadInt32(&backend.refreshCalls); calls != 1 {
		t.Fatalf("refresh endpoint called %d times, want 1", calls)
	}
	if got := st.Get(store.KeyAccessToken); got != "t2" {
		t.Fatalf("rotated token not persisted, got %q", got)
	}
	if got := st.Get(store.KeyRefreshToken); got != "rotated-refresh" {
		t.Fatalf("rotated refresh token not persisted, got %q", got)
	}

	// The replay must carry the new token.
	last := backend.seenAuth[len(backend.seenAuth)-1]
	if last != "Bearer t2" {
		t.Fatalf("replayed request carried %q", last)
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	backend := &refreshableBackend{
		currentToken: "t2",
		nextToken:    "t2",
		refreshDelay: 50 * time.Millisecond,
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	st := store.NewMemStore()
	st.Set(store.KeyAccessToken, "t1")
	st.Set(store.KeyRefreshToken, "r1")
	c := newTestClient(t, srv.URL, st)

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = c.Do(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&backend.refreshCalls); calls != 1 {
		t.Fatalf("refresh endpoint called %d times for %d concurrent 401s, want 1", calls, n)
	}
}

func TestRefreshRejectionIsTerminal(t *testing.T) {
	backend := &refreshableBackend{currentToken: "other", refreshFails: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	st := store.NewMemStore()
	st.Set(store.KeyAccessToken, "t1")
	st.Set(store.KeyRefreshToken, "r1")
	st.Set(store.KeyUser, `{"email":"a@b.c"}`)

	c := newTestClient(t, srv.URL, st)
	var hookFired atomic.Bool
	c.SetAuthFailureHook(func() { hookFired.Store(true) })

	err := c.Do(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// A 401 from the refresh endpoint never triggers a second refresh.
	if calls := atomic.LoadInt32(&backend.refreshCalls); calls != 1 {
		t.Fatalf("refresh endpoint called %d times, want 1", calls)
	}
	if st.Get(store.KeyAccessToken) != "" || st.Get(store.KeyRefreshToken) != "" || st.Get(store.KeyUser) != "" {
		t.Fatalf("credentials not purged after terminal failure")
	}
	if !hookFired.Load() {
		t.Fatalf("auth-failure hook did not fire")
	}
}

func TestMissingRefreshTokenFailsWithoutCallingBackend(t *testing.T) {
	backend := &refreshableBackend{currentToken: "other"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	st := store.NewMemStore()
	st.Set(store.KeyAccessToken, "t1")
	c := newTestClient(t, srv.URL, st)

	err := c.Do(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if calls := atomic.LoadInt32(&backend.refreshCalls); calls != 0 {
		t.Fatalf("refresh endpoint called %d times with no stored refresh token", calls)
	}
}

func TestSecond401AfterRetryPassesThrough(t *testing.T) {
	// Refresh "succeeds" but the backend still rejects the new token; the
	// second 401 must surface as-is instead of looping.
	backend := &refreshableBackend{nextToken: "t2", alwaysReject: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	st := store.NewMemStore()
	st.Set(store.KeyAccessToken, "t1")
	st.Set(store.KeyRefreshToken, "r1")
	c := newTestClient(t, srv.URL, st)

	err := c.Do(context.Background(), http.MethodGet, "/protected", nil, nil, nil)
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected passthrough 401, got %v", err)
	}
	if calls := atomic.LoadInt32(&backend.refreshCalls); calls != 1 {
		t.Fatalf("refresh endpoint called %d times, want exactly 1", calls)
	}
}

func TestNon401ErrorsPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "duplicate email"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, store.NewMemStore())
	err := c.Do(context.Background(), http.MethodPost, "/admin/users", nil, map[string]any{}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "duplicate email") {
		t.Fatalf("error body message lost: %q", apiErr.Message)
	}
}

func TestRefreshGroupSettlesWholeCohort(t *testing.T) {
	var g refreshGroup

	leader, _ := g.join()
	if !leader {
		t.Fatalf("first join must lead")
	}

	waits := make([]<-chan refreshOutcome, 3)
	for i := range waits {
		isLeader, ch := g.join()
		if isLeader {
			t.Fatalf("join %d led while an exchange was in flight", i)
		}
		waits[i] = ch
	}

	g.settle(refreshOutcome{accessToken: "t2"})

	for i, ch := range waits {
		select {
		case outcome := <-ch:
			if outcome.accessToken != "t2" || outcome.err != nil {
				t.Fatalf("waiter %d got %+v", i, outcome)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d left pending after settle", i)
		}
	}

	// The group must be reusable for the next attempt.
	if g.refreshing() {
		t.Fatalf("group still marked in flight after settle")
	}
	leader, _ = g.join()
	if !leader {
		t.Fatalf("join after settle should lead again")
	}
	g.settle(refreshOutcome{err: errors.New("boom")})
}

func TestDoSetsRequestMetadata(t *testing.T) {
	var gotRequestID, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-ID")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, store.NewMemStore())
	if err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotRequestID == "" {
		t.Fatalf("outgoing request carried no X-Request-ID")
	}
	if gotAccept != "application/json" {
		t.Fatalf("unexpected Accept header %q", gotAccept)
	}
}
