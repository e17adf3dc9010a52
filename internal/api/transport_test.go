package api

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory CredentialStore for transport tests.
type memStore struct {
	mu    sync.Mutex
	token string
}

func (s *memStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *memStore) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// roundTripFunc lets a test script the wire without a real server.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestRoundTripAttachesBearer(t *testing.T) {
	store := &memStore{token: "tok-1"}

	var got string
	transport := &Transport{
		Store: store,
		Base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			got = req.Header.Get("Authorization")
			return jsonResponse(http.StatusOK, `{}`), nil
		}),
	}

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/sessions", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	resp.Body.Close()

	if got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok-1")
	}
	// The caller's request must stay untouched.
	if req.Header.Get("Authorization") != "" {
		t.Error("original request was mutated")
	}
}

func TestRoundTripRefreshAndReplay(t *testing.T) {
	store := &memStore{token: "stale"}

	var refreshes, dataHits int
	transport := &Transport{
		Store:      store,
		RefreshURL: "http://backend/auth/refresh-token",
	}
	transport.Base = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			refreshes++
			if req.Header.Get("Authorization") != "" {
				t.Error("refresh call carried a bearer credential")
			}
			return jsonResponse(http.StatusOK, `{"access_token":"fresh"}`), nil
		}
		dataHits++
		if req.Header.Get("Authorization") == "Bearer fresh" {
			return jsonResponse(http.StatusOK, `{"ok":true}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`), nil
	})

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/sessions", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
	if dataHits != 2 {
		t.Errorf("data hits = %d, want 2 (original + replay)", dataHits)
	}
	if tok, _ := store.Token(); tok != "fresh" {
		t.Errorf("stored token = %q, want %q", tok, "fresh")
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const parallel = 8

	store := &memStore{token: "stale"}

	var refreshes int64
	var arrived sync.WaitGroup
	arrived.Add(parallel)
	barrier := make(chan struct{})

	transport := &Transport{
		Store:      store,
		RefreshURL: "http://backend/auth/refresh-token",
	}
	transport.Base = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			atomic.AddInt64(&refreshes, 1)
			// Slow enough that every 401 released above joins this flight.
			time.Sleep(100 * time.Millisecond)
			return jsonResponse(http.StatusOK, `{"access_token":"fresh"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer stale" {
			// Hold every first attempt until all are in flight, so their
			// refresh calls genuinely race.
			arrived.Done()
			<-barrier
			return jsonResponse(http.StatusUnauthorized, `{"detail":"expired"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	})

	go func() {
		arrived.Wait()
		close(barrier)
	}()

	var wg sync.WaitGroup
	errs := make([]error, parallel)
	codes := make([]int, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, "http://backend/api/sessions", nil)
			resp, err := transport.RoundTrip(req)
			if err != nil {
				errs[i] = err
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i := 0; i < parallel; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if codes[i] != http.StatusOK {
			t.Errorf("request %d status = %d, want 200", i, codes[i])
		}
	}
	if n := atomic.LoadInt64(&refreshes); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
}

func TestRefreshFailureReturnsOriginal401(t *testing.T) {
	store := &memStore{token: "stale"}

	var expired int
	var dataHits int
	transport := &Transport{
		Store:      store,
		RefreshURL: "http://backend/auth/refresh-token",
		OnAuthExpired: func() {
			expired++
		},
	}
	transport.Base = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusUnauthorized, `{"detail":"refresh expired"}`), nil
		}
		dataHits++
		return jsonResponse(http.StatusUnauthorized, `{"detail":"expired"}`), nil
	})

	req, _ := http.NewRequest(http.MethodGet, "http://backend/api/sessions", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip returned error, want original 401: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if dataHits != 1 {
		t.Errorf("data hits = %d, want 1 (never replayed)", dataHits)
	}
	if expired != 1 {
		t.Errorf("OnAuthExpired fired %d times, want 1", expired)
	}
	if _, ok := store.Token(); ok {
		t.Error("credential survived a failed refresh")
	}
}

func TestUnauthenticated401SkipsRefresh(t *testing.T) {
	store := &memStore{}

	transport := &Transport{
		Store:      store,
		RefreshURL: "http://backend/auth/refresh-token",
	}
	transport.Base = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			t.Fatal("refresh attempted without a credential")
		}
		return jsonResponse(http.StatusUnauthorized, `{"detail":"Incorrect username or password"}`), nil
	})

	req, _ := http.NewRequest(http.MethodPost, "http://backend/auth/login", strings.NewReader("x"))
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestReplayResendsBufferedBody(t *testing.T) {
	store := &memStore{token: "stale"}

	var bodies []string
	transport := &Transport{
		Store:      store,
		RefreshURL: "http://backend/auth/refresh-token",
	}
	transport.Base = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/refresh-token" {
			return jsonResponse(http.StatusOK, `{"access_token":"fresh"}`), nil
		}
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		if req.Header.Get("Authorization") == "Bearer fresh" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"detail":"expired"}`), nil
	})

	payload := `{"query":"اس کہانی کا خلاصہ کیا ہے؟"}`
	req, _ := http.NewRequest(http.MethodPost, "http://backend/api/chat", strings.NewReader(payload))
	// http.NewRequest sets GetBody for strings.Reader bodies.
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("attempts = %d, want 2", len(bodies))
	}
	if bodies[0] != payload || bodies[1] != payload {
		t.Errorf("replayed body mismatch: %q vs %q", bodies[0], bodies[1])
	}
}
