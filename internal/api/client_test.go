package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *memStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := &memStore{}
	client, err := NewClient(server.URL, store, Options{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, store
}

func TestLoginSendsFormEncoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %s, want /auth/login", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q, want form encoding", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if r.PostForm.Get("username") != "ayesha" || r.PostForm.Get("password") != "s3cret" {
			t.Errorf("form = %v", r.PostForm)
		}

		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt-1", HttpOnly: true})
		json.NewEncoder(w).Encode(Token{AccessToken: "at-1", TokenType: "bearer"})
	}))

	tok, err := client.Login(context.Background(), "ayesha", "s3cret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tok.AccessToken != "at-1" {
		t.Errorf("AccessToken = %q, want at-1", tok.AccessToken)
	}
}

func TestChatRoundTrip(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string  `json:"query"`
			SessionID *string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode chat request: %v", err)
		}
		if req.Query != "اس کہانی کا خلاصہ کیا ہے؟" {
			t.Errorf("query = %q", req.Query)
		}
		if req.SessionID != nil {
			t.Errorf("session_id = %v, want absent on first message", *req.SessionID)
		}
		json.NewEncoder(w).Encode(ChatAnswer{
			Answer:     "یہ ایک خوبصورت کہانی ہے۔",
			SessionID:  "abc",
			ResponseID: "r-1",
		})
	}))
	store.SetToken("tok")

	answer, err := client.Chat(context.Background(), "اس کہانی کا خلاصہ کیا ہے؟", nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if answer.Answer != "یہ ایک خوبصورت کہانی ہے۔" {
		t.Errorf("answer = %q", answer.Answer)
	}
	if answer.SessionID != "abc" {
		t.Errorf("session_id = %q, want abc", answer.SessionID)
	}
}

func TestChatSendsSessionID(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["session_id"] != "abc" {
			t.Errorf("session_id = %v, want abc", req["session_id"])
		}
		json.NewEncoder(w).Encode(ChatAnswer{Answer: "جواب", SessionID: "abc"})
	}))
	store.SetToken("tok")

	id := "abc"
	if _, err := client.Chat(context.Background(), "سوال", &id); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
}

func TestUploadPDFMultipart(t *testing.T) {
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm failed: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		defer file.Close()
		if header.Filename != "story.pdf" {
			t.Errorf("filename = %q, want story.pdf", header.Filename)
		}
		json.NewEncoder(w).Encode(UploadResult{
			Message:        "PDF uploaded successfully",
			Status:         "new",
			CollectionName: "col-1",
		})
	}))
	store.SetToken("tok")

	result, err := client.UploadPDF(context.Background(), "/tmp/story.pdf", strings.NewReader("%PDF-1.4 fake"))
	if err != nil {
		t.Fatalf("UploadPDF failed: %v", err)
	}
	if result.Status != "new" || result.CollectionName != "col-1" {
		t.Errorf("result = %+v", result)
	}
}

// TestRefreshCycleEndToEnd exercises the full stack: a login plants the
// refresh cookie in the jar, an expired access token 401s, the transport
// redeems the cookie and replays, and the caller never sees the 401.
func TestRefreshCycleEndToEnd(t *testing.T) {
	var refreshCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "rt-1", Path: "/"})
		json.NewEncoder(w).Encode(Token{AccessToken: "expired"})
	})
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		if c, err := r.Cookie("refresh_token"); err != nil || c.Value != "rt-1" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "missing refresh cookie"})
			return
		}
		json.NewEncoder(w).Encode(Token{AccessToken: "fresh"})
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Could not validate credentials"})
			return
		}
		json.NewEncoder(w).Encode(Identity{UserID: "u1", Username: "ayesha", Email: "a@x.pk", IsVerified: true})
	})

	client, store := newTestClient(t, mux)

	tok, err := client.Login(context.Background(), "ayesha", "s3cret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	store.SetToken(tok.AccessToken)

	identity, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if identity.Username != "ayesha" {
		t.Errorf("username = %q", identity.Username)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if stored, _ := store.Token(); stored != "fresh" {
		t.Errorf("stored token = %q, want fresh", stored)
	}
}

func TestErrorClassificationThroughClient(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Email already registered"})
	}))

	err := client.Register(context.Background(), "ayesha", "a@x.pk", "s3cret")
	if !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Field != "email" {
		t.Errorf("field = %v, want email", err)
	}
}

func TestNetworkFailureIsKindNetwork(t *testing.T) {
	store := &memStore{}
	client, err := NewClient("http://127.0.0.1:1", store, Options{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Sessions(context.Background())
	if !IsKind(err, KindNetwork) {
		t.Errorf("err = %v, want network kind", err)
	}
}
