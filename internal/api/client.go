package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the UrduWhiz backend. All authenticated calls flow through
// the Transport, which owns credential attachment and the refresh cycle.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Options tunes client construction.
type Options struct {
	// Timeout bounds each request including the refresh-and-replay cycle.
	// Defaults to 120s; the answering engine is slow on long documents.
	Timeout time.Duration

	// OnAuthExpired is forwarded to the Transport.
	OnAuthExpired func()

	// Base replaces the underlying RoundTripper. Test seam.
	Base http.RoundTripper

	Logger *zap.Logger
}

// NewClient builds a Client for the given backend origin. The credential
// store is shared with the auth state machine; the cookie jar keeps the
// transport-level refresh cookie between login and refresh calls.
func NewClient(baseURL string, store CredentialStore, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &Transport{
		Base:          opts.Base,
		Store:         store,
		RefreshURL:    baseURL + "/auth/refresh-token",
		Jar:           jar,
		OnAuthExpired: opts.OnAuthExpired,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   timeout,
		},
		logger: logger,
	}, nil
}

// Transport exposes the auth transport for late hook registration: the auth
// state machine is built after the client but needs to own the expiry reset.
func (c *Client) Transport() *Transport {
	t, _ := c.httpClient.Transport.(*Transport)
	return t
}

// GoogleLoginURL is the browser entry point of the OAuth redirect flow.
func (c *Client) GoogleLoginURL() string {
	return c.baseURL + "/auth/login/google"
}

// do runs one JSON request. Bodies are buffered so the transport can replay
// them after a refresh.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyResponse(resp)
		c.logger.Debug("backend error",
			zap.String("path", req.URL.Path),
			zap.Int("status", apiErr.Status),
			zap.String("kind", apiErr.Kind.String()))
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// Login exchanges credentials for an access token. The backend speaks
// OAuth2 password form encoding here, not JSON; the refresh cookie rides in
// on the response and lands in the jar.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok Token
	if err := c.send(req, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Me fetches the identity behind the stored credential.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Logout revokes the transport-level session server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Register creates an account. The address stays unverified until the
// emailed token is confirmed.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body := registerRequest{Username: username, Email: email, Password: password}
	return c.do(ctx, http.MethodPost, "/auth/register", body, nil)
}

// SendVerification asks the backend to (re)send the verification email.
func (c *Client) SendVerification(ctx context.Context, email string) (*StatusMessage, error) {
	var msg StatusMessage
	if err := c.do(ctx, http.MethodPost, "/auth/send-verification", emailRequest{Email: email}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// VerifyEmail confirms an address with the emailed token.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*StatusMessage, error) {
	var msg StatusMessage
	path := "/auth/verify-email?token=" + url.QueryEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ForgotPassword requests a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*StatusMessage, error) {
	var msg StatusMessage
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", emailRequest{Email: email}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ResetPassword applies a new password using the emailed reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (*StatusMessage, error) {
	var msg StatusMessage
	body := resetPasswordRequest{Token: token, NewPassword: newPassword}
	if err := c.do(ctx, http.MethodPost, "/auth/reset-password", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Sessions lists the caller's chat sessions. Order is server-defined and
// preserved as received.
func (c *Client) Sessions(ctx context.Context) ([]ChatSession, error) {
	var sessions []ChatSession
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Session fetches one session's metadata.
func (c *Client) Session(ctx context.Context, sessionID string) (*ChatSession, error) {
	var session ChatSession
	path := "/api/sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionMessages fetches one session's conversation log.
func (c *Client) SessionMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var messages []Message
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteSession removes a session server-side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := "/api/sessions/" + url.PathEscape(sessionID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UploadPDF binds a document to the caller's next session. The multipart
// body is buffered in memory so the transport can replay it after a refresh.
func (c *Client) UploadPDF(ctx context.Context, filename string, content io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/pdf", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result UploadResult
	if err := c.send(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chat sends a query. sessionID nil marks the session's first message; the
// returned answer then carries the server-assigned id.
func (c *Client) Chat(ctx context.Context, query string, sessionID *string) (*ChatAnswer, error) {
	var answer ChatAnswer
	body := chatRequest{Query: query, SessionID: sessionID}
	if err := c.do(ctx, http.MethodPost, "/api/chat", body, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}
