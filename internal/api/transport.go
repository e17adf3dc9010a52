package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/singleflight"
)

// CredentialStore supplies the bearer credential attached to outgoing
// requests and receives the results of the refresh cycle. The transport and
// the auth state machine are its only writers; everything else reads the
// credential through the transport at request-send time.
type CredentialStore interface {
	// Token returns the stored credential, if any.
	Token() (string, bool)
	// SetToken overwrites the stored credential.
	SetToken(token string) error
	// Clear removes the stored credential.
	Clear() error
}

// Transport wraps a base RoundTripper with the authenticated-session
// protocol: attach the bearer credential, and on a 401 run exactly one
// refresh-and-replay cycle for the request.
//
// Per request the lifecycle is
//
//	Sent -> Ok
//	Sent -> Unauthorized -> RefreshPending -> Replayed -> (Ok | Failed)
//
// modelled by straight-line control flow in RoundTrip rather than by retry
// flags mutated on the request. A replayed request that fails again with 401
// is returned as-is, so no request is ever replayed twice.
//
// Refresh is mutually exclusive across concurrent requests: when several
// in-flight requests hit 401 at once, a single refresh call is issued and
// the rest wait for its outcome.
type Transport struct {
	// Base performs the actual HTTP round trips. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper

	// Store holds the credential. Required.
	Store CredentialStore

	// RefreshURL is the absolute URL of the refresh endpoint.
	RefreshURL string

	// Jar carries the transport-level refresh cookie. The refresh call is
	// built inside RoundTrip, below the http.Client, so cookies are applied
	// from the jar by hand. Optional.
	Jar http.CookieJar

	// OnAuthExpired is invoked once per failed refresh, after the credential
	// has been cleared. It resets the client to the anonymous state. Optional.
	OnAuthExpired func()

	group singleflight.Group
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, authenticated := t.Store.Token()
	if authenticated {
		// Never mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Only authenticated calls enter the refresh branch: an unauthenticated
	// 401 (bad login, expired reset token) has no credential to refresh.
	if resp.StatusCode != http.StatusUnauthorized || !authenticated {
		return resp, nil
	}

	fresh, refreshErr := t.refresh(req.Context())
	if refreshErr != nil {
		// Terminal: the caller receives the original 401.
		return resp, nil
	}

	replay, replayErr := cloneForReplay(req)
	if replayErr != nil {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	replay.Header.Set("Authorization", "Bearer "+fresh)
	return t.base().RoundTrip(replay)
}

// refresh performs the shared refresh cycle. Concurrent callers collapse
// onto one POST /auth/refresh-token; on failure the credential is cleared
// and the reset hook fires exactly once.
func (t *Transport) refresh(ctx context.Context) (string, error) {
	token, err, _ := t.group.Do("refresh", func() (interface{}, error) {
		fresh, err := t.doRefresh(ctx)
		if err != nil {
			t.Store.Clear()
			if t.OnAuthExpired != nil {
				t.OnAuthExpired()
			}
			return nil, err
		}
		if err := t.Store.SetToken(fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// doRefresh exchanges the transport-level session cookie for a new access
// token. No bearer credential is attached.
func (t *Transport) doRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, nil)
	if err != nil {
		return "", err
	}

	refreshURL, _ := url.Parse(t.RefreshURL)
	if t.Jar != nil && refreshURL != nil {
		for _, c := range t.Jar.Cookies(refreshURL) {
			req.AddCookie(c)
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return "", networkError(err)
	}
	defer resp.Body.Close()

	if t.Jar != nil && refreshURL != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			t.Jar.SetCookies(refreshURL, cookies)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyResponse(resp)
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return tok.AccessToken, nil
}

// cloneForReplay produces a resendable copy of req. Client methods buffer
// their bodies, so GetBody is available whenever a body exists.
func cloneForReplay(req *http.Request) (*http.Request, error) {
	replay := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return replay, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	replay.Body = body
	return replay, nil
}
