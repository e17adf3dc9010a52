package auth

import (
	"context"
	"errors"
	"testing"

	"urduwhiz/internal/api"
)

// fakeIdentityClient scripts the /auth/me and /auth/logout endpoints.
type fakeIdentityClient struct {
	me        func() (*api.Identity, error)
	meCalls   int
	logoutErr error
}

func (f *fakeIdentityClient) Me(ctx context.Context) (*api.Identity, error) {
	f.meCalls++
	return f.me()
}

func (f *fakeIdentityClient) Logout(ctx context.Context) error {
	return f.logoutErr
}

func verifiedIdentity() *api.Identity {
	return &api.Identity{UserID: "u1", Username: "ayesha", Email: "a@x.pk", IsVerified: true}
}

func TestBootstrapNoCredential(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	client := &fakeIdentityClient{me: func() (*api.Identity, error) {
		return verifiedIdentity(), nil
	}}
	mgr := NewManager(store, client, nil)

	if got := mgr.State(); got != StateBooting {
		t.Fatalf("initial state = %v, want booting", got)
	}

	if got := mgr.Bootstrap(context.Background(), ""); got != StateAnonymous {
		t.Errorf("state = %v, want anonymous", got)
	}
	// Without a credential there is nothing to validate.
	if client.meCalls != 0 {
		t.Errorf("identity fetch ran %d times, want 0", client.meCalls)
	}
}

func TestBootstrapVerifiedIdentity(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	store.SetToken("tok-1")
	client := &fakeIdentityClient{me: func() (*api.Identity, error) {
		return verifiedIdentity(), nil
	}}
	mgr := NewManager(store, client, nil)

	if got := mgr.Bootstrap(context.Background(), ""); got != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
	if id := mgr.Identity(); id == nil || id.Username != "ayesha" {
		t.Errorf("identity = %v", id)
	}
}

func TestBootstrapUnverifiedIdentityStaysAnonymous(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	store.SetToken("tok-1")
	client := &fakeIdentityClient{me: func() (*api.Identity, error) {
		id := verifiedIdentity()
		id.IsVerified = false
		return id, nil
	}}
	mgr := NewManager(store, client, nil)

	if got := mgr.Bootstrap(context.Background(), ""); got != StateAnonymous {
		t.Errorf("state = %v, want anonymous", got)
	}
	if mgr.Identity() != nil {
		t.Error("unverified identity was established")
	}
}

func TestBootstrapRejectedCredentialIsDiscarded(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	store.SetToken("tok-1")
	client := &fakeIdentityClient{me: func() (*api.Identity, error) {
		return nil, &api.Error{Kind: api.KindAuth, Status: 401}
	}}
	mgr := NewManager(store, client, nil)

	if got := mgr.Bootstrap(context.Background(), ""); got != StateAnonymous {
		t.Errorf("state = %v, want anonymous", got)
	}
	if _, ok := store.Token(); ok {
		t.Error("rejected credential was kept")
	}
}

func TestBootstrapNetworkFailureKeepsCredential(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	store.SetToken("tok-1")
	client := &fakeIdentityClient{me: func() (*api.Identity, error) {
		return nil, &api.Error{Kind: api.KindNetwork}
	}}
	mgr := NewManager(store, client, nil)

	if got := mgr.Bootstrap(context.Background(), ""); got != StateAnonymous {
		t.Errorf("state = %v, want anonymous presentation", got)
	}
	// The credential is presumed valid until the backend rejects it.
	if tok, ok := store.Token(); !ok || tok != "tok-1" {
		t.Error("credential discarded on a transient failure")
	}
}

func TestBootstrapStoresCallbackTokenFirst(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	client := &fakeIdentityClient{me: func() (*api.Identity, error) {
		return verifiedIdentity(), nil
	}}
	mgr := NewManager(store, client, nil)

	if got := mgr.Bootstrap(context.Background(), "oauth-tok"); got != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", got)
	}
	if tok, _ := store.Token(); tok != "oauth-tok" {
		t.Errorf("stored token = %q, want oauth-tok", tok)
	}
}

func TestLoginRejectsUnverified(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	mgr := NewManager(store, &fakeIdentityClient{}, nil)
	mgr.settle(StateAnonymous, nil)

	id := verifiedIdentity()
	id.IsVerified = false
	err := mgr.Login(id, "tok-1")
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("err = %v, want ErrNotVerified", err)
	}
	if mgr.State() != StateAnonymous {
		t.Error("state changed on a rejected login")
	}
	if _, ok := store.Token(); ok {
		t.Error("credential persisted for an unverified identity")
	}
}

func TestLoginEstablishesIdentity(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	mgr := NewManager(store, &fakeIdentityClient{}, nil)

	if err := mgr.Login(verifiedIdentity(), "tok-1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if mgr.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", mgr.State())
	}
	if tok, _ := store.Token(); tok != "tok-1" {
		t.Errorf("stored token = %q", tok)
	}
}

func TestLogoutIsLocalFirst(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	store.SetToken("tok-1")
	client := &fakeIdentityClient{logoutErr: &api.Error{Kind: api.KindNetwork}}
	mgr := NewManager(store, client, nil)
	mgr.settle(StateAuthenticated, verifiedIdentity())

	mgr.Logout(context.Background())

	// The failed backend notification never reverses the transition.
	if mgr.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", mgr.State())
	}
	if _, ok := store.Token(); ok {
		t.Error("credential survived logout")
	}
}

func TestForceAnonymous(t *testing.T) {
	store := NewStoreAt(t.TempDir())
	mgr := NewManager(store, &fakeIdentityClient{}, nil)
	mgr.settle(StateAuthenticated, verifiedIdentity())

	mgr.ForceAnonymous()
	if mgr.State() != StateAnonymous {
		t.Errorf("state = %v, want anonymous", mgr.State())
	}
	if mgr.Identity() != nil {
		t.Error("identity survived ForceAnonymous")
	}
}
