package auth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"urduwhiz/internal/api"
)

// State is the tri-state identity derived from the credential store and the
// bootstrap identity fetch.
type State int

const (
	// StateBooting: startup, before the bootstrap fetch has settled.
	StateBooting State = iota
	// StateAuthenticated: a verified identity is established.
	StateAuthenticated
	// StateAnonymous: no usable identity.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// ErrNotVerified rejects a login whose identity has an unverified email.
// The caller surfaces a blocking message; no state changes and no credential
// is stored.
var ErrNotVerified = errors.New("email address not verified")

// identityClient is the slice of api.Client the state machine needs.
type identityClient interface {
	Me(ctx context.Context) (*api.Identity, error)
	Logout(ctx context.Context) error
}

// Manager is the auth state machine. Transitions:
//
//	Booting -> Authenticated | Anonymous   (Bootstrap)
//	Anonymous -> Authenticated             (Login)
//	Authenticated -> Anonymous             (Logout, refresh failure)
//
// Nothing transitions back to Booting.
type Manager struct {
	mu       sync.Mutex
	state    State
	identity *api.Identity
	store    *Store
	client   identityClient
	logger   *zap.Logger
}

// NewManager builds the state machine in the Booting state.
func NewManager(store *Store, client identityClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{state: StateBooting, store: store, client: client, logger: logger}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the established identity, or nil.
func (m *Manager) Identity() *api.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Bootstrap settles the boot transition. callbackToken is the one-time
// credential from an OAuth redirect ("" when absent); it is stored before
// anything else so it exists nowhere but the store afterwards.
//
// With a credential present, the identity fetch decides: a 401 discards the
// credential and lands Anonymous; a network failure also presents as
// Anonymous but keeps the credential, since it is presumed valid until the
// backend rejects it. Bootstrap always terminates the Booting state.
func (m *Manager) Bootstrap(ctx context.Context, callbackToken string) State {
	if callbackToken != "" {
		if err := m.store.SetToken(callbackToken); err != nil {
			m.logger.Error("storing callback credential failed", zap.Error(err))
		}
	}

	if _, ok := m.store.Token(); !ok {
		return m.settle(StateAnonymous, nil)
	}

	identity, err := m.client.Me(ctx)
	switch {
	case err == nil && identity.IsVerified:
		return m.settle(StateAuthenticated, identity)
	case err == nil:
		// Unverified identities never authenticate.
		m.logger.Warn("bootstrap identity is unverified", zap.String("email", identity.Email))
		return m.settle(StateAnonymous, nil)
	case api.IsKind(err, api.KindAuth):
		m.store.Clear()
		return m.settle(StateAnonymous, nil)
	default:
		// Transient failure: keep the credential for the next attempt.
		m.logger.Warn("bootstrap identity fetch failed", zap.Error(err))
		return m.settle(StateAnonymous, nil)
	}
}

func (m *Manager) settle(state State, identity *api.Identity) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.identity = identity
	return state
}

// Login accepts a fresh identity and credential from a successful login
// call. Unverified identities are rejected outright: the state stays
// Anonymous and the credential is not persisted.
func (m *Manager) Login(identity *api.Identity, token string) error {
	if !identity.IsVerified {
		return ErrNotVerified
	}
	if err := m.store.SetToken(token); err != nil {
		return err
	}
	m.settle(StateAuthenticated, identity)
	return nil
}

// Logout transitions to Anonymous synchronously and notifies the backend
// best-effort; the notification's outcome never reverses the transition.
func (m *Manager) Logout(ctx context.Context) {
	m.store.Clear()
	m.settle(StateAnonymous, nil)

	if err := m.client.Logout(ctx); err != nil {
		m.logger.Warn("logout notification failed", zap.Error(err))
	}
}

// ForceAnonymous is the transport's auth-expiry hook: a 401 survived the
// refresh cycle, so the session is over. The credential is already cleared
// by the transport.
func (m *Manager) ForceAnonymous() {
	m.settle(StateAnonymous, nil)
}
