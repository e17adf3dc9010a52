// Package session owns the client-side chat state: the session list, the
// active conversation log, the upload gate, and message dispatch. All local
// updates are optimistic; server responses are reconciled into them and
// recoverable failures are absorbed here instead of bubbling to the UI.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"urduwhiz/internal/api"
)

// Backend is the slice of api.Client the session layer consumes.
type Backend interface {
	Sessions(ctx context.Context) ([]api.ChatSession, error)
	Session(ctx context.Context, sessionID string) (*api.ChatSession, error)
	SessionMessages(ctx context.Context, sessionID string) ([]api.Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
	UploadPDF(ctx context.Context, filename string, content io.Reader) (*api.UploadResult, error)
	Chat(ctx context.Context, query string, sessionID *string) (*api.ChatAnswer, error)
}

// timeNow is a test seam for message timestamps.
var timeNow = time.Now

// active is the conversation currently on screen. ID is nil until the
// backend assigns one: a session exists only once the first chat response
// says so.
type active struct {
	ID        *string
	Title     string
	CreatedAt time.Time
	Messages  []api.Message
}

// Snapshot is a read-only copy of the active conversation for rendering.
type Snapshot struct {
	ID        *string
	Title     string
	CreatedAt time.Time
	Messages  []api.Message
}

// Manager owns the session list and the active conversation.
//
// In-flight loads and uploads are tagged with the epoch current when they
// started; a result whose epoch no longer matches is discarded, so a stale
// response can never overwrite state belonging to a newer session switch.
type Manager struct {
	mu       sync.Mutex
	backend  Backend
	logger   *zap.Logger
	sessions []api.ChatSession
	active   active
	epoch    uint64
	gate     Gate
}

// NewManager starts with an empty "new chat" conversation and a closed gate.
func NewManager(backend Backend, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend: backend,
		logger:  logger,
		active:  newChat(),
	}
}

func newChat() active {
	return active{Title: "New Chat", CreatedAt: timeNow()}
}

// Gate exposes the upload gate.
func (m *Manager) Gate() *Gate { return &m.gate }

// Refresh re-fetches the session list. Ordering is server-defined and kept
// as received.
func (m *Manager) Refresh(ctx context.Context) error {
	sessions, err := m.backend.Sessions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions = sessions
	m.mu.Unlock()
	return nil
}

// Sessions returns a copy of the last fetched session list.
func (m *Manager) Sessions() []api.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.ChatSession, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Active returns a render-safe copy of the active conversation.
func (m *Manager) Active() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := make([]api.Message, len(m.active.Messages))
	copy(messages, m.active.Messages)
	return Snapshot{
		ID:        m.active.ID,
		Title:     m.active.Title,
		CreatedAt: m.active.CreatedAt,
		Messages:  messages,
	}
}

// NewChat resets to an empty conversation with no bound document. Any
// response still in flight for the previous conversation is orphaned.
func (m *Manager) NewChat() {
	m.mu.Lock()
	m.epoch++
	m.active = newChat()
	m.mu.Unlock()
	m.gate.rebind("")
}

// Load switches the active conversation to a stored session. Metadata and
// history are fetched independently: a failed metadata fetch degrades to a
// synthesized placeholder session and a failed history fetch to an empty
// log, so the conversation stays usable either way.
func (m *Manager) Load(ctx context.Context, sessionID string) {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	var next active
	var collection string
	if meta, err := m.backend.Session(ctx, sessionID); err != nil {
		m.logger.Warn("session metadata fetch failed, using placeholder",
			zap.String("session_id", sessionID), zap.Error(err))
		next = active{
			ID:        &sessionID,
			Title:     "Chat " + timeNow().Format("2006-01-02 15:04"),
			CreatedAt: timeNow(),
		}
	} else {
		id := meta.SessionID
		next = active{ID: &id, Title: meta.Title, CreatedAt: meta.CreatedAt}
		collection = meta.CollectionName
	}

	messages, err := m.backend.SessionMessages(ctx, sessionID)
	if err != nil {
		m.logger.Warn("session history fetch failed, starting empty",
			zap.String("session_id", sessionID), zap.Error(err))
		messages = nil
	}
	next.Messages = messages

	m.mu.Lock()
	if m.epoch != epoch {
		// A newer switch won; this result is stale.
		m.mu.Unlock()
		return
	}
	m.active = next
	m.mu.Unlock()
	m.gate.rebind(collection)
}

// Delete removes the session locally first; the local list is authoritative
// for the UI even when the backend call fails afterwards. A reconciliation
// happens naturally on the next Refresh.
func (m *Manager) Delete(ctx context.Context, sessionID string) {
	m.mu.Lock()
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.SessionID != sessionID {
			kept = append(kept, s)
		}
	}
	m.sessions = kept
	wasActive := m.active.ID != nil && *m.active.ID == sessionID
	m.mu.Unlock()

	if wasActive {
		m.NewChat()
	}

	if err := m.backend.DeleteSession(ctx, sessionID); err != nil {
		m.logger.Warn("backend session delete failed, local state kept",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// beginSend appends the optimistic user entry and returns the epoch plus
// the session id to dispatch with (nil for a first message).
func (m *Manager) beginSend(text string) (uint64, *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active.Messages = append(m.active.Messages, api.Message{
		Role:      api.RoleUser,
		Content:   text,
		Timestamp: timeNow(),
	})
	return m.epoch, m.active.ID
}

// appendIfCurrent appends a message unless the conversation changed since
// the epoch was captured.
func (m *Manager) appendIfCurrent(epoch uint64, msg api.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return
	}
	m.active.Messages = append(m.active.Messages, msg)
}

// reconcile folds a chat answer into the log. Returns true when the active
// conversation adopted the server-assigned session id, i.e. it was just
// created implicitly by its first message.
func (m *Manager) reconcile(epoch uint64, answer *api.ChatAnswer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.active.Messages = append(m.active.Messages, api.Message{
		Role:      api.RoleAssistant,
		Content:   answer.Answer,
		Timestamp: timeNow(),
	})
	if m.active.ID == nil && answer.SessionID != "" {
		id := answer.SessionID
		m.active.ID = &id
		return true
	}
	return false
}
