package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"urduwhiz/internal/api"
)

// FallbackAnswer is appended in place of an assistant reply when the chat
// call fails. The user's own message is never retracted.
const FallbackAnswer = "معذرت، مجھے ایک خرابی کا سامنا کرنا پڑا۔ براہ کرم دوبارہ کوشش کریں۔"

var (
	// ErrEmptyMessage rejects blank input before any network contact.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrGateClosed rejects sending while no document is bound or an
	// upload is still running.
	ErrGateClosed = errors.New("upload a PDF before sending messages")
)

// Dispatcher sends chat messages for the active conversation.
type Dispatcher struct {
	mgr    *Manager
	logger *zap.Logger
}

// NewDispatcher builds a dispatcher over the manager's active conversation.
func NewDispatcher(mgr *Manager, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{mgr: mgr, logger: logger}
}

// Send dispatches one message. The user entry is appended to the log before
// the network call is made, so the local echo is visible while the request
// is still in flight. On success the assistant answer is appended and a
// first-message conversation adopts its server-assigned session id; on
// failure the fixed fallback answer is appended instead and the failure is
// absorbed.
//
// Concurrent sends are not coalesced: each appends its own user entry, and
// answers land in completion order, which may differ from send order.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !d.mgr.gate.Open() {
		return ErrGateClosed
	}

	tag := uuid.NewString()[:8]
	epoch, sessionID := d.mgr.beginSend(text)

	answer, err := d.mgr.backend.Chat(ctx, text, sessionID)
	if err != nil {
		d.logger.Warn("chat dispatch failed", zap.String("tag", tag), zap.Error(err))
		d.mgr.appendIfCurrent(epoch, api.Message{
			Role:      api.RoleAssistant,
			Content:   FallbackAnswer,
			Timestamp: timeNow(),
		})
		return nil
	}

	if d.mgr.reconcile(epoch, answer) {
		// The conversation was just created implicitly; pick up its title.
		if err := d.mgr.Refresh(ctx); err != nil {
			d.logger.Warn("session list refresh failed", zap.String("tag", tag), zap.Error(err))
		}
	}
	return nil
}
