package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrUploadInFlight rejects a second upload while one is running.
	ErrUploadInFlight = errors.New("an upload is already in progress")
	// ErrNotPDF rejects files the backend would refuse anyway.
	ErrNotPDF = errors.New("only PDF files can be uploaded")
)

// Gate tracks whether a document is bound to the active conversation.
// Message sending is blocked until a bound collection exists and no upload
// is in flight. The gate never opens on a failed upload; retry is manual.
type Gate struct {
	mu         sync.Mutex
	inFlight   bool
	collection string
}

// Open reports whether messages may be sent.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.collection != "" && !g.inFlight
}

// InFlight reports whether an upload is running.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Collection returns the bound collection name, if any.
func (g *Gate) Collection() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.collection, g.collection != ""
}

func (g *Gate) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return ErrUploadInFlight
	}
	g.inFlight = true
	return nil
}

func (g *Gate) complete(collection string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
	g.collection = collection
}

func (g *Gate) fail() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
}

// rebind resets the gate on a session switch: bound to the target session's
// collection, or closed when it has none.
func (g *Gate) rebind(collection string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
	g.collection = collection
}

// Upload submits one PDF and binds the returned collection to the active
// conversation. While it runs the gate stays closed; on failure it remains
// closed and the error is returned for the UI to surface.
func (m *Manager) Upload(ctx context.Context, path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", ErrNotPDF
	}
	if err := m.gate.begin(); err != nil {
		return "", err
	}

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		m.gate.fail()
		return "", err
	}
	defer file.Close()

	result, err := m.backend.UploadPDF(ctx, filepath.Base(path), file)
	if err != nil {
		m.gate.fail()
		return "", err
	}

	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if stale {
		// The user switched away mid-upload; do not open the gate for a
		// conversation this document was never bound to.
		m.gate.fail()
		m.logger.Info("upload finished for an abandoned conversation, discarded",
			zap.String("collection", result.CollectionName))
		return result.Message, nil
	}

	m.gate.complete(result.CollectionName)
	m.logger.Info("document bound",
		zap.String("collection", result.CollectionName),
		zap.String("status", result.Status))
	return result.Message, nil
}
