package chat

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"urduwhiz/internal/api"
	"urduwhiz/internal/auth"
	"urduwhiz/internal/session"
)

// Messages produced by background commands.

type bootstrapMsg struct{ state auth.State }

type authExpiredMsg struct{}

// AuthExpired builds the message the transport hook injects into the
// running program when a 401 survives the refresh cycle.
func AuthExpired() tea.Msg { return authExpiredMsg{} }

type sessionsRefreshedMsg struct{ err error }

type sessionLoadedMsg struct{ sessionID string }

// sendStartedMsg carries the actual dispatch command so the model can mark
// itself waiting before the network call begins.
type sendStartedMsg struct{ cmd tea.Cmd }

type sendResultMsg struct{ err error }

type uploadResultMsg struct {
	note string
	err  error
}

func bootstrap(mgr *auth.Manager) tea.Cmd {
	return func() tea.Msg {
		return bootstrapMsg{state: mgr.Bootstrap(context.Background(), "")}
	}
}

func refreshSessions(mgr *session.Manager) tea.Cmd {
	return func() tea.Msg {
		return sessionsRefreshedMsg{err: mgr.Refresh(context.Background())}
	}
}

func loadSession(mgr *session.Manager, sessionID string) tea.Cmd {
	return func() tea.Msg {
		mgr.Load(context.Background(), sessionID)
		return sessionLoadedMsg{sessionID: sessionID}
	}
}

func deleteSession(mgr *session.Manager, sessionID string) tea.Cmd {
	return func() tea.Msg {
		mgr.Delete(context.Background(), sessionID)
		return sessionsRefreshedMsg{}
	}
}

func send(d *session.Dispatcher, text string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{err: d.Send(context.Background(), text)}
	}
}

func upload(mgr *session.Manager, path string) tea.Cmd {
	return func() tea.Msg {
		note, err := mgr.Upload(context.Background(), path)
		return uploadResultMsg{note: note, err: err}
	}
}

// friendlyError turns classified backend errors into one-line guidance.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, session.ErrGateClosed):
		return "Upload a PDF first (ctrl+u)."
	case errors.Is(err, session.ErrNotPDF):
		return "Only PDF files can be uploaded."
	case errors.Is(err, session.ErrUploadInFlight):
		return "An upload is already in progress."
	case api.IsKind(err, api.KindNetwork):
		return "Cannot reach the server. Check your connection."
	case api.IsKind(err, api.KindAuth):
		return "Session expired. Run 'whiz login' and restart."
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fmt.Sprintf("Something went wrong: %v", err)
}
