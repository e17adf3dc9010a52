package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"urduwhiz/internal/api"
	"urduwhiz/internal/auth"
)

const sidebarWidth = 32

// sessionItem adapts a chat session for the sidebar list.
type sessionItem struct {
	session api.ChatSession
}

func (i sessionItem) Title() string { return i.session.Title }
func (i sessionItem) Description() string {
	return i.session.CreatedAt.Format("2006-01-02 15:04")
}
func (i sessionItem) FilterValue() string { return i.session.Title }

// syncConversation re-renders the conversation log into the viewport and
// scrolls to the bottom.
func (m *Model) syncConversation() {
	snapshot := m.deps.Sessions.Active()

	var b strings.Builder
	for _, msg := range snapshot.Messages {
		switch msg.Role {
		case api.RoleUser:
			b.WriteString(m.styles.UserLabel.Render("آپ"))
			b.WriteString("\n")
			b.WriteString(m.styles.UserMessage.Render(msg.Content))
		default:
			b.WriteString(m.styles.AssistantLabel.Render("UrduWhiz"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg.Content))
		}
		b.WriteString("\n\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// renderMarkdown renders assistant replies through glamour, falling back to
// plain text when rendering fails.
func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// View renders the full screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready || m.authState == auth.StateBooting {
		return fmt.Sprintf("\n  %s Starting UrduWhiz...\n", m.spin.View())
	}

	if m.mode == modeSessions {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.headerView(),
			m.sidebar.View(),
			m.styles.Footer.Render("enter: open  ctrl+d: delete  esc: back"),
		)
	}

	var sections []string
	sections = append(sections, m.headerView())

	snapshot := m.deps.Sessions.Active()
	if len(snapshot.Messages) == 0 {
		sections = append(sections, m.emptyView())
	} else {
		sections = append(sections, m.viewport.View())
	}

	if m.waiting {
		sections = append(sections, m.styles.Muted.Render(m.spin.View()+" جواب تیار ہو رہا ہے..."))
	}
	if m.uploading {
		sections = append(sections, m.styles.Muted.Render(m.spin.View()+" Uploading..."))
	}
	if m.status != "" {
		sections = append(sections, m.styles.Success.Render(m.status))
	}
	if m.errText != "" {
		sections = append(sections, m.styles.Error.Render(m.errText))
	}

	if m.mode == modeUpload {
		sections = append(sections,
			m.styles.Title.Render("Upload a PDF"),
			m.pathInput.View(),
			m.styles.Footer.Render("enter: upload  esc: back"),
		)
	} else {
		sections = append(sections,
			m.styles.RenderDivider(m.viewport.Width),
			m.input.View(),
			m.styles.Footer.Render("enter: send  ctrl+u: upload  ctrl+s: sessions  ctrl+n: new chat  ctrl+c: quit"),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	title := "UrduWhiz"
	snapshot := m.deps.Sessions.Active()
	if snapshot.Title != "" {
		title += " - " + snapshot.Title
	}

	right := ""
	switch m.authState {
	case auth.StateAuthenticated:
		if id := m.deps.Auth.Identity(); id != nil {
			right = m.styles.Muted.Render(id.Username)
		}
	default:
		right = m.styles.Warning.Render("anonymous")
	}

	header := m.styles.Header.Render(title)
	if right != "" {
		header += "  " + right
	}
	return header
}

// emptyView shows the onboarding hints: upload first, then either pick a
// starter question or type your own.
func (m Model) emptyView() string {
	var b strings.Builder
	b.WriteString("\n")

	if m.welcome {
		b.WriteString(m.styles.Success.Render("Welcome back!"))
		b.WriteString("\n\n")
	}

	if _, bound := m.deps.Sessions.Gate().Collection(); !bound {
		b.WriteString(m.styles.Body.Render("سب سے پہلے اپنی کہانی کو پی ڈی ایف فارمیٹ میں اپ لوڈ کریں، اور پھر اس کہانی سے متعلق سوال کریں۔"))
		b.WriteString("\n\n")
		b.WriteString(m.styles.Muted.Render("Press ctrl+u to upload a PDF."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.styles.Body.Render("کوئی تین کارڈز میں سے کوئی ایک چنیں، یا اپنا سوال خود درج کریں۔"))
	b.WriteString("\n\n")
	for _, q := range StarterQuestions {
		b.WriteString("  " + m.styles.Muted.Render("- "+q) + "\n")
	}
	return b.String()
}
