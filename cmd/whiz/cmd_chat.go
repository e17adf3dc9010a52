package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"urduwhiz/cmd/whiz/chat"
)

// uploadCmd binds a PDF outside the TUI
var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF to chat about",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

// askCmd sends one question without entering the TUI
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question about a PDF",
	Long: `Send a single question and print the answer.

A document must be bound first, either by continuing an existing session
or by uploading a PDF in the same call:

  whiz ask --session <id> "سوال"
  whiz ask --pdf story.pdf "سوال"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var (
	askSessionID string
	askPDF       string
)

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "Continue an existing session")
	askCmd.Flags().StringVar(&askPDF, "pdf", "", "Upload this PDF before asking")
}

func runUpload(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := requireLogin(cmd, a); err != nil {
		return err
	}

	note, err := a.sessions.Upload(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(note)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := requireLogin(cmd, a); err != nil {
		return err
	}

	switch {
	case askSessionID != "":
		a.sessions.Load(cmd.Context(), askSessionID)
	case askPDF != "":
		if _, err := a.sessions.Upload(cmd.Context(), askPDF); err != nil {
			return err
		}
	default:
		return fmt.Errorf("bind a document first: pass --session or --pdf")
	}

	if err := a.dispatcher.Send(cmd.Context(), args[0]); err != nil {
		return err
	}

	snapshot := a.sessions.Active()
	if len(snapshot.Messages) == 0 {
		return fmt.Errorf("no answer received")
	}
	fmt.Println(snapshot.Messages[len(snapshot.Messages)-1].Content)
	return nil
}

// runChat launches the interactive terminal.
func runChat(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	model := chat.New(chat.Deps{
		Auth:       a.authMgr,
		Sessions:   a.sessions,
		Dispatcher: a.dispatcher,
		Store:      a.store,
		Logger:     logger,
		Theme:      cfg.UI.Theme,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())

	// The expiry hook fires from inside a request; the running program
	// needs to hear about it to drop the header to anonymous.
	a.client.Transport().OnAuthExpired = func() {
		a.authMgr.ForceAnonymous()
		program.Send(chat.AuthExpired())
	}

	_, err = program.Run()
	return err
}
