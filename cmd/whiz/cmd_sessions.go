package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"urduwhiz/internal/auth"
)

// sessionsCmd manages chat sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List and manage your chat sessions.

Subcommands:
  list   - List all sessions
  show   - Show one session's conversation
  delete - Delete a session`,
	RunE: runSessionsList,
}

// sessionsListCmd lists sessions
var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE:  runSessionsList,
}

// sessionsShowCmd prints one session's conversation
var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

// sessionsDeleteCmd deletes a session
var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
}

// requireLogin bootstraps the auth state and fails when no verified
// identity is available.
func requireLogin(cmd *cobra.Command, a *app) error {
	if state := a.authMgr.Bootstrap(cmd.Context(), ""); state != auth.StateAuthenticated {
		return fmt.Errorf("not logged in; run 'whiz login' first")
	}
	return nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := requireLogin(cmd, a); err != nil {
		return err
	}

	sessions, err := a.client.Sessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Start one with 'whiz'.")
		return nil
	}

	fmt.Println("Sessions")
	fmt.Println(strings.Repeat("-", 60))
	for i, s := range sessions {
		fmt.Printf("  %d. %s\n", i+1, s.Title)
		fmt.Printf("     id: %s  created: %s\n", s.SessionID, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Total: %d sessions\n", len(sessions))

	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := requireLogin(cmd, a); err != nil {
		return err
	}

	sessionID := args[0]
	messages, err := a.client.SessionMessages(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("Session is empty.")
		return nil
	}

	for _, m := range messages {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := requireLogin(cmd, a); err != nil {
		return err
	}

	sessionID := args[0]
	if err := a.client.DeleteSession(cmd.Context(), sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Printf("Deleted session %s\n", sessionID)
	return nil
}
