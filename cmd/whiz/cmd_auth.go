package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"urduwhiz/internal/auth"
)

// loginCmd authenticates with the backend
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in to UrduWhiz",
	Long: `Log in with a username and password, or with a Google account.

Password login prompts for the password; it is never echoed.
Google login opens the browser and waits for the OAuth redirect:

  whiz login --google`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var loginGoogle bool

// logoutCmd ends the session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and discard the stored credential",
	RunE:  runLogout,
}

// registerCmd creates an account
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new UrduWhiz account",
	Long: `Create an account with a username, email, and password.

The account stays unusable until the email address is verified; a
verification link is sent after registration. See 'whiz verify'.`,
	RunE: runRegister,
}

// verifyCmd confirms an email address
var verifyCmd = &cobra.Command{
	Use:   "verify [token]",
	Short: "Verify an email address",
	Long: `Confirm an email address with the token from the verification email,
or request a fresh verification email:

  whiz verify <token>
  whiz verify --send you@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var verifySendTo string

// forgotPasswordCmd requests a reset email
var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password <email>",
	Short: "Request a password reset email",
	Args:  cobra.ExactArgs(1),
	RunE:  runForgotPassword,
}

// resetPasswordCmd applies a new password
var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <token>",
	Short: "Set a new password using the emailed reset token",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetPassword,
}

// whoamiCmd shows the current identity
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in identity",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().BoolVar(&loginGoogle, "google", false, "Log in with a Google account")
	verifyCmd.Flags().StringVar(&verifySendTo, "send", "", "Send a verification email to this address")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if loginGoogle {
		return runGoogleLogin(cmd.Context(), a)
	}

	username := ""
	if len(args) == 1 {
		username = args[0]
	}
	if username == "" {
		username, err = promptLine("Username: ")
		if err != nil {
			return err
		}
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	tok, err := a.client.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}

	// The identity fetch needs the fresh token attached.
	if err := a.store.SetToken(tok.AccessToken); err != nil {
		return err
	}
	identity, err := a.client.Me(cmd.Context())
	if err != nil {
		a.store.Clear()
		return err
	}

	if err := a.authMgr.Login(identity, tok.AccessToken); err != nil {
		a.store.Clear()
		if err == auth.ErrNotVerified {
			return fmt.Errorf("email %s is not verified; run 'whiz verify --send %s'",
				identity.Email, identity.Email)
		}
		return err
	}

	a.store.SetLoginMarker()
	fmt.Printf("Logged in as %s (%s)\n", identity.Username, identity.Email)
	return nil
}

// runGoogleLogin drives the browser OAuth flow. The one-time token arrives
// on a local listener and goes straight into the credential store; it is
// never printed or logged.
func runGoogleLogin(ctx context.Context, a *app) error {
	loginURL := a.client.GoogleLoginURL()
	fmt.Println("Opening browser for Google login...")
	fmt.Printf("If the browser doesn't open, visit:\n  %s\n\n", loginURL)
	openBrowser(loginURL)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	fmt.Println("Waiting for login to complete...")
	token, err := auth.WaitForCallback(waitCtx, cfg.OAuth.CallbackAddr)
	if err != nil {
		return fmt.Errorf("google login failed: %w", err)
	}

	if state := a.authMgr.Bootstrap(ctx, token); state != auth.StateAuthenticated {
		return fmt.Errorf("google login did not establish a verified identity")
	}

	a.store.SetLoginMarker()
	identity := a.authMgr.Identity()
	fmt.Printf("Logged in as %s (%s)\n", identity.Username, identity.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	a.authMgr.Logout(cmd.Context())
	fmt.Println("Logged out.")
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	username, err := promptLine("Username: ")
	if err != nil {
		return err
	}
	email, err := promptLine("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	if err := a.client.Register(cmd.Context(), username, email, password); err != nil {
		return err
	}

	fmt.Printf("Account created. A verification link was sent to %s.\n", email)
	fmt.Println("Verify the address, then run 'whiz login'.")
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if verifySendTo != "" {
		msg, err := a.client.SendVerification(cmd.Context(), verifySendTo)
		if err != nil {
			return err
		}
		fmt.Println(msg.Message)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("provide the verification token, or --send <email>")
	}
	msg, err := a.client.VerifyEmail(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(msg.Message)
	return nil
}

func runForgotPassword(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	msg, err := a.client.ForgotPassword(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(msg.Message)
	return nil
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	password, err := promptPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	msg, err := a.client.ResetPassword(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}
	fmt.Println(msg.Message)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	state := a.authMgr.Bootstrap(cmd.Context(), "")
	if state != auth.StateAuthenticated {
		fmt.Println("Not logged in.")
		return nil
	}
	identity := a.authMgr.Identity()
	fmt.Printf("Username: %s\n", identity.Username)
	fmt.Printf("Email:    %s\n", identity.Email)
	return nil
}

// Prompt helpers

func promptLine(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	password, err := readPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return password, nil
}

// readPassword wraps term.ReadPassword for testability
var readPassword = func() (string, error) {
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	return string(b), err
}

// openBrowser opens the specified URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
