package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// callbackPath matches the redirect target registered with the backend's
// OAuth flow.
const callbackPath = "/google/callback"

// WaitForCallback runs a local HTTP listener until the Google OAuth redirect
// arrives, then returns the one-time access token it carried. The token is
// handed to the caller and never logged; a redirect without an access_token
// parameter is an error and nothing is stored.
func WaitForCallback(ctx context.Context, addr string) (string, error) {
	tokenChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")
		if token == "" {
			http.Error(w, "Login failed: no credential received", http.StatusBadRequest)
			errChan <- fmt.Errorf("oauth redirect carried no access token")
			return
		}

		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
			<head><title>UrduWhiz</title></head>
			<body style="font-family: sans-serif; text-align: center; padding: 50px;">
				<h1>Login successful!</h1>
				<p>You can close this tab and return to the terminal.</p>
			</body>
			</html>
		`))

		tokenChan <- token
	})

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case token := <-tokenChan:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return token, nil
	case err := <-errChan:
		server.Close()
		return "", err
	case <-ctx.Done():
		server.Close()
		return "", ctx.Err()
	}
}
