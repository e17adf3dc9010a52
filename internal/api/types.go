// Package api implements the UrduWhiz backend REST contract: wire types,
// the HTTP client, the bearer-credential transport with its single
// refresh-and-replay cycle, and response error classification.
package api

import "time"

// Identity describes the authenticated user as reported by GET /auth/me.
type Identity struct {
	UserID     string `json:"user_id,omitempty"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	IsVerified bool   `json:"is_verified"`
}

// ChatSession is a persisted conversation context. CollectionName is the
// backend handle proving a document is bound to the session; an empty value
// means no document has been uploaded for it yet.
type ChatSession struct {
	SessionID      string    `json:"session_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	CollectionName string    `json:"collection_name,omitempty"`
}

// Message roles. The log is append-only and insertion-ordered.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a session's conversation log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Token is the credential issuance response from POST /auth/login and
// POST /auth/refresh-token. The access token is opaque to the client.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ChatAnswer is the response of POST /api/chat. SessionID echoes the request
// session, or carries the server-assigned id when the request had none.
type ChatAnswer struct {
	Answer     string `json:"answer"`
	ResponseID string `json:"response_id,omitempty"`
	SessionID  string `json:"session_id"`
}

// UploadResult is the response of POST /api/pdf. Status is "new" when the
// document was ingested, "exists" when the backend already had it.
type UploadResult struct {
	Message        string `json:"message"`
	Status         string `json:"status"`
	CollectionName string `json:"collection_name"`
}

// StatusMessage is the generic {"message": ...} acknowledgement used by the
// verification and password-reset endpoints.
type StatusMessage struct {
	Message string `json:"message"`
}

// chatRequest is the POST /api/chat body. SessionID stays optional from the
// start: nil means "this is the session's first message" and the server
// assigns an id in the response.
type chatRequest struct {
	Query     string  `json:"query"`
	SessionID *string `json:"session_id,omitempty"`
}

// registerRequest is the POST /auth/register body.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// emailRequest is the body of the endpoints keyed on an email address.
type emailRequest struct {
	Email string `json:"email"`
}

// resetPasswordRequest is the POST /auth/reset-password body.
type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
