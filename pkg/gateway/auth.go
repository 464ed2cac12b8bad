package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
)

// SecretHeader carries the shared secret on HTTP requests
const SecretHeader = "X-ERPTools-Secret"

// maxAuthAttempts closes a websocket after this many bad signatures
const maxAuthAttempts = 3

// AuthHandler authenticates callers against the shared secret.
// HTTP callers send the secret in SecretHeader; websocket callers answer
// an HMAC-SHA256 challenge so the secret never crosses the socket.
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// Enabled reports whether a shared secret is configured
func (a *AuthHandler) Enabled() bool {
	return a.sharedSecret != ""
}

// CheckRequest verifies the shared secret header of an HTTP request
func (a *AuthHandler) CheckRequest(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.sharedSecret)) == 1
}

// GenerateChallenge generates a cryptographically random 32-byte challenge
func (a *AuthHandler) GenerateChallenge() (string, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// Sign returns the hex HMAC-SHA256 of challenge under secret
func Sign(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature against a challenge
func (a *AuthHandler) VerifySignature(challenge, signature string) bool {
	expected := Sign(a.sharedSecret, challenge)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// HandleAuthResponse checks a client's answer to its pending challenge and
// moves the client to StateAuthenticated on success
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	challenge := client.pendingChallenge()
	if challenge == "" {
		return AuthResult{
			Event:   "auth.failure",
			Message: "No challenge found",
		}
	}

	if !a.VerifySignature(challenge, signature) {
		if client.recordFailedAttempt() >= maxAuthAttempts {
			return AuthResult{
				Event:   "auth.failure",
				Message: "Too many failed attempts",
			}
		}
		return AuthResult{
			Event:   "auth.failure",
			Message: "Invalid signature",
		}
	}

	client.markAuthenticated()
	return AuthResult{
		Event:   "auth.success",
		Success: true,
	}
}
