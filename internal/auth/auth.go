// Package auth resolves the session credentials used by the realtime and
// REST clients.
//
// Tokens are issued by the marketplace backend. When a token is a JWT its
// claims are inspected, without signature verification, to fill in the user
// id and to refuse tokens that have already expired. The server remains the
// authority; opaque tokens pass through unchanged.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken    = errors.New("session token is required")
	ErrMissingUserID   = errors.New("user id is required")
	ErrTokenExpired    = errors.New("session token has expired")
	ErrSubjectMismatch = errors.New("token subject does not match user id")
)

// Credentials identify the local user to the messaging backend.
type Credentials struct {
	UserID    string
	Token     string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// LogValue keeps the token out of logs.
func (c Credentials) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("user_id", c.UserID),
		slog.Bool("token_set", c.Token != ""),
	}
	if !c.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", c.ExpiresAt))
	}
	return slog.GroupValue(attrs...)
}

// ExpiresIn returns the time left before the token expires, or zero if the
// expiry is unknown.
func (c Credentials) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// sessionClaims are the claims the backend puts in its tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Resolve validates a user id / token pair. userID may be empty when the
// token is a JWT naming the user.
func Resolve(userID, token string) (Credentials, error) {
	return resolve(userID, token, time.Now())
}

func resolve(userID, token string, now time.Time) (Credentials, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if token == "" {
		return Credentials{}, ErrMissingToken
	}

	creds := Credentials{UserID: userID, Token: token}

	var claims sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil {
		subject := claims.UserID
		if subject == "" {
			subject = claims.Subject
		}

		switch {
		case creds.UserID == "":
			creds.UserID = subject
		case subject != "" && subject != creds.UserID:
			return Credentials{}, fmt.Errorf("%w: token names %q", ErrSubjectMismatch, subject)
		}

		if claims.ExpiresAt != nil {
			creds.ExpiresAt = claims.ExpiresAt.Time.UTC()
			if !creds.ExpiresAt.After(now) {
				return Credentials{}, fmt.Errorf("%w at %s", ErrTokenExpired, creds.ExpiresAt.Format(time.RFC3339))
			}
		}
	}

	if creds.UserID == "" {
		return Credentials{}, ErrMissingUserID
	}

	return creds, nil
}

// LoadToken reads a session token from a file, trimming surrounding
// whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// LoadCredentials resolves credentials from a user id and either an inline
// token or a token file. The inline token wins when both are set.
func LoadCredentials(userID, token, tokenFile string) (Credentials, error) {
	if strings.TrimSpace(token) == "" && tokenFile != "" {
		t, err := LoadToken(tokenFile)
		if err != nil {
			return Credentials{}, err
		}
		token = t
	}
	return Resolve(userID, token)
}
