package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CredentialVerifier compares a presented secret with one configured secret.
// With no secret configured it rejects everything.
type CredentialVerifier struct {
	secret string
}

func NewCredentialVerifier(secret string) CredentialVerifier {
	return CredentialVerifier{secret: secret}
}

// Configured reports whether a secret is set.
func (v CredentialVerifier) Configured() bool {
	return v.secret != ""
}

// Verify reports whether presented equals the configured secret.
func (v CredentialVerifier) Verify(presented string) bool {
	if v.secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(v.secret)) == 1
}

// presentedCredential extracts the admin credential from a request:
// "Authorization: Bearer <token>", or the X-Admin-Token header.
func presentedCredential(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Token"))
}

// requireAdmin rejects requests whose credential the verifier does not accept.
// It runs before the body is read so a bad credential never reaches the store
// or the asset host.
func requireAdmin(v CredentialVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !v.Verify(presentedCredential(c.Request())) {
				zap.L().Info("admin request rejected",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.String("remote", c.RealIP()))
				return newAppError(KindUnauthorized, "Unauthorized")
			}
			return next(c)
		}
	}
}
