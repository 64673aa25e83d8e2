package server

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mazeforge/mazeforge/internal/logger"
)

// bcrypt cost factor (12 is a good balance of security and performance)
const bcryptCost = 12

// HashPassword derives the bcrypt hash the auth config expects for the
// shared API password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// requireAuth wraps the API routes with HTTP basic auth. Without a
// configured password hash every request passes through. Failed
// attempts count toward a per-IP lockout with exponential backoff.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := s.GetServerConfig().Auth
		if !auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getRealIP(r)
		if s.authLimiter != nil {
			if locked, remaining := s.authLimiter.IsLocked(clientIP); locked {
				logger.Warning("Rejected request from locked-out IP",
					"client_ip", clientIP,
					"remaining", remaining.Round(time.Second))
				writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
				return
			}
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != auth.Username ||
			bcrypt.CompareHashAndPassword([]byte(auth.PasswordHash), []byte(pass)) != nil {
			// Only presented credentials count toward the lockout.
			if ok && s.authLimiter != nil {
				s.authLimiter.RecordFailure(clientIP)
			}
			logger.Warning("Rejected unauthorized request",
				"path", r.URL.Path,
				"client_ip", clientIP)
			w.Header().Set("WWW-Authenticate", `Basic realm="mazeforge"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if s.authLimiter != nil {
			s.authLimiter.RecordSuccess(clientIP)
		}
		next.ServeHTTP(w, r)
	})
}
