package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"fleetcare/internal/types"
)

const adminKeyHeader = "X-Admin-Key"

// AdminAuth requires the admin API key, sent either as a Bearer token or in
// the X-Admin-Key header. It passes everything through when no key is
// configured.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(adminKeyHeader)
		if token == "" {
			token = extractBearerToken(r.Header.Get("Authorization"))
		}
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "admin API key is required", nil))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminKey)) != 1 {
			s.Logger.WarnContext(r.Context(), "rejected admin request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid admin API key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken returns the token of an "Authorization: Bearer <token>"
// header value, or "" if the scheme does not match.
func extractBearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
