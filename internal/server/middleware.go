package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/auth"
)

// bearerAuth rejects requests that do not carry a valid HS256 bearer
// token signed with secret.
func bearerAuth(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := auth.ParseHS256(key, token)
			if err != nil {
				log.Warn("rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			log.Debug("authenticated caller", zap.String("caller", claims.Caller))
			next.ServeHTTP(w, r)
		})
	}
}
