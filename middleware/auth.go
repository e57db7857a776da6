// Package middleware provides httprouter wrappers for the resolver's HTTP
// service: bearer-token auth and an in-flight request cap.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequireBearerToken rejects requests whose Authorization header doesn't
// carry the configured token. An empty apiToken disables the check
// entirely, since the resolver is frequently run behind a trusted network
// boundary with no token configured.
func RequireBearerToken(apiToken string, next httprouter.Handle) httprouter.Handle {
	if apiToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "no authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != apiToken {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, ps)
	}
}
