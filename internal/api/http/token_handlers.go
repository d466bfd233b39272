package http

import (
	"encoding/json"
	"net/http"
	"strings"

	authmw "github.com/pinky28/moodle-mod-congrea/internal/auth/middleware"
	"github.com/pinky28/moodle-mod-congrea/internal/token"
)

// TokenHandler hands the logged-in session user a web-service token for the
// RPC surface. GET /webservice/token, bearer session required.
func TokenHandler(tokens *token.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := authmw.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		tok, err := tokens.IssueForUser(r.Context(), ident.UserID, ident.SID, isTLS(r))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tok)
	}
}

func isTLS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
