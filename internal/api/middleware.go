// Package api implements the notionvault REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// queryTokenParam carries the token for GET requests from clients that
// cannot set headers, such as a browser EventSource.
const queryTokenParam = "access_token"

// AuthMiddleware rejects requests that do not present token. The token is
// read from "Authorization: Bearer <token>" or, on GET requests only, from
// the access_token query parameter. With enabled false every request passes.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := presentedToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="notionvault"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.CutPrefix(h, "Bearer ")
	}
	if r.Method == http.MethodGet {
		if q := r.URL.Query().Get(queryTokenParam); q != "" {
			return q, true
		}
	}
	return "", false
}
