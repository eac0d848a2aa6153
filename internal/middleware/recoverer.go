package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"moneta/internal/credstore"
	"moneta/internal/logs"
	"moneta/internal/session"
)

// Recoverer is the process-wide fallback handler: it catches panics, logs the
// stack and returns a generic failure page. Expired-credential errors escaping
// deeper layers get the same clear-session-and-redirect as the lifecycle guard.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqid := GetRequestID(r)

				if err, ok := rec.(error); ok && errors.Is(err, credstore.ErrSessionExpired) {
					logs.Logger.Warnf("expired credential surfaced late: %v reqid=%s uri=%s", err, reqid, r.RequestURI)
					if s := session.FromContext(r.Context()); s != nil {
						_ = s.Clear(r.Context())
						s.AddFlash("error", "Session expired. Please login again.")
						_ = s.Save(r.Context())
					}
					http.Redirect(w, r, "/login", http.StatusFound)
					return
				}

				logs.Logger.Errorf("panic: %v reqid=%s uri=%s method=%s\nstack:\n%s",
					rec, reqid, r.RequestURI, r.Method, string(debug.Stack()))
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("<html><body><h1>Something went wrong</h1><p>Request id: " +
					reqid + "</p></body></html>"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
