package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/logger"
)

// RequestLogger injects a request-scoped logger carrying the request id and
// logs one line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)

		l := logger.With(logger.RequestID(rid))
		ctx := logger.ToContext(r.Context(), l)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		l.Info("request",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(sw.status),
			logger.Duration(time.Since(start)),
			logger.ClientIP(r.RemoteAddr),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// SessionBinder copies the session cookie into the context so the user
// directory can resolve the current session user.
func (c *Controller) SessionBinder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := c.flow.Snapshot()
		if ck, err := r.Cookie(cfg.SessionCookie); err == nil && ck.Value != "" {
			r = r.WithContext(directory.WithSessionToken(r.Context(), ck.Value))
		}
		next.ServeHTTP(w, r)
	})
}
