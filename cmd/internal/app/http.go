package app

import (
	"net/http"
	"time"
)

// routes registers every HTTP endpoint of the server on mux.
func (a *App) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.Ping(r.Context(), 2*time.Second); err != nil {
			a.log.Warn("readyz.db.not_ready", "backend", a.db.kind, "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/ws", a.ws)
	a.auth.Register(mux)
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.routes(mux)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log, a.metrics)
}
