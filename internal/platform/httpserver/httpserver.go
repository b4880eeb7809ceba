package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server for the local proctoring surfaces (the agent's
// exam API, the monitor dashboard). Both serve small JSON responses on a
// trusted interface, so timeouts are tight.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
