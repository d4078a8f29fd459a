package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server with timeouts suitable for an internet-facing
// service. Write timeout stays above the slow-request detection threshold so
// the monitor sees slow handlers before the server cuts them off.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
