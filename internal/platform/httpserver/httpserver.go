package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server with timeouts sized for this service. The write
// timeout leaves room for audio artifact responses; verification calls carry
// their own deadline inside the handler chain.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
