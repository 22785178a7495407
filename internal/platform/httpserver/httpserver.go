package httpserver

import (
	"net/http"
	"time"
)

// New returns the API server for addr. Header reads are bounded; request
// bodies are bounded per route by the shared timeout middleware instead.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
