// Package server builds the HTTP server around the API router.
package server

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 15 * time.Second
)

// New returns an *http.Server for the router with read and write
// deadlines applied. Zero timeouts fall back to the defaults so a
// missing config section cannot produce a server without deadlines.
func New(addr string, router *ginext.Engine, readTimeout, writeTimeout time.Duration) *http.Server {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
