// Package sentry wraps error reporting. With no SENTRY_DSN configured every
// helper degrades to plain logging.
package sentry

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// ignoredErrors contains error messages that should be logged but not sent to
// Sentry. These are caused by scanners or normal client disconnects and
// create noise.
var ignoredErrors = []string{
	"first record does not look like a TLS handshake", // plain TCP to the TLS port
	"tls: unsupported SSLv2 handshake received",
	"connection reset by peer",
	"EOF",
	"broken pipe",
	"use of closed network connection",
}

// Init configures the global Sentry client from the SENTRY_DSN environment
// variable. Reporting stays disabled when it is unset.
func Init(release string) {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		log.Printf("sentry init failed: %v", err)
		return
	}
	log.Println("Sentry error reporting enabled")
}

// Flush drains buffered events on shutdown.
func Flush() {
	sentry.Flush(2 * time.Second)
}

// shouldIgnore checks if an error should be filtered out from Sentry.
func shouldIgnore(err error) bool {
	if err == nil {
		return true
	}
	type timeoutError interface{ Timeout() bool }
	if te, ok := err.(timeoutError); ok && te.Timeout() {
		return true
	}
	errStr := err.Error()
	for _, ignored := range ignoredErrors {
		if strings.Contains(errStr, ignored) {
			return true
		}
	}
	return false
}

// CaptureError logs an error locally and reports it to Sentry.
func CaptureError(err error, message string) {
	log.Printf("%s: %v", message, err)
	if shouldIgnore(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("message", message)
		sentry.CaptureException(err)
	})
}

// CaptureErrorf logs and reports an error with a formatted message.
func CaptureErrorf(err error, format string, args ...interface{}) {
	CaptureError(err, fmt.Sprintf(format, args...))
}
