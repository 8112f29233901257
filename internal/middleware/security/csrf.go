package security

import (
	"net/http"

	csrf "filippo.io/csrf/gorilla"

	"finease/internal/log"
)

// CSRFConfig holds configuration for CSRF protection. The gorilla-compatible
// package checks Fetch metadata and Origin headers, so no token cookie is set.
type CSRFConfig struct {
	AuthKey []byte
	// TrustedOrigins are host[:port] values allowed to post cross-origin.
	TrustedOrigins []string
	ErrorHandler   http.Handler
}

// CSRF returns middleware rejecting cross-origin state-changing requests.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	errorHandler := cfg.ErrorHandler
	if errorHandler == nil {
		errorHandler = http.HandlerFunc(csrfErrorHandler)
	}
	opts := []csrf.Option{csrf.ErrorHandler(errorHandler)}
	if len(cfg.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(cfg.TrustedOrigins))
	}
	return csrf.Protect(cfg.AuthKey, opts...)
}

// CSRFFailure returns why the request was rejected, for error handlers.
func CSRFFailure(r *http.Request) string {
	if reason := csrf.FailureReason(r); reason != nil {
		return reason.Error()
	}
	return "unknown"
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "CSRF validation failed",
		"reason", CSRFFailure(r),
		"origin", r.Header.Get("Origin"),
		"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"))
	http.Error(w, "Forbidden - CSRF validation failed", http.StatusForbidden)
}
