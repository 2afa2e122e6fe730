// Package device derives a coarse device label from the User-Agent so logs
// and audit records can say "chrome/macos/desktop" without storing raw headers.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"cidledger/pkg/requestcontext"
)

const unknown = "unknown"

// Label returns "browser/os/platform" for a User-Agent string.
func Label(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return unknown
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}

	browser, _ := ua.Browser()
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}
	return clean(browser) + "/" + clean(ua.OS()) + "/" + platform
}

func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return unknown
	}
	return strings.ReplaceAll(s, " ", "_")
}

// Middleware stores the device label in the request context. Register it
// after the metadata middleware, which captures the User-Agent.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithDeviceLabel(ctx, Label(requestcontext.UserAgent(ctx)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
