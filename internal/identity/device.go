package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DeviceCookieName = "acbuy_device_id"
	deviceCookieTTL  = 30 * 24 * time.Hour
)

type contextKey int

const deviceIDKey contextKey = iota

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// DeviceIDFromContext extracts the browser's device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithDeviceID returns a context carrying id. Used by tests and internal callers.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey, id)
}

func newDeviceID() string {
	return "dev_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func setDeviceCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieTTL.Seconds()),
		Expires:  time.Now().Add(deviceCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// DeviceMiddleware gives every browser a stable anonymous device ID so its
// requests land on the same session. The ID says nothing about who is
// logged in; that is tracked per session by the Provider.
func DeviceMiddleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(DeviceCookieName); err == nil && isValidDeviceID(c.Value) {
				id = c.Value
			} else {
				id = newDeviceID()
			}
			// Refresh the expiry on every visit.
			setDeviceCookie(w, id, !isDev)

			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), id)))
		})
	}
}
