package window

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrUnauthorized     = errors.New("window: unauthorized")
	ErrOriginNotAllowed = errors.New("window: origin not allowed")
)

// Trust is the cross-origin policy the host explicitly configures for
// embedded frames connecting over the network. Empty AllowedOrigins
// admits same-origin requests only; "*" admits any origin.
type Trust struct {
	AllowedOrigins []string
	Token          string
}

// CheckOrigin reports whether r's Origin header is acceptable.
func (t Trust) CheckOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range t.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	if len(t.AllowedOrigins) > 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Authorize validates the shared token, when one is configured, from a
// bearer header or the token query parameter.
func (t Trust) Authorize(r *http.Request) error {
	if t.Token == "" {
		return nil
	}
	presented := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		presented = strings.TrimPrefix(h, "Bearer ")
	}
	if subtle.ConstantTimeCompare([]byte(t.Token), []byte(presented)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
