package auth

import (
	"fmt"
	"net/http"
)

// Transport adds the bearer token to every request.
type Transport struct {
	Manager *Manager
	Base    http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Manager.Acquire(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("failed to acquire access token; %w", err)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", tok.Header())

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
