// Package auth carries the authenticated caller identity through request
// contexts. Interview clients connect over websockets, where browsers cannot
// attach headers to the upgrade request, so credentials may also arrive via
// the api_key query parameter or in-band in the hello frame.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal identifies an authenticated caller.
type Principal struct {
	APIKey string
}

type principalKey struct{}

// WithPrincipal attaches p to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by WithPrincipal, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// ParseBearer extracts the token from an "Authorization: Bearer" header.
func ParseBearer(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// FromQuery returns the api_key query parameter. Websocket clients use it
// when they cannot set headers on the upgrade request.
func FromQuery(r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.URL.Query().Get("api_key"))
	return key, key != ""
}
