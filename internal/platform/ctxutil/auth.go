package ctxutil

import (
	"context"
	"strings"
)

const (
	ScopeProductRead  = "product:read"
	ScopeProductWrite = "product:write"
)

// AuthContext is the caller identity extracted from a verified bearer token.
type AuthContext struct {
	Subject string
	Scopes  []string
}

type authContextKey struct{}

// Anonymous is attached when authorization is disabled.
func Anonymous() AuthContext {
	return AuthContext{Subject: "anonymous", Scopes: []string{ScopeProductRead, ScopeProductWrite}}
}

func (a AuthContext) HasScope(scope string) bool {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return true
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

func GetAuthContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(AuthContext)
	return ac, ok
}

// ParseScopes splits an OAuth2 space-delimited scope claim.
func ParseScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
