// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// Principal is the authenticated caller of an HTTP request.
// Domain services never read it: handlers pass Subject explicitly as the
// acting identity.
type Principal struct {
	Subject     string
	Roles       []string
	Permissions []string
	SessionID   string
}

type principalKey struct{}

// WithPrincipal adds Principal to context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns Principal from context.
func GetPrincipal(ctx context.Context) *Principal {
	if v, ok := ctx.Value(principalKey{}).(*Principal); ok {
		return v
	}
	return nil
}

// GetSubject returns the principal subject or empty string.
func GetSubject(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.Subject
	}
	return ""
}

// HasPermission reports whether the principal carries perm or the "*" wildcard.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Permissions, "*") || slices.Contains(p.Permissions, perm)
}
