// Package authctx carries the validated tenant/user/role context the
// engine consumes from an external authenticator (spec §1, "the core
// consumes a validated tenant/user/role context"; token issuance itself
// is explicitly out of scope). It also provides the reference server's
// own JWT validation, standing in for that external authenticator in
// tests and local development.
package authctx

import "context"

// Identity is the authenticated context an external authenticator
// hands the core.
type Identity struct {
	TenantID string
	UserID   string
	Roles    []string
	ClientID string
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the Identity a prior WithIdentity call attached.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// HasRole reports whether id carries role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}
