// Package auth carries the session owner's identity through request contexts.
package auth

import "context"

// Identity is the authenticated session owner as reported by the auth provider.
type Identity struct {
	UID           string `json:"uid"`
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl"`
	EmailVerified bool   `json:"emailVerified"`
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (i Identity) Authenticated() bool {
	return i.UID != ""
}

type contextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.Authenticated()
}

// UID returns the session owner's uid or "" for anonymous contexts.
func UID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UID
}
