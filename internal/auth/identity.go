// ABOUTME: API-key authentication and identity propagation via context
// ABOUTME: Resolves a credential to its (user, agent) pair exactly once per request

package auth

import (
	"context"
	"errors"

	"github.com/snowcapsystems/lucycore/internal/store"
)

// ErrInvalidCredential is returned for empty or unknown API keys. It is
// deliberately the same for both so a prober learns nothing about which
// keys exist.
var ErrInvalidCredential = errors.New("invalid credential")

// Resolver looks up the identity behind an API key. *store.SQLiteStore
// satisfies it.
type Resolver interface {
	IdentityByAPIKey(ctx context.Context, apiKey string) (*store.Identity, error)
}

// Authenticator resolves inbound credentials against the store.
type Authenticator struct {
	resolver Resolver
}

// NewAuthenticator creates an Authenticator backed by the given resolver.
func NewAuthenticator(resolver Resolver) *Authenticator {
	return &Authenticator{resolver: resolver}
}

// Resolve maps an API key to its identity. The caller attaches the
// result to its context once; everything downstream trusts the resolved
// identity and never re-reads the credential.
func (a *Authenticator) Resolve(ctx context.Context, apiKey string) (*store.Identity, error) {
	if apiKey == "" {
		return nil, ErrInvalidCredential
	}

	identity, err := a.resolver.IdentityByAPIKey(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// identityKey is the key type for storing an Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the identity attached.
func WithIdentity(ctx context.Context, identity *store.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext retrieves the identity from the context, returning nil if
// not present.
func FromContext(ctx context.Context) *store.Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	identity, ok := val.(*store.Identity)
	if !ok {
		return nil
	}
	return identity
}

// MustFromContext retrieves the identity from the context, panicking if
// not present.
func MustFromContext(ctx context.Context) *store.Identity {
	identity := FromContext(ctx)
	if identity == nil {
		panic("auth: identity not found in context")
	}
	return identity
}
