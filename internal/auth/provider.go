// Package auth manages who is signed in. A Provider is the identity
// collaborator; Manager turns its identity events into mood.Session values.
package auth

import (
	"context"
	"strings"
	"time"
)

// Method is a federated sign-in method.
type Method string

const (
	MethodGoogle Method = "google"
	MethodApple  Method = "apple"
)

// Methods lists the supported sign-in methods.
var Methods = []Method{MethodGoogle, MethodApple}

// ParseMethod returns the Method named by s (case-insensitive).
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Methods {
		if v == m {
			return v, true
		}
	}
	return "", false
}

// Claims are the profile fields asserted by the federated identity.
type Claims struct {
	Email       string
	DisplayName *string
	PhotoURL    *string
}

// Identity is the provider's view of a signed-in user.
type Identity struct {
	UID         string
	Email       string
	DisplayName *string
	PhotoURL    *string
	Method      Method
	// CreatedAt is when the user first signed in
	CreatedAt time.Time
	// Token is the bearer credential for this sign-in
	Token string
}

// Provider is the identity collaborator. It holds at most one current
// identity and notifies listeners whenever that changes (nil = signed out).
type Provider interface {
	SignIn(ctx context.Context, method Method, claims Claims) (*Identity, error)
	SignOut(ctx context.Context) error
	CurrentIdentity(ctx context.Context) (*Identity, error)
	// OnAuthStateChanged registers fn and calls it once with the current
	// identity. The returned func unregisters it.
	OnAuthStateChanged(fn func(*Identity)) (unsubscribe func())
}

// TokenAuthenticator issues and resolves bearer tokens without touching any
// current identity. Used by multi-user surfaces.
type TokenAuthenticator interface {
	Issue(ctx context.Context, method Method, claims Claims) (*Identity, error)
	// Resolve returns nil, nil for unknown or expired tokens.
	Resolve(ctx context.Context, token string) (*Identity, error)
	Revoke(ctx context.Context, token string) error
}
