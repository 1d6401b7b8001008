// Package auth resolves the credentials used for web service calls.
//
// Credentials come either from explicit settings fields or from a named entry
// in an external credential store. Resolution fails closed: a call never
// proceeds with a blank username or password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by a Provider when no credential exists under a name.
	ErrNotFound = errors.New("credential not found")

	// ErrMissingCredentials indicates a named credential reference could not be resolved.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrIncompleteCredentials indicates the resolved credentials lack a required field.
	ErrIncompleteCredentials = errors.New("incomplete credentials")
)

// Scheme selects how a request authenticates against the web service.
type Scheme string

const (
	// SchemeNone sends requests without authentication.
	SchemeNone Scheme = "none"

	// SchemeBasic uses HTTP Basic authentication.
	SchemeBasic Scheme = "basic"

	// SchemeNTLM uses the NTLM challenge-response handshake.
	SchemeNTLM Scheme = "ntlm"

	// SchemeBearer sends an OAuth-style bearer token.
	SchemeBearer Scheme = "bearer"
)

// ParseScheme converts a configuration string to a Scheme.
// An empty string maps to SchemeNone.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SchemeNone, nil
	case "basic":
		return SchemeBasic, nil
	case "ntlm":
		return SchemeNTLM, nil
	case "bearer", "oauth", "token":
		return SchemeBearer, nil
	default:
		return "", fmt.Errorf("unknown auth scheme %q", s)
	}
}

// Credentials is a resolved credential set.
type Credentials struct {
	Username string
	Password string
	// Domain is the Windows domain for NTLM.
	Domain string
	// Token is the bearer token for SchemeBearer.
	Token string
}

// Principal returns the user name in DOMAIN\user form when a domain is set.
func (c Credentials) Principal() string {
	if c.Domain == "" {
		return c.Username
	}
	return c.Domain + `\` + c.Username
}

// Config is the credential part of the node settings.
type Config struct {
	Scheme   Scheme
	Username string
	Password string
	Domain   string
	Token    string

	// CredentialName references an entry in the credential store.
	// When set it takes precedence over the explicit fields.
	CredentialName string
}

// Provider looks up named credentials.
type Provider interface {
	// Resolve returns the credentials stored under name, or ErrNotFound.
	Resolve(ctx context.Context, name string) (Credentials, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, name string) (Credentials, error)

// Resolve calls f.
func (f ProviderFunc) Resolve(ctx context.Context, name string) (Credentials, error) {
	return f(ctx, name)
}

// StaticProvider is an in-memory Provider.
type StaticProvider map[string]Credentials

// Resolve implements Provider.
func (p StaticProvider) Resolve(_ context.Context, name string) (Credentials, error) {
	creds, ok := p[name]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}
