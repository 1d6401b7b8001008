package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Resolver produces validated credentials for a single call.
// It keeps no state between calls so settings changes are always honored.
type Resolver struct {
	provider Provider
	logger   zerolog.Logger
}

// NewResolver creates a resolver. provider may be nil when no credential
// store is configured; named references then fail with ErrMissingCredentials.
func NewResolver(provider Provider, logger zerolog.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		logger:   logger,
	}
}

// Resolve returns the effective credentials for cfg.
func (r *Resolver) Resolve(ctx context.Context, cfg Config) (Credentials, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = SchemeNone
	}

	var creds Credentials
	if name := strings.TrimSpace(cfg.CredentialName); name != "" {
		if r.provider == nil {
			return Credentials{}, fmt.Errorf("%w: no credential store configured for %q", ErrMissingCredentials, name)
		}

		stored, err := r.provider.Resolve(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Credentials{}, fmt.Errorf("%w: %q is not defined", ErrMissingCredentials, name)
			}
			return Credentials{}, fmt.Errorf("resolve credential %q: %w", name, err)
		}

		r.logger.Debug().
			Str("credential", name).
			Str("scheme", string(scheme)).
			Msg("Resolved named credential")
		creds = stored
	} else {
		creds = Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
			Domain:   cfg.Domain,
			Token:    cfg.Token,
		}
	}

	if scheme == SchemeNTLM && creds.Domain == "" {
		if domain, user, ok := strings.Cut(creds.Username, `\`); ok {
			creds.Domain = domain
			creds.Username = user
		}
	}

	if err := validate(scheme, creds); err != nil {
		return Credentials{}, err
	}

	return creds, nil
}

func validate(scheme Scheme, creds Credentials) error {
	switch scheme {
	case SchemeNone:
		return nil
	case SchemeBasic, SchemeNTLM:
		if strings.TrimSpace(creds.Username) == "" {
			return fmt.Errorf("%w: username is empty", ErrIncompleteCredentials)
		}
		if strings.TrimSpace(creds.Password) == "" {
			return fmt.Errorf("%w: password is empty", ErrIncompleteCredentials)
		}
		return nil
	case SchemeBearer:
		if strings.TrimSpace(creds.Token) == "" {
			return fmt.Errorf("%w: token is empty", ErrIncompleteCredentials)
		}
		return nil
	default:
		return fmt.Errorf("unknown auth scheme %q", scheme)
	}
}
