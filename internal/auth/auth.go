// Package auth authenticates outgoing requests to the configuration API.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http/httpguts"

	"api_config/internal/config"
)

// Authenticator applies credentials to a configuration API request.
// Implementations must be safe for concurrent use: the three resource
// fetches share one Authenticator.
type Authenticator interface {
	Apply(ctx context.Context, req *http.Request) error
}

// NoAuth sends requests without credentials.
type NoAuth struct{}

// Apply does nothing.
func (NoAuth) Apply(context.Context, *http.Request) error { return nil }

// StaticHeaderAuth sets a fixed header on every request.
type StaticHeaderAuth struct {
	Header string
	Value  string
}

// NewStaticHeaderAuth validates the header pair.
func NewStaticHeaderAuth(header, value string) (*StaticHeaderAuth, error) {
	if !httpguts.ValidHeaderFieldName(header) {
		return nil, fmt.Errorf("invalid auth header name '%s'", header)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return nil, fmt.Errorf("invalid auth header value for '%s'", header)
	}
	return &StaticHeaderAuth{Header: header, Value: value}, nil
}

// Apply sets the configured header.
func (a *StaticHeaderAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set(a.Header, a.Value)
	return nil
}

// ServiceTokenAuth signs a fresh service token for each request and sends
// it as a bearer token.
type ServiceTokenAuth struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time
}

// NewServiceTokenAuth creates a bearer authenticator signing with secret.
func NewServiceTokenAuth(secret []byte, subject string, ttl time.Duration) (*ServiceTokenAuth, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = config.DefaultServiceTokenTTL
	}
	if subject == "" {
		subject = config.DefaultServiceTokenSubject
	}
	return &ServiceTokenAuth{secret: secret, subject: subject, ttl: ttl, now: time.Now}, nil
}

// Apply signs a token and sets the Authorization header.
func (a *ServiceTokenAuth) Apply(ctx context.Context, req *http.Request) error {
	token, _, err := GenerateServiceToken(a.secret, a.subject, req.Header.Get(RequestIDHeader), a.now().Add(a.ttl))
	if err != nil {
		return fmt.Errorf("failed to sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// NewAuthenticator picks the authenticator configured for the API client.
// A complete static header pair wins over the service token.
func NewAuthenticator(cfg config.APIClientConfig) (Authenticator, error) {
	if cfg.HasStaticAuth() {
		return NewStaticHeaderAuth(cfg.AuthHeader, cfg.AuthValue)
	}
	if len(cfg.JWTSecret) > 0 {
		return NewServiceTokenAuth(cfg.JWTSecret, cfg.JWTSubject, cfg.JWTTTL)
	}
	return NoAuth{}, nil
}
