package secrets

import (
	"context"
	"os"

	"api_config/internal/utils"
)

// ManagedSecretBackend is the backend name reported for kubernetes references.
const ManagedSecretBackend = "managed-secret store"

type ownerKey struct{}

// WithOwner names the entity whose secret is being resolved, for log records.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the owner set by WithOwner, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// Resolver turns a secret reference into its plaintext value.
// Implementations may block on I/O and must honor ctx.
type Resolver interface {
	Resolve(ctx context.Context, ref Reference) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ref Reference) (string, error)

// Resolve calls f(ctx, ref).
func (f ResolverFunc) Resolve(ctx context.Context, ref Reference) (string, error) {
	return f(ctx, ref)
}

// DefaultResolver resolves literal and environment references. Managed
// secret store references always fail with UnsupportedBackendError.
// Encrypted literals are decrypted only when a Decrypter is configured.
type DefaultResolver struct {
	lookupEnv func(string) (string, bool)
	decrypter Decrypter
	logger    *utils.Logger
}

// Option configures a DefaultResolver
type Option func(*DefaultResolver)

// WithLookupEnv replaces os.LookupEnv for environment references.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(r *DefaultResolver) {
		r.lookupEnv = lookup
	}
}

// WithDecrypter opens encrypted literals with d instead of returning the
// stored value verbatim.
func WithDecrypter(d Decrypter) Option {
	return func(r *DefaultResolver) {
		r.decrypter = d
	}
}

// WithLogger sets the logger used for resolution warnings.
func WithLogger(logger *utils.Logger) Option {
	return func(r *DefaultResolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver backed by the process environment.
func NewResolver(opts ...Option) *DefaultResolver {
	r := &DefaultResolver{
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = utils.NewLogger("secrets")
	}
	return r
}

// Resolve returns the plaintext for ref. There are no retries: each call is a
// single lookup.
func (r *DefaultResolver) Resolve(ctx context.Context, ref Reference) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ref.Validate(); err != nil {
		return "", err
	}

	switch ref.Type {
	case ReferenceTypeLiteral:
		if !ref.Literal.IsEncrypted() {
			return ref.Literal.Value, nil
		}
		if r.decrypter == nil {
			keyvals := []interface{}{"reference", ref.String()}
			if owner := OwnerFromContext(ctx); owner != "" {
				keyvals = append(keyvals, "owner", owner)
			}
			r.logger.Warn("Encrypted literal secret returned without decryption", keyvals...)
			return ref.Literal.Value, nil
		}
		return r.decrypter.Decrypt(ref.Literal.Value)

	case ReferenceTypeEnvironment:
		value, ok := r.lookupEnv(ref.Environment.VariableName)
		if !ok {
			return "", &MissingEnvironmentVariableError{Name: ref.Environment.VariableName}
		}
		return value, nil

	default:
		return "", &UnsupportedBackendError{Backend: ManagedSecretBackend}
	}
}
