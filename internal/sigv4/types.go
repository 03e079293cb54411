// ABOUTME: Collaborator contracts for the authentication pipeline
// ABOUTME: Signing-key resolution, error mapping and readiness interfaces

package sigv4

import (
	"context"
	"time"

	"github.com/driftlock/sigv4gate/internal/principal"
	"github.com/driftlock/sigv4gate/internal/requestid"
)

// SigningKeyRequest asks a KeyProvider for the signing key matching an
// access key id. It is built by the verifier from the request's credential
// scope; the pipeline itself never constructs one.
type SigningKeyRequest struct {
	AccessKeyID  string
	SessionToken string // empty when the request carries no session token
	RequestDate  time.Time
	Region       string
	Service      string
}

// SigningKeyResponse bundles everything a successful key lookup produces.
// It is produced fresh per lookup and never cached by the pipeline.
type SigningKeyResponse struct {
	Principal  principal.Principal
	Session    principal.Session
	SigningKey SigningKey
}

// KeyProvider resolves an access key id to a scoped signing key and the
// principal it belongs to. Implementations must be safe for concurrent use.
// Lookup failures are reported as *AuthError; anything else is treated as an
// internal failure by the caller.
type KeyProvider interface {
	GetSigningKey(ctx context.Context, req *SigningKeyRequest) (*SigningKeyResponse, error)
}

// KeyProviderFunc adapts a plain function to the KeyProvider interface.
type KeyProviderFunc func(ctx context.Context, req *SigningKeyRequest) (*SigningKeyResponse, error)

// GetSigningKey calls f.
func (f KeyProviderFunc) GetSigningKey(ctx context.Context, req *SigningKeyRequest) (*SigningKeyResponse, error) {
	return f(ctx, req)
}

// ReadyChecker reports whether a collaborator can accept work. The pipeline
// is ready only when every collaborator that implements this is ready.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// ErrorResponse is a fully rendered wire response for an authentication
// failure.
type ErrorResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ErrorMapper translates a classified error into a wire response. The second
// return is false when the error is not one of this layer's own ("not
// mine"), in which case the caller applies its default handling.
type ErrorMapper interface {
	MapError(err error, id *requestid.RequestID) (*ErrorResponse, bool)
}

// SignedHeaderRequirements lists headers that must appear in the request's
// signed-headers set. An empty value imposes no requirements.
type SignedHeaderRequirements struct {
	Always []string
}

// SignatureOptions tunes signature verification.
type SignatureOptions struct {
	// ClockSkew is the tolerated difference between the request timestamp
	// and server time. Zero means the default of 5 minutes.
	ClockSkew time.Duration

	// AllowUnsignedPayload accepts the UNSIGNED-PAYLOAD sentinel in place
	// of a payload hash (required by some streaming clients).
	AllowUnsignedPayload bool
}

// skew returns the effective clock skew tolerance.
func (o SignatureOptions) skew() time.Duration {
	if o.ClockSkew <= 0 {
		return 5 * time.Minute
	}
	return o.ClockSkew
}
