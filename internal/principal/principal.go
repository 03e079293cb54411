// ABOUTME: Authenticated principal model: IAM-style users, ARNs and principals
// ABOUTME: Provides WithPrincipal/FromContext for propagation via context

package principal

import (
	"context"
	"fmt"
	"regexp"
)

var (
	accountIDPattern = regexp.MustCompile(`^[0-9]{12}$`)
	pathPattern      = regexp.MustCompile(`^/(?:[\x21-\x7e]+/)*$`)
	namePattern      = regexp.MustCompile(`^[\w+=,.@-]{1,64}$`)
)

// Identity is a single identity within a principal, addressable by ARN.
type Identity interface {
	ARN() string
}

// User is an IAM-style user identity.
type User struct {
	Partition string
	AccountID string
	Path      string
	Name      string
}

// NewUser validates the fields and returns a User. The path must begin and
// end with a slash; the account id must be a 12-digit string.
func NewUser(partition, accountID, path, name string) (User, error) {
	if partition == "" {
		return User{}, fmt.Errorf("partition must not be empty")
	}
	if !accountIDPattern.MatchString(accountID) {
		return User{}, fmt.Errorf("invalid account id %q", accountID)
	}
	if !pathPattern.MatchString(path) {
		return User{}, fmt.Errorf("invalid user path %q", path)
	}
	if !namePattern.MatchString(name) {
		return User{}, fmt.Errorf("invalid user name %q", name)
	}
	return User{Partition: partition, AccountID: accountID, Path: path, Name: name}, nil
}

// ARN returns the user's ARN, e.g. arn:aws:iam::123456789012:user/path/name.
func (u User) ARN() string {
	return fmt.Sprintf("arn:%s:iam::%s:user%s%s", u.Partition, u.AccountID, u.Path, u.Name)
}

// Principal is the set of identities authenticated for a request. In
// practice a request authenticates exactly one identity, but the model
// allows compound principals.
type Principal struct {
	identities []Identity
}

// NewPrincipal creates a principal from the given identities.
func NewPrincipal(ids ...Identity) Principal {
	return Principal{identities: ids}
}

// Identities returns the identities making up this principal.
func (p Principal) Identities() []Identity {
	return p.identities
}

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the principal attached.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from the context. The second return is
// false if the request was not authenticated.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
