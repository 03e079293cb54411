// ABOUTME: Database-backed signing key resolution for the auth pipeline
// ABOUTME: Looks up credentials by access key id and derives scoped keys

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/driftlock/sigv4gate/internal/principal"
	"github.com/driftlock/sigv4gate/internal/sigv4"
)

// accessKeyPrefixUser marks an IAM-user credential. Other prefixes (root
// keys, temporary credentials, ...) are not implemented and resolve to the
// same generic unknown-key error as a missing key.
const accessKeyPrefixUser = "AKIA"

// KeyStore resolves signing keys from a relational credential store. It
// shares one connection pool and is cheap to clone across connections.
type KeyStore struct {
	db        *sql.DB
	dialect   Dialect
	partition string
	logger    *slog.Logger
}

// NewKeyStore creates a KeyStore on the given pool. driverName selects the
// placeholder dialect; partition scopes the ARNs of resolved principals.
func NewKeyStore(db *sql.DB, driverName, partition string) *KeyStore {
	return &KeyStore{
		db:        db,
		dialect:   DialectFor(driverName),
		partition: partition,
		logger:    slog.Default().With("component", "keystore"),
	}
}

// Clone returns a copy sharing the same pool. The copy is independent of
// the original in every other respect.
func (s *KeyStore) Clone() *KeyStore {
	clone := *s
	return &clone
}

// Ready reports whether the backing database is reachable.
func (s *KeyStore) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSigningKey resolves the access key id in req to a principal, session
// attributes and a date/region/service-scoped signing key.
//
// Malformed, unknown and unsupported keys all produce the same
// undifferentiated error without revealing which case applied; the two
// cheap rejections happen before any database round-trip.
func (s *KeyStore) GetSigningKey(ctx context.Context, req *sigv4.SigningKeyRequest) (*sigv4.SigningKeyResponse, error) {
	// Access keys are at least 20 characters.
	if len(req.AccessKeyID) < 20 {
		return nil, sigv4.ErrUnknownAccessKey()
	}

	// The first four characters select the credential type.
	if req.AccessKeyID[:4] != accessKeyPrefixUser {
		return nil, sigv4.ErrUnknownAccessKey()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.internalError("beginning transaction", err)
	}
	// The lookup is read-only; rollback is a no-op release.
	defer tx.Rollback()

	binder := NewBinder(s.dialect)
	query := fmt.Sprintf(`
		SELECT iam_user_credential.user_id, account_id, path, user_name_cased, secret_key
		FROM iam_user_credential
		INNER JOIN iam_user
		ON iam_user_credential.user_id = iam_user.user_id
		WHERE access_key_id = %s
	`, binder.Next())

	var userID, accountID, path, userName, secretKey string
	err = tx.QueryRowContext(ctx, query, req.AccessKeyID).Scan(&userID, &accountID, &path, &userName, &secretKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sigv4.ErrUnknownAccessKey()
	}
	if err != nil {
		return nil, s.internalError("querying credential", err)
	}

	user, err := principal.NewUser(s.partition, accountID, path, userName)
	if err != nil {
		return nil, s.internalError("constructing principal", err)
	}
	userARN := user.ARN()

	session := principal.Session{
		"aws:username":               userName,
		"aws:userid":                 userID,
		"aws:PrincipalType":          "User",
		"aws:MultiFactorAuthPresent": false,
		"aws:PrincipalAccount":       accountID,
		"aws:PrincipalArn":           userARN,
		"aws:RequestedRegion":        req.Region,
		"aws:ViaAWSService":          false,
		// aws:PrincipalOrgID, aws:PrincipalOrgPath and aws:PrincipalTag are
		// not implemented.
	}

	signingKey := sigv4.SecretKey(secretKey).SigningKey(req.RequestDate, req.Region, req.Service)

	return &sigv4.SigningKeyResponse{
		Principal:  principal.NewPrincipal(user),
		Session:    session,
		SigningKey: signingKey,
	}, nil
}

// internalError logs the full failure server-side and returns only the
// generic classified error. Backend detail never crosses this boundary.
func (s *KeyStore) internalError(op string, err error) error {
	s.logger.Error("signing key lookup failed", "op", op, "error", err)
	return sigv4.ErrInternalFailure()
}

var _ sigv4.KeyProvider = (*KeyStore)(nil)
var _ sigv4.ReadyChecker = (*KeyStore)(nil)
