// Package store resolves signing keys from a relational credential store.
//
// KeyStore implements sigv4.KeyProvider on top of database/sql: it looks up
// an access key id in the iam_user_credential table, joins the owning
// iam_user row, and derives the date/region/service-scoped signing key from
// the stored secret. Lookups are read-only; a transaction is checked out per
// lookup and released immediately.
//
// Placeholder syntax differs by backend, so queries are built with Binder,
// which emits $N for postgres, @pN for sqlserver, and ? for everything else
// based on the driver name.
//
// OpenSQLite provides the default backend: a modernc.org/sqlite database
// with the credential schema applied on open. CreateUser and CreateAccessKey
// seed it (used by the add-user command and by tests).
package store
