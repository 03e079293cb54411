// ABOUTME: SQLite credential store bootstrap using modernc.org/sqlite
// ABOUTME: Creates the iam_user/iam_user_credential schema and seed helpers

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteDriverName is the database/sql driver name registered by
// modernc.org/sqlite.
const SQLiteDriverName = "sqlite"

// OpenSQLite opens (creating if needed) a SQLite credential database at the
// given path. Parent directories are created; the schema is applied
// idempotently.
func OpenSQLite(path string) (*sql.DB, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(SQLiteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("credential store opened", "path", path)
	return db, nil
}

// createSchema creates the credential tables if they don't exist
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS iam_user (
			user_id         TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL,
			path            TEXT NOT NULL,
			user_name_cased TEXT NOT NULL,

			CHECK (length(account_id) = 12)
		);

		CREATE INDEX IF NOT EXISTS idx_iam_user_account ON iam_user(account_id);

		CREATE TABLE IF NOT EXISTS iam_user_credential (
			access_key_id TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES iam_user(user_id) ON DELETE CASCADE,
			secret_key    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_iam_user_credential_user ON iam_user_credential(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

// CreateUser inserts an IAM user row.
func CreateUser(ctx context.Context, db *sql.DB, userID, accountID, path, userName string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO iam_user (user_id, account_id, path, user_name_cased)
		VALUES (?, ?, ?, ?)
	`, userID, accountID, path, userName)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// CreateAccessKey inserts a credential row for an existing user.
func CreateAccessKey(ctx context.Context, db *sql.DB, accessKeyID, userID, secretKey string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO iam_user_credential (access_key_id, user_id, secret_key)
		VALUES (?, ?, ?)
	`, accessKeyID, userID, secretKey)
	if err != nil {
		return fmt.Errorf("inserting access key: %w", err)
	}
	return nil
}
