// ABOUTME: add-user subcommand: creates an IAM-style user and access key pair
// ABOUTME: Prints the generated credentials once; the secret is not recoverable

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/driftlock/sigv4gate/internal/config"
	"github.com/driftlock/sigv4gate/internal/store"
)

// base32Alphabet is the RFC 4648 alphabet AWS uses for key and user ids.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

func runAddUser(ctx context.Context) error {
	flags := pflag.NewFlagSet("add-user", pflag.ContinueOnError)
	name := flags.StringP("name", "n", "", "user name (required)")
	accountID := flags.String("account-id", "", "12-digit account id (required)")
	path := flags.String("path", "/", "user path, must begin and end with a slash")
	if err := flags.Parse(os.Args[2:]); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *accountID == "" {
		return fmt.Errorf("--account-id is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Database.Driver != store.SQLiteDriverName {
		return fmt.Errorf("add-user only provisions sqlite databases; manage %s credentials externally", cfg.Database.Driver)
	}

	db, err := store.OpenSQLite(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	userID, err := randomID("AIDA", 17)
	if err != nil {
		return err
	}
	accessKeyID, err := randomID("AKIA", 16)
	if err != nil {
		return err
	}
	secretKey, err := randomSecret()
	if err != nil {
		return err
	}

	if err := store.CreateUser(ctx, db, userID, *accountID, *path, *name); err != nil {
		return err
	}
	if err := store.CreateAccessKey(ctx, db, accessKeyID, userID, secretKey); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Created user: %s\n", *name)
	fmt.Println()
	cyan.Println("  Credentials")
	cyan.Println("  -----------")
	fmt.Printf("  User ID:           %s\n", userID)
	fmt.Printf("  ARN:               arn:%s:iam::%s:user%s%s\n", cfg.Gate.Partition, *accountID, *path, *name)
	fmt.Printf("  Access Key ID:     %s\n", accessKeyID)
	fmt.Printf("  Secret Access Key: %s\n", secretKey)
	fmt.Println()
	yellow.Println("  Store the secret key now; it cannot be shown again.")

	return nil
}

// randomID returns prefix followed by n random base32 characters.
func randomID(prefix string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	out := []byte(prefix)
	for _, b := range buf {
		out = append(out, base32Alphabet[int(b)%len(base32Alphabet)])
	}
	return string(out), nil
}

// randomSecret returns a 40-character secret access key.
func randomSecret() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
