// Package migrations embeds the SQL schemas of the server key-value store and
// the device record store and applies them with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed server/*.sql
var serverFS embed.FS

//go:embed device/*.sql
var deviceFS embed.FS

// UpServer brings the server key-value schema to the latest version.
func UpServer(ctx context.Context, db *sql.DB) error {
	return up(ctx, db, serverFS, "server")
}

// UpDevice brings the device record store schema to the latest version.
func UpDevice(ctx context.Context, db *sql.DB) error {
	return up(ctx, db, deviceFS, "device")
}

func up(ctx context.Context, db *sql.DB, root embed.FS, dir string) error {
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("create %s migration provider: %w", dir, err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply %s migrations: %w", dir, err)
	}
	return nil
}
