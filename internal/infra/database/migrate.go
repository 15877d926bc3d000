package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var channelNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Migrate applies the embedded schema. Every statement is idempotent, so it is
// safe to run on each start. channel is the NOTIFY channel the record-change
// triggers publish to.
func Migrate(ctx context.Context, db *sql.DB, channel string) error {
	if !channelNamePattern.MatchString(channel) {
		return fmt.Errorf("invalid change feed channel name %q", channel)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		stmt := strings.ReplaceAll(string(raw), "{{channel}}", channel)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}
