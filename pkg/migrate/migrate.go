package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/pressly/goose/v3"
)

// DefaultDir is where the shipped migrations live in the source tree. Run
// and MigrateToVersion read it from the binary, so services can auto-migrate
// from any working directory.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var shipped embed.FS

// Dialect maps the configured database driver onto a goose dialect name.
func Dialect(cfg config.DBConfig) string {
	if cfg.IsSQLite() {
		return "sqlite3"
	}
	return "postgres"
}

// prepare points goose at dir, or at the embedded set for DefaultDir, and
// returns the directory goose should read plus a reset for its global FS.
func prepare(db *sql.DB, dialect, dir string) (string, func(), error) {
	if db == nil {
		return "", nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		return "", nil, fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if dir != DefaultDir {
		return dir, func() {}, nil
	}
	goose.SetBaseFS(shipped)
	return "migrations", func() { goose.SetBaseFS(nil) }, nil
}

// Run executes a goose command (up, down, status...) against db.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string, args ...string) error {
	source, reset, err := prepare(db, dialect, dir)
	if err != nil {
		return err
	}
	defer reset()
	if err := goose.RunContext(ctx, command, db, source, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect, dir, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	source, reset, err := prepare(db, dialect, dir)
	if err != nil {
		return err
	}
	defer reset()

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, source, target)
	case current > target:
		err = goose.DownToContext(ctx, db, source, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}
