package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// dbCommand runs against an open connection; offline commands never dial.
type dbCommand func(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error

var offlineCommands = map[string]func(options) error{
	"create":   createMigration,
	"validate": func(opts options) error { return migrate.ValidateDir(opts.dir) },
}

var dbCommands = map[string]dbCommand{
	"up":      gooseCommand("up"),
	"down":    gooseCommand("down"),
	"status":  gooseCommand("status"),
	"version": migrateToVersion,
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "resource not working: config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := run(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate done")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	if offline, ok := offlineCommands[opts.cmd]; ok {
		return offline(opts)
	}
	command, ok := dbCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
	// A broken migration set must not reach the database.
	if err := migrate.ValidateDir(opts.dir); err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	return command(ctx, sqlDB, migrate.Dialect(cfg.DB), opts)
}

func createMigration(opts options) error {
	if opts.name == "" {
		return errors.New("missing -name for create")
	}
	path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
	if err != nil {
		return err
	}
	fmt.Println("created migration:", path)
	return nil
}

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error {
		return migrate.Run(ctx, sqlDB, dialect, opts.dir, name)
	}
}

func migrateToVersion(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error {
	if opts.version == "" {
		return errors.New("missing -version for version command")
	}
	return migrate.MigrateToVersion(ctx, sqlDB, dialect, opts.dir, opts.version)
}
