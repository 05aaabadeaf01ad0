package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"campus-alert/config"
	"campus-alert/core/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewDB opens the configured data store. The default is an embedded sqlite
// file; setting db_driver=postgres switches to pgx against db_url.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := "sqlite"
	if cfg != nil && strings.TrimSpace(cfg.DBDriver) != "" {
		driver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	}
	switch driver {
	case "postgres", "pgx":
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		logger.Printf("DB open driver=postgres")
		return db, nil
	case "sqlite", "sqlite3":
		path := "data/campus.db"
		if cfg != nil && strings.TrimSpace(cfg.DBPath) != "" {
			path = cfg.DBPath
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		logger.Printf("DB open driver=sqlite path=%s", path)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// ApplyMigrations brings the schema up to date via the embedded goose
// migrations.
func ApplyMigrations(ctx context.Context, db *sql.DB, cfg *config.AppConfig, logger *utils.Logger) error {
	dialect := "sqlite3"
	if cfg != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.DBDriver)) {
		case "postgres", "pgx":
			dialect = "postgres"
		}
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return err
	}
	logger.Printf("DB migrations applied dialect=%s", dialect)
	return nil
}
