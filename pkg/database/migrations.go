package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Goose dialect names used by the stores
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// DefaultMigrationsTable records applied versions when no table is configured
const DefaultMigrationsTable = "wf_schema_migrations"

// goose keeps base FS, dialect and table name in package state
var gooseMu sync.Mutex

// Migrate applies the goose migrations found in dir of fsys and returns the
// schema version afterwards
func Migrate(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, dir, table string, logger *zap.Logger) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if table == "" {
		table = DefaultMigrationsTable
	}

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger.Sugar()})
	goose.SetTableName(table)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("unsupported migration dialect %s: %w", dialect, err)
	}

	logger.Info("Starting database migrations", zap.String("dialect", dialect), zap.String("table", table))
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("Database migrations completed", zap.Int64("version", version))
	return version, nil
}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Errorf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }
