package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
)

// Config is the database section of the bot configuration.
type Config = coreconfig.DatabaseConfig

const driverName = "sqlite3"

// MemoryPath opens a private in-memory database; used by tests.
const MemoryPath = ":memory:"

// Connect opens the sqlite file, enables foreign keys and configures the pool.
func Connect(cfg Config) (*sqlx.DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("db connect: empty path")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db connect: create data dir: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, dsn(path))
	took := time.Since(start)
	if err != nil {
		logger.Error(ctx, logger.CompDB, "db.connect",
			slog.String("status", "fail"),
			slog.String("driver", driverName),
			slog.String("path", path),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db enable foreign keys: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between pooled connections and keeps
	// every ":memory:" query on the same database.
	conns := cfg.MaxOpenConns
	if conns <= 0 || path == MemoryPath {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	logger.Info(ctx, logger.CompDB, "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", driverName),
		slog.String("path", path),
		slog.Int("pool_open", conns),
		slog.Duration("duration", took),
	)
	return db, nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}
