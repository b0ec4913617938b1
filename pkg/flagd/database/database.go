package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the database named by dburl. Supported forms:
// "sqlite://path/to/file.db", "sqlite://:memory:", "postgres://..." and
// "postgresql://...".
func Connect(dburl string, maxConns int, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dial gorm.Dialector
	isSqlite := false
	openConns := maxConns
	switch {
	case strings.HasPrefix(dburl, "sqlite://"):
		path := strings.TrimPrefix(dburl, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("empty sqlite path in DATABASE_URL")
		}
		dial = sqlite.Open(path)
		// sqlite allows one writer; serialize on a single connection
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgres://"), strings.HasPrefix(dburl, "postgresql://"):
		dial = postgres.Open(dburl)
	default:
		return nil, fmt.Errorf("unsupported or unrecognized DATABASE_URL value")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         slogGorm.New(slogGorm.WithLogger(logger)),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	if openConns > 0 {
		sqldb.SetMaxOpenConns(openConns)
	}
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA foreign_keys = ON;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA busy_timeout = 5000;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}

// IsPostgres reports whether db talks to postgres, which supports row locks.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
