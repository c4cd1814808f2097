package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mantonx/tonearm/internal/config"
	"github.com/mantonx/tonearm/internal/logger"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// Connect opens the configured database and tunes its connection pool.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if cfg.LogQueries {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch cfg.Type {
	case "postgres":
		conn, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormCfg)
	case "sqlite", "":
		if cfg.DatabasePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		conn, err = gorm.Open(sqlite.Open(cfg.DatabasePath), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info("Database connected", []logger.Field{logger.String("type", cfg.Type)})
	return conn, nil
}

// Initialize connects and stores the process-wide handle.
func Initialize(cfg config.DatabaseConfig) error {
	conn, err := Connect(cfg)
	if err != nil {
		return err
	}
	SetDB(conn)
	return nil
}

// SetDB replaces the process-wide handle.
func SetDB(conn *gorm.DB) {
	dbMu.Lock()
	defer dbMu.Unlock()
	db = conn
}

// GetDB returns the process-wide handle, nil before Initialize.
func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}
