// Package databasemodule owns the catalog schema, transactions and
// catalog import.
package databasemodule

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mantonx/tonearm/internal/database"
	"github.com/mantonx/tonearm/internal/logger"
	"github.com/mantonx/tonearm/internal/modules/modulemanager"
)

// Auto-register the module when imported
func init() {
	modulemanager.Register(&Module{})
}

const (
	ModuleID   = "system.database"
	ModuleName = "Database Manager"
)

// Module migrates the catalog tables every other module reads.
type Module struct {
	db           *gorm.DB
	transactions *TransactionManager
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

// Migrate creates or updates the catalog tables
func (m *Module) Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("no database connection")
	}
	logger.Info("Migrating catalog schema")
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate catalog models: %w", err)
	}
	m.db = db
	return nil
}

// Init prepares the transaction manager
func (m *Module) Init() error {
	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("database not initialized")
	}
	m.transactions = NewTransactionManager(m.db)
	return nil
}

// Transactions returns the module's transaction manager
func (m *Module) Transactions() *TransactionManager {
	return m.transactions
}

// HealthCheck pings the database
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	status := modulemanager.HealthStatus{Status: modulemanager.HealthStateHealthy, LastChecked: time.Now()}
	if m.db == nil {
		status.Status = modulemanager.HealthStateUnknown
		return status
	}
	sqlDB, err := m.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status.Status = modulemanager.HealthStateUnhealthy
		status.Message = err.Error()
		return status
	}
	if m.transactions != nil {
		status.Details = m.transactions.GetStats()
	}
	return status
}
