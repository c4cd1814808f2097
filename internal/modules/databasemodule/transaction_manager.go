package databasemodule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mantonx/tonearm/internal/logger"
)

// TransactionManager runs catalog writes inside database transactions.
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction runs fn in a transaction bound to ctx. It commits when fn
// returns nil and rolls back on an error or panic.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(*gorm.DB) error) error {
	id := uuid.NewString()[:8]
	started := time.Now()

	err := tm.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		logger.Debug("Transaction %s rolled back after %v: %v", id, time.Since(started), err)
		return err
	}
	logger.Debug("Transaction %s committed in %v", id, time.Since(started))
	return nil
}

// GetStats reports connection pool usage for the health endpoint.
func (tm *TransactionManager) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})
	if sqlDB, err := tm.db.DB(); err == nil {
		s := sqlDB.Stats()
		stats["open_connections"] = s.OpenConnections
		stats["in_use"] = s.InUse
		stats["idle"] = s.Idle
	}
	return stats
}
