package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/tonearm/internal/config"
	"github.com/mantonx/tonearm/internal/database"
	"github.com/mantonx/tonearm/internal/events"
	"github.com/mantonx/tonearm/internal/logger"
	"github.com/mantonx/tonearm/internal/middleware"
	"github.com/mantonx/tonearm/internal/modules/modulemanager"

	// Import all modules to trigger their registration
	_ "github.com/mantonx/tonearm/internal/modules/databasemodule"
	_ "github.com/mantonx/tonearm/internal/modules/mediamodule"
)

// Global instances
var (
	systemEventBus events.EventBus
	busMu          sync.Mutex
)

// SetupRouter initializes the event bus and modules, then returns the main router.
// The database must be initialized first.
func SetupRouter(cfg *config.Config) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.ErrorLogger(),
	)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.RequestIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	initializeEventBus()

	if err := initializeModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}

	setupRoutes(r)
	return r, nil
}

// initializeModules loads all registered modules against the global database
func initializeModules() error {
	db := database.GetDB()
	if db == nil {
		return errors.New("database not initialized")
	}

	modulemanager.Registry.SetEventBus(systemEventBus)
	if err := modulemanager.LoadAll(db); err != nil {
		return err
	}

	logModuleStatus()
	return nil
}

// logModuleStatus logs the loaded modules
func logModuleStatus() {
	modules := modulemanager.Registry.ListModules()
	logger.Info("Module system initialized with %d modules", len(modules))
	for _, module := range modules {
		logger.Info("  %-20s %-20s core=%t", truncate(module.Name(), 20), truncate(module.ID(), 20), module.Core())
	}
}

// truncate shortens a string to the given length, adding ... if needed
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// initializeEventBus sets up the system-wide event bus and an audit subscriber
func initializeEventBus() {
	busMu.Lock()
	defer busMu.Unlock()

	if systemEventBus != nil {
		return
	}

	bus := events.NewMemoryBus(logger.Named("events"))
	audit := logger.Named("audit")
	bus.Subscribe(func(_ context.Context, e events.Event) {
		level := audit.Info
		if e.Priority >= events.PriorityHigh {
			level = audit.Warn
		}
		level(e.Message, "type", string(e.Type), "source", e.Source, "event_id", e.ID)
	})

	systemEventBus = bus
	events.SetGlobalEventBus(bus)
	logger.Debug("System event bus initialized")
}

// GetEventBus returns the system event bus instance
func GetEventBus() events.EventBus {
	busMu.Lock()
	defer busMu.Unlock()
	return systemEventBus
}

// Shutdown stops modules, then the event bus
func Shutdown(ctx context.Context) error {
	err := modulemanager.Shutdown(ctx)

	busMu.Lock()
	defer busMu.Unlock()
	if systemEventBus != nil {
		systemEventBus.Close()
		systemEventBus = nil
		events.SetGlobalEventBus(nil)
	}
	return err
}
