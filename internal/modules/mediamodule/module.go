package mediamodule

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/tonearm/internal/config"
	"github.com/mantonx/tonearm/internal/database"
	"github.com/mantonx/tonearm/internal/events"
	"github.com/mantonx/tonearm/internal/logger"
	"github.com/mantonx/tonearm/internal/middleware"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/api"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/codec"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/cover"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/repository"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/core/storage"
	"github.com/mantonx/tonearm/internal/modules/mediamodule/service"
	"github.com/mantonx/tonearm/internal/modules/modulemanager"
	"github.com/mantonx/tonearm/internal/services"
)

// Auto-register the module when imported
func init() {
	modulemanager.Register(&Module{})
}

const (
	// ModuleID is the unique identifier for the media module
	ModuleID = "system.media"

	// ModuleName is the display name for the media module
	ModuleName = "Media Manager"

	databaseModuleID = "system.database"
)

// Module embeds album artwork into audio files and serves the catalog API.
type Module struct {
	db  *gorm.DB
	bus events.EventBus
	cfg *config.Config
	log hclog.Logger

	repo      *repository.AlbumRepository
	validator *cover.Validator
	locks     *storage.LockTable
	service   *service.CoverService
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// Dependencies returns module dependencies
func (m *Module) Dependencies() []string {
	return []string{databaseModuleID}
}

// ProvidedServices returns the services registered during Init
func (m *Module) ProvidedServices() []string {
	return []string{services.CoverServiceName, services.CatalogServiceName}
}

// Migrate keeps a handle on the database. The catalog tables belong to the
// database module.
func (m *Module) Migrate(db *gorm.DB) error {
	m.db = db
	return nil
}

// Init builds the cover pipeline from the current configuration
func (m *Module) Init() error {
	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if m.bus == nil {
		m.bus = events.GetGlobalEventBus()
	}
	if m.cfg == nil {
		m.cfg = config.Get()
	}
	if m.log == nil {
		m.log = logger.Named("media")
	}
	if m.cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}

	m.repo = repository.NewAlbumRepository(m.db)
	m.validator = cover.NewValidator(coverConfig(m.cfg))
	m.locks = storage.NewLockTable(m.cfg.Writer.LockTimeout, m.cfg.Writer.LockDir, m.log.Named("locks"))
	if err := m.locks.EnsureLockDir(); err != nil {
		return fmt.Errorf("failed to prepare lock directory: %w", err)
	}

	m.service = service.NewCoverService(
		m.repo,
		m.validator,
		codec.NewDefaultRegistry(),
		storage.NewLocalStore(m.cfg.Writer.MinFreeBytes, m.log.Named("store")),
		m.locks,
		m.bus,
		m.log.Named("covers"),
		service.Config{MaxParallelWrites: m.cfg.Writer.MaxParallelWrites},
	)

	services.RegisterService[services.CoverService](services.CoverServiceName, m.service)
	services.RegisterService[services.CatalogService](services.CatalogServiceName, m.repo)

	config.AddWatcher(m.onConfigChange)

	m.log.Info("media module initialized", "max_cover_bytes", m.cfg.Covers.MaxBytes,
		"parallel_writes", m.cfg.Writer.MaxParallelWrites)
	return nil
}

// RegisterRoutes registers HTTP routes
func (m *Module) RegisterRoutes(router gin.IRouter) {
	handler := api.NewHandler(m.service, m.repo)
	api.RegisterRoutes(router, handler, middleware.Authenticate([]byte(m.cfg.Auth.JWTSecret)))
}

// ReloadConfig re-applies the current global configuration
func (m *Module) ReloadConfig() error {
	m.onConfigChange(m.cfg, config.Get())
	return nil
}

func (m *Module) onConfigChange(_, newConfig *config.Config) {
	if m.service == nil || newConfig == nil {
		return
	}
	m.validator.Update(coverConfig(newConfig))
	m.locks.SetTimeout(newConfig.Writer.LockTimeout)
	m.service.Configure(service.Config{MaxParallelWrites: newConfig.Writer.MaxParallelWrites})

	m.log.Info("cover limits reloaded", "max_cover_bytes", newConfig.Covers.MaxBytes,
		"lock_timeout", newConfig.Writer.LockTimeout.String())

	if m.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.bus.Publish(ctx, events.Event{
			Type:      events.EventConfigReloaded,
			Source:    "module:" + ModuleID,
			Title:     "Configuration Reloaded",
			Message:   "Cover limits and writer settings reloaded",
			Priority:  events.PriorityLow,
			Timestamp: time.Now(),
		})
	}
}

// HealthCheck reports the writer state
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	if m.service == nil {
		return modulemanager.HealthStatus{Status: modulemanager.HealthStateUnknown, LastChecked: time.Now()}
	}
	return modulemanager.HealthStatus{
		Status:      modulemanager.HealthStateHealthy,
		LastChecked: time.Now(),
		Details: map[string]interface{}{
			"locked_files":    m.locks.Len(),
			"max_cover_bytes": m.validator.MaxBytes(),
		},
	}
}

// Shutdown gracefully shuts down the module
func (m *Module) Shutdown(ctx context.Context) error {
	if m.locks != nil && m.locks.Len() > 0 {
		m.log.Warn("shutting down with cover writes in flight", "locked_files", m.locks.Len())
	}
	return nil
}

func coverConfig(cfg *config.Config) cover.Config {
	return cover.Config{
		MaxBytes:      cfg.Covers.MaxBytes,
		AllowedTypes:  cfg.Covers.AllowedTypes,
		VerifyContent: cfg.Covers.VerifyContent,
	}
}
