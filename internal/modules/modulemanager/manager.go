package modulemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mantonx/tonearm/internal/events"
	"github.com/mantonx/tonearm/internal/logger"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                // Unique identifier for the module
	Name() string              // Display name for the module
	Core() bool                // Whether this is a core module (cannot be disabled)
	Migrate(db *gorm.DB) error // Run database migrations
	Init() error               // Initialize the module
}

// RouteRegistrar is an optional interface for modules that need to register routes
type RouteRegistrar interface {
	RegisterRoutes(router gin.IRouter)
}

// Shutdowner is an optional interface for modules that hold resources
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	modules         map[string]Module
	disabledModules map[string]bool
	order           []Module
	mu              sync.RWMutex
	initialized     bool
	events          *ModuleEventHandler
}

// Registry is the global module registry
var Registry = NewModuleRegistry()

// NewModuleRegistry creates an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules:         make(map[string]Module),
		disabledModules: make(map[string]bool),
	}
}

// Register adds a module to the registry
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module %s (%s) registered after initialization", m.Name(), m.ID())
	}

	r.modules[m.ID()] = m
	logger.Debug("Module registered: %s (%s)", m.Name(), m.ID())
}

// SetEventBus makes the registry publish module lifecycle events on bus.
func (r *ModuleRegistry) SetEventBus(bus events.EventBus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = NewModuleEventHandler(bus)
}

// LoadAll initializes all registered modules
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

// LoadAll migrates and initializes all enabled modules in dependency order
func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module system already initialized")
		return nil
	}

	// Filter out disabled modules
	enabledModules := make(map[string]Module)
	for id, module := range r.modules {
		if r.isDisabled(id) {
			if module.Core() {
				return fmt.Errorf("attempted to disable core module: %s", id)
			}
			logger.Warn("Skipping module %s (disabled)", module.Name())
			continue
		}
		enabledModules[id] = module
	}

	logger.Info("Loading %d modules", len(enabledModules))

	initOrder, err := loadOrder(enabledModules)
	if err != nil {
		return fmt.Errorf("failed to determine initialization order: %w", err)
	}

	// Phase 1: Allow modules to register services early
	for _, module := range initOrder {
		if registrar, ok := module.(ServiceRegistrar); ok {
			if err := registrar.RegisterServices(); err != nil {
				return fmt.Errorf("failed to register services for %s: %w", module.Name(), err)
			}
			if provider, ok := module.(ServiceProvider); ok {
				for _, name := range provider.ProvidedServices() {
					r.events.serviceRegistered(module, name)
				}
			}
		}
	}

	// Phase 2: Migrate and initialize in dependency order
	for i, module := range initOrder {
		logger.Info("[%d/%d] Initializing module: %s", i+1, len(initOrder), module.Name())

		if err := module.Migrate(db); err != nil {
			r.events.moduleFailed(module, err)
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}

		if err := module.Init(); err != nil {
			r.events.moduleFailed(module, err)
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}

		r.events.moduleInitialized(module)
		logger.Info("Module loaded: %s", module.Name())
	}

	r.order = initOrder
	r.initialized = true
	return nil
}

// DisableModule marks a module as disabled (for development/testing only)
func DisableModule(id string) {
	Registry.DisableModule(id)
}

// DisableModule marks a module as disabled
func (r *ModuleRegistry) DisableModule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	module, exists := r.modules[id]
	if !exists {
		logger.Warn("Attempted to disable non-existent module: %s", id)
		return
	}

	if module.Core() {
		logger.Error("Cannot disable core module: %s", id)
		return
	}

	r.disabledModules[id] = true
	logger.Info("Module disabled: %s", id)
}

// isDisabled checks if a module is disabled
func (r *ModuleRegistry) isDisabled(id string) bool {
	return r.disabledModules[id]
}

// GetModule returns a module by ID
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, exists := r.modules[id]
	return module, exists
}

// ListModules returns the initialized modules in init order, or every
// registered module before LoadAll.
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.initialized {
		return append([]Module(nil), r.order...)
	}
	modules := make([]Module, 0, len(r.modules))
	for _, module := range r.modules {
		modules = append(modules, module)
	}
	return modules
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func RegisterRoutes(router gin.IRouter) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes registers routes for every initialized RouteRegistrar
func (r *ModuleRegistry) RegisterRoutes(router gin.IRouter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, module := range r.order {
		if routeRegistrar, ok := module.(RouteRegistrar); ok {
			logger.Info("Registering routes for module: %s", module.Name())
			routeRegistrar.RegisterRoutes(router)
		}
	}
}

// Shutdown stops all modules in reverse init order
func Shutdown(ctx context.Context) error {
	return Registry.Shutdown(ctx)
}

// Shutdown stops initialized modules in reverse init order and joins their errors.
func (r *ModuleRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		module := r.order[i]
		if s, ok := module.(Shutdowner); ok {
			if err := s.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", module.ID(), err))
				continue
			}
		}
		r.events.moduleStopped(module)
	}
	r.order = nil
	r.initialized = false
	return errors.Join(errs...)
}

// HealthCheck reports the health of every module that implements HealthChecker
func (r *ModuleRegistry) HealthCheck(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := make(map[string]HealthStatus)
	for _, module := range r.order {
		if hc, ok := module.(HealthChecker); ok {
			report[module.ID()] = hc.HealthCheck(ctx)
		}
	}
	return report
}
