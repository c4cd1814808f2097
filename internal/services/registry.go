package services

import (
	"fmt"
	"sort"
	"sync"
)

// ServiceRegistry lets modules expose their functionality without importing
// each other. A module registers its implementation during RegisterServices
// and consumers look it up by name through the interface in interfaces.go.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]interface{}
}

var globalRegistry = NewServiceRegistry()

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]interface{})}
}

// Register stores a service under name, replacing any previous entry.
func (r *ServiceRegistry) Register(name string, service interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = service
}

// Get returns the service registered under name.
func (r *ServiceRegistry) Get(name string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service '%s' not found", name)
	}
	return service, nil
}

// List returns the registered service names, sorted.
func (r *ServiceRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset drops every registration.
func (r *ServiceRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = make(map[string]interface{})
}

// RegisterService registers a service with the given name
func RegisterService[T any](name string, service T) {
	globalRegistry.Register(name, service)
}

// GetService retrieves a service by name with type safety
func GetService[T any](name string) (T, error) {
	var zero T

	service, err := globalRegistry.Get(name)
	if err != nil {
		return zero, err
	}

	typedService, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service '%s' has wrong type %T", name, service)
	}

	return typedService, nil
}

// MustGetService retrieves a service and panics if not found (for initialization)
func MustGetService[T any](name string) T {
	service, err := GetService[T](name)
	if err != nil {
		panic(fmt.Sprintf("Required service not available: %v", err))
	}
	return service
}

// Get returns an untyped service from the global registry.
func Get(name string) (interface{}, error) {
	return globalRegistry.Get(name)
}

// List returns all registered service names
func List() []string {
	return globalRegistry.List()
}

// Reset clears the global registry. Intended for tests.
func Reset() {
	globalRegistry.Reset()
}
