package modulemanager

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mantonx/tonearm/internal/logger"
)

// DependencyProvider is implemented by modules that must load after others.
type DependencyProvider interface {
	// Dependencies returns the IDs of modules that must be initialized first.
	Dependencies() []string
}

// ServiceProvider is implemented by modules that publish named services.
type ServiceProvider interface {
	ProvidedServices() []string
}

// loadOrder sorts modules so every module follows its dependencies. Ties
// are broken by module ID, so the order is stable between runs.
func loadOrder(modules map[string]Module) ([]Module, error) {
	ids := make([]string, 0, len(modules))
	for id := range modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	providers := make(map[string]string)
	for _, id := range ids {
		sp, ok := modules[id].(ServiceProvider)
		if !ok {
			continue
		}
		for _, name := range sp.ProvidedServices() {
			if other, dup := providers[name]; dup {
				return nil, fmt.Errorf("service %q is provided by both %s and %s", name, other, id)
			}
			providers[name] = id
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(ids))
	order := make([]Module, 0, len(ids))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency detected: %s", strings.Join(append(path, id), " -> "))
		}
		state[id] = visiting
		path = append(path, id)

		if dp, ok := modules[id].(DependencyProvider); ok {
			for _, dep := range dp.Dependencies() {
				if _, exists := modules[dep]; !exists {
					return fmt.Errorf("module %s depends on non-existent module %s", id, dep)
				}
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}

		state[id] = done
		order = append(order, modules[id])
		return nil
	}

	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(order))
	for i, m := range order {
		names[i] = m.ID()
	}
	logger.Debug("Module load order: %s", strings.Join(names, ", "))
	return order, nil
}
