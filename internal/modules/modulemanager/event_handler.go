package modulemanager

import (
	"context"
	"time"

	"github.com/mantonx/tonearm/internal/events"
	"github.com/mantonx/tonearm/internal/logger"
)

const publishTimeout = time.Second

// ModuleEventHandler publishes module lifecycle events. A nil handler or a
// handler without a bus is a no-op.
type ModuleEventHandler struct {
	eventBus events.EventBus
}

// NewModuleEventHandler creates a new module event handler
func NewModuleEventHandler(eventBus events.EventBus) *ModuleEventHandler {
	return &ModuleEventHandler{eventBus: eventBus}
}

func (h *ModuleEventHandler) moduleInitialized(m Module) {
	h.publish(events.NewModuleLifecycleEvent(events.EventModuleInitialized, m.ID(), m.Name(), "initialized"))
}

func (h *ModuleEventHandler) moduleStopped(m Module) {
	h.publish(events.NewModuleLifecycleEvent(events.EventModuleStopped, m.ID(), m.Name(), "stopped"))
}

func (h *ModuleEventHandler) moduleFailed(m Module, err error) {
	e := events.NewModuleLifecycleEvent(events.EventModuleError, m.ID(), m.Name(), "failed")
	e.Priority = events.PriorityHigh
	e.Data["error"] = err.Error()
	h.publish(e)
}

func (h *ModuleEventHandler) serviceRegistered(m Module, serviceName string) {
	h.publish(events.NewServiceRegisteredEvent(serviceName, m.ID(), m.Name()))
}

func (h *ModuleEventHandler) publish(e events.Event) {
	if h == nil || h.eventBus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.eventBus.Publish(ctx, e); err != nil {
		logger.Warn("Failed to publish module event %s: %v", e.Type, err)
	}
}
