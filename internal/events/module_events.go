package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Module-specific event types
const (
	// Service registration events
	EventServiceRegistered EventType = "service.registered"

	// Module lifecycle events
	EventModuleInitialized EventType = "module.initialized"
	EventModuleStopped     EventType = "module.stopped"
	EventModuleError       EventType = "module.error"

	// Cover events
	EventAlbumCoverUpdated EventType = "album.cover.updated"
	EventAlbumCoverPartial EventType = "album.cover.partial"

	// Configuration events
	EventConfigReloaded EventType = "config.reloaded"
)

// CoverEventData is the payload of album cover events
type CoverEventData struct {
	AlbumID string   `json:"album_id"`
	ActorID string   `json:"actor_id"`
	Written []string `json:"written"`
	Failed  []string `json:"failed,omitempty"`
}

// NewServiceRegisteredEvent creates a new service registered event
func NewServiceRegisteredEvent(serviceName, moduleID, moduleName string) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     EventServiceRegistered,
		Source:   fmt.Sprintf("module:%s", moduleID),
		Title:    "Service Registered",
		Message:  fmt.Sprintf("Service '%s' registered by module '%s'", serviceName, moduleName),
		Priority: PriorityLow,
		Tags:     []string{"service", "registration", serviceName},
		Data: map[string]interface{}{
			"service_name": serviceName,
			"module_id":    moduleID,
			"module_name":  moduleName,
		},
		Timestamp: time.Now(),
	}
}

// NewModuleLifecycleEvent creates a new module lifecycle event
func NewModuleLifecycleEvent(eventType EventType, moduleID, moduleName, state string) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Source:   fmt.Sprintf("module:%s", moduleID),
		Title:    "Module Lifecycle",
		Message:  fmt.Sprintf("Module '%s' %s", moduleName, state),
		Priority: PriorityNormal,
		Tags:     []string{"module", "lifecycle", state},
		Data: map[string]interface{}{
			"module_id":   moduleID,
			"module_name": moduleName,
			"state":       state,
		},
		Timestamp: time.Now(),
	}
}

// NewCoverEvent creates an album cover event. It is a partial event when
// any file failed.
func NewCoverEvent(data CoverEventData) Event {
	eventType, priority := EventAlbumCoverUpdated, PriorityNormal
	msg := fmt.Sprintf("Cover written to %d file(s) of album %s", len(data.Written), data.AlbumID)
	if len(data.Failed) > 0 {
		eventType, priority = EventAlbumCoverPartial, PriorityHigh
		msg = fmt.Sprintf("Cover written to %d of %d file(s) of album %s",
			len(data.Written), len(data.Written)+len(data.Failed), data.AlbumID)
	}
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Source:   "module:system.media",
		Title:    "Album Cover",
		Message:  msg,
		Priority: priority,
		Tags:     []string{"album", "cover"},
		Data: map[string]interface{}{
			"album_id": data.AlbumID,
			"actor_id": data.ActorID,
			"written":  data.Written,
			"failed":   data.Failed,
		},
		Timestamp: time.Now(),
	}
}
