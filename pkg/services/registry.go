// Package services provides the constructor registry for message platform
// adapters.
//
// To add a new platform:
//  1. Implement the bus.Service interface
//  2. Register a constructor for its kind id via Register(), typically
//     from the adapter package's init()
//  3. Blank-import the adapter package from the binary that should carry it
//
// The bus engine itself never refers to a concrete adapter type.
package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
)

// ErrUnknownKind reports a service descriptor whose kind has no registered
// constructor.
var ErrUnknownKind = errors.New("unknown service kind")

// Constructor builds one service instance from its descriptor. The event
// sink is where the instance publishes events for its lifetime.
type Constructor func(id bus.ServiceID, spec config.ServiceSpec, events bus.EventSink) (bus.Service, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register adds a constructor for a service kind. Registering the same
// kind twice panics; it indicates two adapters claiming one id.
func Register(kind string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("services: kind %q registered twice", kind))
	}
	registry[kind] = c
}

// New instantiates the service described by spec.
func New(spec config.ServiceSpec, events bus.EventSink) (bus.Service, error) {
	mu.RLock()
	c, ok := registry[spec.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)
	}
	svc, err := c(bus.ServiceID(spec.ID), spec, events)
	if err != nil {
		return nil, fmt.Errorf("construct service %q (%s): %w", spec.ID, spec.Kind, err)
	}
	return svc, nil
}

// Kinds returns all registered kind ids, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
