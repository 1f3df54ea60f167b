package ecs

import (
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// SystemFunc is a function that contains game logic. It has exclusive access to the world while it
// runs.
type SystemFunc func(w *World) error

// SystemID identifies a registered system.
type SystemID uint32

// SystemHook defines when a system should be executed in the update cycle.
type SystemHook uint8

const (
	// PreUpdate runs before the main update.
	PreUpdate SystemHook = 0
	// Update runs during the main update phase.
	Update SystemHook = 1
	// PostUpdate runs after the main update.
	PostUpdate SystemHook = 2
	// Last runs at the end of the tick, after PostUpdate.
	Last SystemHook = 3

	hookCount = 4
)

// String returns the hook name.
func (h SystemHook) String() string {
	switch h {
	case PreUpdate:
		return "PreUpdate"
	case Update:
		return "Update"
	case PostUpdate:
		return "PostUpdate"
	case Last:
		return "Last"
	default:
		return "Unknown"
	}
}

// systemConfig holds all configurable options for system registration.
type systemConfig struct {
	hook SystemHook // The hook that determines when the system should be executed
	name string     // Overrides the name derived from the function
}

// newSystemConfig creates a new system config with default values.
func newSystemConfig() systemConfig {
	return systemConfig{hook: Update}
}

// SystemOption is a function that configures a system.
type SystemOption func(*systemConfig)

// WithHook returns an option to set the system hook. Only meaningful for AddSystem.
func WithHook(hook SystemHook) SystemOption {
	return func(cfg *systemConfig) { cfg.hook = hook }
}

// WithName returns an option to set the system name used in logs and errors.
func WithName(name string) SystemOption {
	return func(cfg *systemConfig) { cfg.name = name }
}

// systemMetadata contains the metadata for a system.
type systemMetadata struct {
	name   string
	fn     SystemFunc
	logger zerolog.Logger
}

// run runs the system and flushes the commands it deferred.
func (s *systemMetadata) run(w *World) error {
	prev := w.current
	w.current = s
	defer func() { w.current = prev }()

	err := s.fn(w)
	w.Flush()
	if err != nil {
		return eris.Wrapf(err, "system %s failed", s.name)
	}
	return nil
}

// systemScheduler runs the systems of one hook sequentially in registration order.
type systemScheduler struct {
	systems []systemMetadata
}

// run executes every system of the hook. It stops at the first error.
func (s *systemScheduler) run(w *World) error {
	for i := range s.systems {
		if err := s.systems[i].run(w); err != nil {
			return err
		}
	}
	return nil
}

// systemManager stores systems that are run on demand by ID.
type systemManager struct {
	nextID  SystemID
	systems map[SystemID]*systemMetadata
}

// newSystemManager creates a new system manager.
func newSystemManager() systemManager {
	return systemManager{
		nextID:  0,
		systems: make(map[SystemID]*systemMetadata),
	}
}

// systemName obtains the name of a system function using reflection.
func systemName(fn SystemFunc) string {
	return filepath.Base(runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name())
}

// AddSystem adds a system that runs every tick in its hook (Update by default).
func (w *World) AddSystem(fn SystemFunc, opts ...SystemOption) {
	cfg := newSystemConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	meta := w.newSystemMetadata(fn, cfg)
	w.hooks[cfg.hook].systems = append(w.hooks[cfg.hook].systems, meta)
}

// RegisterSystem stores a system that is only run through RunSystem and returns its ID.
func (w *World) RegisterSystem(fn SystemFunc, opts ...SystemOption) SystemID {
	cfg := newSystemConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	meta := w.newSystemMetadata(fn, cfg)

	id := w.systems.nextID
	w.systems.nextID++
	w.systems.systems[id] = &meta
	return id
}

// RunSystem runs a registered system once and flushes the commands it deferred.
func (w *World) RunSystem(id SystemID) error {
	meta, ok := w.systems.systems[id]
	if !ok {
		return eris.Wrapf(ErrSystemNotFound, "system %d", id)
	}
	return meta.run(w)
}

// UnregisterSystem removes a registered system.
func (w *World) UnregisterSystem(id SystemID) error {
	if _, ok := w.systems.systems[id]; !ok {
		return eris.Wrapf(ErrSystemNotFound, "system %d", id)
	}
	delete(w.systems.systems, id)
	return nil
}

// HasSystem reports whether id refers to a registered system.
func (w *World) HasSystem(id SystemID) bool {
	_, ok := w.systems.systems[id]
	return ok
}

func (w *World) newSystemMetadata(fn SystemFunc, cfg systemConfig) systemMetadata {
	name := cfg.name
	if name == "" {
		name = systemName(fn)
	}
	return systemMetadata{
		name:   name,
		fn:     fn,
		logger: w.logger.With().Str("system", name).Logger(),
	}
}
