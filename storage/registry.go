package storage

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/labcode-dev/labcode-log-server/interfaces"
)

// ModeS3 and ModeLocal are the built-in backend mode names. They double as
// the persisted storage_mode values on run records.
const (
	ModeS3    = "s3"
	ModeLocal = "local"
)

// Constructor builds a storage backend from the resolved configuration.
type Constructor func(cfg *Config, log *slog.Logger) (interfaces.StorageBackend, error)

// BackendRegistry maps lowercase mode names to backend constructors. It is
// constructed once at process start and passed by reference; there is no
// ambient global registry.
type BackendRegistry struct {
	constructors map[string]Constructor
}

// NewBackendRegistry creates a registry with the built-in backends
// registered.
func NewBackendRegistry() *BackendRegistry {
	r := &BackendRegistry{constructors: make(map[string]Constructor)}
	r.Register(ModeS3, func(cfg *Config, log *slog.Logger) (interfaces.StorageBackend, error) {
		return NewS3Backend(cfg.S3, log)
	})
	r.Register(ModeLocal, func(cfg *Config, log *slog.Logger) (interfaces.StorageBackend, error) {
		return NewFileBackend(cfg.Local, log)
	})
	return r
}

// Register adds a constructor under the given mode name. Later registrations
// under the same name replace earlier ones.
func (r *BackendRegistry) Register(mode string, ctor Constructor) {
	r.constructors[strings.ToLower(mode)] = ctor
}

// Get returns the constructor for a mode name. Unknown names yield an error
// wrapping interfaces.ErrBackendNotRegistered; nothing is substituted
// silently.
func (r *BackendRegistry) Get(mode string) (Constructor, error) {
	ctor, ok := r.constructors[strings.ToLower(mode)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)",
			interfaces.ErrBackendNotRegistered, mode, strings.Join(r.Modes(), ", "))
	}
	return ctor, nil
}

// IsRegistered reports whether a mode name has a constructor.
func (r *BackendRegistry) IsRegistered(mode string) bool {
	_, ok := r.constructors[strings.ToLower(mode)]
	return ok
}

// Modes returns the registered mode names, sorted.
func (r *BackendRegistry) Modes() []string {
	modes := make([]string, 0, len(r.constructors))
	for mode := range r.constructors {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}
