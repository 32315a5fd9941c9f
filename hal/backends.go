package hal

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/labcode-dev/labcode-log-server/interfaces"
	"github.com/labcode-dev/labcode-log-server/storage"
)

// backendCache lazily constructs storage backends through the registry and
// caches them for the lifetime of the hybrid access layer. Backends are
// stateless aside from configuration, so one instance per mode is enough.
type backendCache struct {
	registry *storage.BackendRegistry
	cfg      *storage.Config
	log      *slog.Logger

	mu       sync.Mutex
	backends map[string]interfaces.StorageBackend
}

func newBackendCache(registry *storage.BackendRegistry, cfg *storage.Config, log *slog.Logger) *backendCache {
	return &backendCache{
		registry: registry,
		cfg:      cfg,
		log:      log,
		backends: make(map[string]interfaces.StorageBackend),
	}
}

// backend returns the backend for a mode name, constructing it on first use.
// An unregistered mode falls back to the object store backend with a logged
// warning; runs stamped with a mode string this build does not know should
// still be servable.
func (c *backendCache) backend(mode string) (interfaces.StorageBackend, error) {
	name := strings.ToLower(mode)

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.backends[name]; ok {
		return b, nil
	}

	ctor, err := c.registry.Get(name)
	if err != nil {
		c.log.Warn("unregistered storage mode, falling back to object store",
			slog.String("mode", mode))
		ctor, err = c.registry.Get(storage.ModeS3)
		if err != nil {
			return nil, err
		}
	}

	b, err := ctor(c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.backends[name] = b
	return b, nil
}

func (c *backendCache) objectStore() (interfaces.StorageBackend, error) {
	return c.backend(storage.ModeS3)
}

func (c *backendCache) localFS() (interfaces.StorageBackend, error) {
	return c.backend(storage.ModeLocal)
}
