package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides channel configuration management with caching and
// thread safety. It wraps a Repository and adds an in-memory cache so the
// scan path can resolve configurations without touching the database.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// cache-updating CRUD operations. All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Config // Cached configurations by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new channel configuration registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Config),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all configurations from the repository into the
// cache. This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	configs, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading channel configs: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Config, len(configs))
	for i := range configs {
		c := configs[i]
		r.cache[c.ID] = c.Clone()
	}

	r.logger.Info("channel config cache refreshed", "count", len(configs))
	return nil
}

// Get retrieves a configuration by ID.
// Returns ErrNotFound if it does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Config, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Clone(), nil
	}

	cfg, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[cfg.ID] = cfg.Clone()
	r.cacheMu.Unlock()

	return cfg, nil
}

// Resolve returns the configuration with the given name under the given
// objective. This is the lookup SetMicroscopeModeCommand and the scan
// worker perform per channel.
func (r *Registry) Resolve(ctx context.Context, name, objective string) (*Config, error) {
	r.cacheMu.RLock()
	for _, c := range r.cache {
		if c.Name == name && c.Objective == objective {
			out := c.Clone()
			r.cacheMu.RUnlock()
			return out, nil
		}
	}
	populated := len(r.cache) > 0
	r.cacheMu.RUnlock()

	if populated {
		return nil, fmt.Errorf("%w: %s @ %s", ErrNotFound, name, objective)
	}
	return r.repo.GetByName(ctx, name, objective)
}

// List retrieves all configurations.
func (r *Registry) List(ctx context.Context) ([]Config, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		configs := make([]Config, 0, len(r.cache))
		for _, c := range r.cache {
			configs = append(configs, *c.Clone())
		}
		return configs, nil
	}

	return r.repo.List(ctx)
}

// ListByObjective retrieves the configurations available under one
// objective.
func (r *Registry) ListByObjective(ctx context.Context, objective string) ([]Config, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var configs []Config
		for _, c := range r.cache {
			if c.Objective == objective {
				configs = append(configs, *c.Clone())
			}
		}
		return configs, nil
	}

	return r.repo.ListByObjective(ctx, objective)
}

// Create validates and persists a new configuration, generating an ID if
// none is set.
func (r *Registry) Create(ctx context.Context, cfg *Config) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, cfg); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[cfg.ID] = cfg.Clone()
	r.cacheMu.Unlock()

	r.logger.Info("channel config created", "id", cfg.ID, "name", cfg.Name, "objective", cfg.Objective)
	return nil
}

// Update validates and persists changes to an existing configuration.
func (r *Registry) Update(ctx context.Context, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, cfg); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[cfg.ID] = cfg.Clone()
	r.cacheMu.Unlock()

	r.logger.Info("channel config updated", "id", cfg.ID, "name", cfg.Name, "objective", cfg.Objective)
	return nil
}

// Delete removes a configuration.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("channel config deleted", "id", id)
	return nil
}
