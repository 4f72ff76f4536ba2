// Package syndication drives posts through the syndication state machine:
// it decides which post/target pairs need a relay call, claims them with a
// lease, records the outcome in front matter and writes it back safely.
package syndication

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/relay"
	"github.com/starford/syndicator/internal/site"
	"github.com/starford/syndicator/internal/targets"
)

// Defaults for Config.
const (
	DefaultConcurrency  = 3
	DefaultCommitPrefix = "Syndication:"
)

// Run modes.
const (
	ModeDeploy = "deploy"
	ModeManual = "manual"
	ModeRepair = "repair"
)

// Config tunes an Engine.
type Config struct {
	// Concurrency bounds how many posts are processed at once.
	Concurrency int
	// CommitPrefix starts every commit message the engine writes.
	CommitPrefix string
	// LeaseMaxAttempts bounds lease and final-write retries on conflicts.
	LeaseMaxAttempts int
	// DeployContext is the environment's deploy context.
	DeployContext string
}

// Engine is shared by the deploy orchestrator and the manual runner.
type Engine struct {
	store    contentstore.Store
	relay    relay.Publisher
	reg      *targets.Registry
	norm     *Normalizer
	site     site.Site
	leaser   *Leaser
	cfg      Config
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an observer for transitions and finished runs.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides the run ID generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine wires an Engine.
func NewEngine(store contentstore.Store, pub relay.Publisher, reg *targets.Registry, s site.Site, cfg Config, opts ...Option) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CommitPrefix == "" {
		cfg.CommitPrefix = DefaultCommitPrefix
	}
	if cfg.LeaseMaxAttempts <= 0 {
		cfg.LeaseMaxAttempts = DefaultLeaseAttempts
	}
	norm := NewNormalizer(reg)
	e := &Engine{
		store:    store,
		relay:    pub,
		reg:      reg,
		norm:     norm,
		site:     s,
		leaser:   NewLeaser(store, norm, cfg.CommitPrefix, cfg.LeaseMaxAttempts),
		cfg:      cfg,
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalizer exposes the engine's front matter normaliser.
func (e *Engine) Normalizer() *Normalizer { return e.norm }

// Registry exposes the target registry.
func (e *Engine) Registry() *targets.Registry { return e.reg }
