package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/syndicator/internal/relay"
	"github.com/starford/syndicator/internal/site"
	"github.com/starford/syndicator/internal/syndication"
	"github.com/starford/syndicator/internal/targets"
	"github.com/starford/syndicator/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store drivers.
const (
	StoreDriverFS     = "fs"
	StoreDriverGitHub = "github"
)

// DefaultPostsDir is where posts live relative to the content root.
const DefaultPostsDir = "src/blog/posts"

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Site        SiteConfig        `yaml:"site"`
	Store       StoreConfig       `yaml:"store"`
	Relay       RelayConfig       `yaml:"relay"`
	Syndication SyndicationConfig `yaml:"syndication"`
	Journal     JournalConfig     `yaml:"journal"`
	Watch       WatchConfig       `yaml:"watch"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Syndication.Validate(); err != nil {
		return fmt.Errorf("syndication: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SiteConfig describes the published site posts are syndicated from.
type SiteConfig struct {
	URL      string `yaml:"url"`
	BlogPath string `yaml:"blog_path"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.BlogPath, validation.Required),
	)
}

// Site returns the canonical URL builder.
func (c *SiteConfig) Site() site.Site {
	return site.New(c.URL, c.BlogPath)
}

// StoreConfig selects and configures the content store.
type StoreConfig struct {
	Driver string            `yaml:"driver"`
	FS     FSStoreConfig     `yaml:"fs"`
	GitHub GitHubStoreConfig `yaml:"github"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreDriverFS, StoreDriverGitHub)),
	); err != nil {
		return err
	}
	if c.Driver == StoreDriverGitHub {
		return c.GitHub.Validate()
	}
	return c.FS.Validate()
}

// FSStoreConfig points at a local checkout of the site repository.
type FSStoreConfig struct {
	Root     string `yaml:"root"`
	PostsDir string `yaml:"posts_dir"`
}

// Validate validates the filesystem store configuration.
func (c *FSStoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.PostsDir, validation.Required),
	)
}

// GitHubStoreConfig configures the GitHub contents API store.
type GitHubStoreConfig struct {
	Token    string `yaml:"token"`
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	Branch   string `yaml:"branch"`
	APIURL   string `yaml:"api_url"`
	PostsDir string `yaml:"posts_dir"`
}

// Validate validates the GitHub store configuration.
func (c *GitHubStoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.APIURL, is.URL),
	)
}

// RelayConfig configures the federation relay client and its targets.
type RelayConfig struct {
	Endpoint      string            `yaml:"endpoint"`
	Timeout       time.Duration     `yaml:"timeout"`
	RatePerSecond float64           `yaml:"rate_per_second"`
	Burst         int               `yaml:"burst"`
	Targets       map[string]string `yaml:"targets"`
	Aliases       map[string]string `yaml:"aliases"`
}

// Validate validates the relay configuration.
func (c *RelayConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RatePerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.Targets, validation.Required),
	); err != nil {
		return err
	}
	for key, u := range c.Targets {
		if err := validation.Validate(u, validation.Required, is.URL); err != nil {
			return fmt.Errorf("targets.%s: %w", key, err)
		}
	}
	for alias, key := range c.Aliases {
		if _, ok := c.Targets[key]; !ok {
			return fmt.Errorf("aliases.%s: unknown target %q", alias, key)
		}
	}
	return nil
}

// Registry builds the target registry.
func (c *RelayConfig) Registry() *targets.Registry {
	return targets.New(c.Targets, c.Aliases)
}

// SyndicationConfig tunes the syndication engine.
type SyndicationConfig struct {
	Concurrency      int    `yaml:"concurrency"`
	CommitPrefix     string `yaml:"commit_prefix"`
	LeaseMaxAttempts int    `yaml:"lease_max_attempts"`
	DeployContext    string `yaml:"deploy_context"`
}

// Validate validates the syndication configuration.
func (c *SyndicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.CommitPrefix, validation.Required),
		validation.Field(&c.LeaseMaxAttempts, validation.Required, validation.Min(1)),
	)
}

// Engine converts the section into engine settings. An empty deploy
// context falls back to the CI environment.
func (c *SyndicationConfig) Engine() syndication.Config {
	deployContext := c.DeployContext
	if deployContext == "" {
		deployContext = syndication.EnvDeployContext()
	}
	return syndication.Config{
		Concurrency:      c.Concurrency,
		CommitPrefix:     c.CommitPrefix,
		LeaseMaxAttempts: c.LeaseMaxAttempts,
		DeployContext:    deployContext,
	}
}

// JournalConfig holds the SQLite journal location. An empty path disables
// the journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the journal should be opened.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// WatchConfig controls the posts-directory watcher of the fs store. The
// watcher only reconciles bookkeeping and never calls the relay.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Site: SiteConfig{
			URL:      site.DefaultOrigin,
			BlogPath: "/blog/",
		},
		Store: StoreConfig{
			Driver: StoreDriverFS,
			FS: FSStoreConfig{
				Root:     ".",
				PostsDir: DefaultPostsDir,
			},
			GitHub: GitHubStoreConfig{
				Branch:   "main",
				PostsDir: DefaultPostsDir,
			},
		},
		Relay: RelayConfig{
			Endpoint: relay.DefaultEndpoint,
			Timeout:  relay.DefaultTimeout,
			Targets:  copyMap(targets.DefaultEndpoints),
			Aliases:  copyMap(targets.DefaultAliases),
		},
		Syndication: SyndicationConfig{
			Concurrency:      syndication.DefaultConcurrency,
			CommitPrefix:     syndication.DefaultCommitPrefix,
			LeaseMaxAttempts: syndication.DefaultLeaseAttempts,
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
