// Package config loads client options from YAML with environment overrides,
// following the defaults -> file -> env -> validate pipeline used across the
// codebase.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/natsio"
	"github.com/syntrixbase/natsio/internal/logging"
)

// envPrefix namespaces the environment overrides, e.g. NATSIO_URL.
const envPrefix = "natsio"

// Config is the file/environment representation of client options.
type Config struct {
	// URL of the server, scheme nats, tls, ws or wss.
	URL string `yaml:"url" envconfig:"URL"`

	// Name advertised in CONNECT.
	Name string `yaml:"name" envconfig:"NAME"`

	Verbose      bool `yaml:"verbose" envconfig:"VERBOSE"`
	Pedantic     bool `yaml:"pedantic" envconfig:"PEDANTIC"`
	NoEcho       bool `yaml:"no_echo" envconfig:"NO_ECHO"`
	NoResponders bool `yaml:"no_responders" envconfig:"NO_RESPONDERS"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	RetryInterval  time.Duration `yaml:"retry_interval" envconfig:"RETRY_INTERVAL"`
	RetryCount     int           `yaml:"retry_count" envconfig:"RETRY_COUNT"`

	InboxPrefix string `yaml:"inbox_prefix" envconfig:"INBOX_PREFIX"`

	// Credentials. CredsFile wins over the seed, which wins over user/pass.
	User      string `yaml:"user" envconfig:"USER"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	Token     string `yaml:"token" envconfig:"TOKEN"`
	NKeySeed  string `yaml:"nkey_seed" envconfig:"NKEY_SEED"`
	CredsFile string `yaml:"creds_file" envconfig:"CREDS_FILE"`

	MaxPendingPublishes int `yaml:"max_pending_publishes" envconfig:"MAX_PENDING_PUBLISHES"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		URL:            "nats://localhost:4222",
		ConnectTimeout: natsio.DefaultConnectTimeout,
		RetryInterval:  natsio.DefaultRetryInterval,
		RetryCount:     natsio.DefaultRetryCount,
		InboxPrefix:    natsio.DefaultInboxPrefix,
		Logging:        logging.Default(),
	}
}

// Load builds a Config from defaults, an optional YAML file and environment
// overrides, then validates it. An empty path skips the file step; a missing
// file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("config: invalid url %q: %w", c.URL, err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("config: unsupported url scheme %q", u.Scheme)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect_timeout must be positive")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("config: retry_interval must be positive")
	}
	if c.RetryCount < -1 {
		return fmt.Errorf("config: retry_count must be >= -1")
	}
	if c.InboxPrefix == "" {
		return fmt.Errorf("config: inbox_prefix must not be empty")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Options translates the configuration into client options, including a
// logger built from the logging section.
func (c *Config) Options() ([]natsio.Option, error) {
	logger, err := logging.New(c.Logging, nil)
	if err != nil {
		return nil, err
	}

	opts := []natsio.Option{
		natsio.WithConnectTimeout(c.ConnectTimeout),
		natsio.WithRetry(c.RetryInterval, c.RetryCount),
		natsio.WithInboxPrefix(c.InboxPrefix),
		natsio.WithLogger(logger),
	}
	if c.Name != "" {
		opts = append(opts, natsio.WithName(c.Name))
	}
	if c.Verbose {
		opts = append(opts, natsio.WithVerbose())
	}
	if c.Pedantic {
		opts = append(opts, natsio.WithPedantic())
	}
	if c.NoEcho {
		opts = append(opts, natsio.WithNoEcho())
	}
	if c.NoResponders {
		opts = append(opts, natsio.WithNoResponders())
	}
	if c.MaxPendingPublishes > 0 {
		opts = append(opts, natsio.WithMaxPendingPublishes(c.MaxPendingPublishes))
	}

	switch {
	case c.CredsFile != "":
		opts = append(opts, natsio.WithUserCredentials(c.CredsFile))
	case c.NKeySeed != "":
		opts = append(opts, natsio.WithNKeySeed(c.NKeySeed))
	case c.Token != "":
		opts = append(opts, natsio.WithToken(c.Token))
	case c.User != "":
		opts = append(opts, natsio.WithUserPassword(c.User, c.Password))
	}

	return opts, nil
}

// Connect is a convenience that loads a configuration and dials with it.
func Connect(path string) (*natsio.Client, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return natsio.Connect(cfg.URL, opts...)
}
