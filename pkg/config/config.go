package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "DEPLOYCTL"

type ChannelKind string

const (
	ChannelWebsocket ChannelKind = "websocket"
	ChannelMQTT      ChannelKind = "mqtt"
	ChannelNone      ChannelKind = "none"
)

// Config is resolved in order: compiled defaults, YAML file, DEPLOYCTL_*
// environment, command line flags. Environment keys derive from the field
// names, e.g. PollInterval is DEPLOYCTL_POLL_INTERVAL.
type Config struct {
	BackendURL     string        `yaml:"backend_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LinkHost       string        `yaml:"link_host"`

	ChannelKind       ChannelKind   `yaml:"channel_kind"`
	ChannelURL        string        `yaml:"channel_url"`
	ChannelClientID   string        `yaml:"channel_client_id"`
	ChannelMinBackoff time.Duration `yaml:"channel_min_backoff"`
	ChannelMaxBackoff time.Duration `yaml:"channel_max_backoff"`

	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

func Default() Config {
	return Config{
		BackendURL:        "http://localhost:3000",
		PollInterval:      5 * time.Second,
		LinkHost:          "localhost",
		ChannelKind:       ChannelWebsocket,
		ChannelMinBackoff: 500 * time.Millisecond,
		ChannelMaxBackoff: 10 * time.Second,
		LogLevel:          "info",
		LogFile:           "deployctl.log",
		LogMaxSizeMB:      10,
		LogMaxBackups:     3,
	}
}

// Load applies the YAML file at path (skipped when path is empty) and the
// environment on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := envconfig.InitWithOptions(&cfg, envconfig.Options{
		Prefix:      EnvPrefix,
		AllOptional: true,
	}); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return errors.Wrap(err, "backend_url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("backend_url: unsupported scheme %q", u.Scheme)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	switch c.ChannelKind {
	case ChannelWebsocket, ChannelMQTT, ChannelNone:
	default:
		return errors.Errorf("channel_kind: unknown kind %q", c.ChannelKind)
	}
	if c.ChannelMinBackoff <= 0 || c.ChannelMaxBackoff < c.ChannelMinBackoff {
		return errors.New("channel backoff: need 0 < min <= max")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// ChannelEndpoint returns ChannelURL, or derives one from the backend:
// ws(s)://host/ws for websocket and tcp://host:1883 for mqtt.
func (c Config) ChannelEndpoint() (string, error) {
	if c.ChannelURL != "" {
		return c.ChannelURL, nil
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return "", errors.Wrap(err, "backend_url")
	}
	switch c.ChannelKind {
	case ChannelWebsocket:
		scheme := "ws"
		if u.Scheme == "https" {
			scheme = "wss"
		}
		return scheme + "://" + u.Host + strings.TrimSuffix(u.Path, "/") + "/ws", nil
	case ChannelMQTT:
		return "tcp://" + u.Hostname() + ":1883", nil
	}
	return "", errors.Errorf("channel_kind %q has no endpoint", c.ChannelKind)
}
