// Package config loads witness settings. Sources are merged in order:
// built-in defaults, an optional YAML file, environment variables, then
// command-line flags that were set explicitly. The result is checked
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the merged witness configuration.
type Config struct {
	APIPort                int           `yaml:"api_port" json:"api_port"`
	APIPublicHost          string        `yaml:"api_public_host" json:"api_public_host"`
	DBPath                 string        `yaml:"db_path" json:"db_path"`
	DHTPort                int           `yaml:"dht_port" json:"dht_port"`
	DHTBootstrapAddr       string        `yaml:"dht_bootstrap_addr" json:"dht_bootstrap_addr"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	CacheRemote            bool          `yaml:"cache_remote" json:"cache_remote"`
	AcceptUnverifiedStates bool          `yaml:"accept_unverified_states" json:"accept_unverified_states"`
	LogLevel               string        `yaml:"log_level" json:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIPort:       9599,
		APIPublicHost: "localhost",
		DBPath:        "db",
		DHTPort:       9145,
		FetchTimeout:  5 * time.Second,
		LogLevel:      "info",
	}
}

// Environment variable names.
const (
	EnvAPIPort                = "API_PORT"
	EnvAPIPublicHost          = "API_PUBLIC_HOST"
	EnvDBPath                 = "DB_PATH"
	EnvDHTPort                = "DHT_PORT"
	EnvDHTBootstrapAddr       = "DHT_BOOTSTRAP_ADDR"
	EnvFetchTimeout           = "FETCH_TIMEOUT"
	EnvCacheRemote            = "CACHE_REMOTE"
	EnvAcceptUnverifiedStates = "ACCEPT_UNVERIFIED_STATES"
	EnvLogLevel               = "LOG_LEVEL"
)

// Load merges defaults, the YAML file at path (skipped when path is
// empty), the environment read through getenv (os.Getenv when nil) and
// the explicitly set flags in fb (skipped when nil), then validates.
func Load(path string, getenv func(string) string, fb *FlagBinding) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.loadEnv(getenv); err != nil {
		return Config{}, err
	}
	if fb != nil {
		fb.apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(getenv func(string) string) error {
	var err error
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v := getenv(name)
		if v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %q is not an integer", name, v)
			return
		}
		*dst = n
	}
	flag := func(name string, dst *bool) {
		v := getenv(name)
		if v == "" || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("%s: %q is not a boolean", name, v)
			return
		}
		*dst = b
	}

	num(EnvAPIPort, &c.APIPort)
	str(EnvAPIPublicHost, &c.APIPublicHost)
	str(EnvDBPath, &c.DBPath)
	num(EnvDHTPort, &c.DHTPort)
	str(EnvDHTBootstrapAddr, &c.DHTBootstrapAddr)
	flag(EnvCacheRemote, &c.CacheRemote)
	flag(EnvAcceptUnverifiedStates, &c.AcceptUnverifiedStates)
	str(EnvLogLevel, &c.LogLevel)
	if v := getenv(EnvFetchTimeout); v != "" && err == nil {
		d, perr := ParseTimeout(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", EnvFetchTimeout, perr)
		} else {
			c.FetchTimeout = d
		}
	}
	return err
}

// ParseTimeout accepts a Go duration ("750ms", "5s") or a bare number of
// seconds.
func ParseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	return d, nil
}

// Validate checks c against the CUE schema and the cross-field rules the
// schema cannot express.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DHTPort != 0 && c.DHTPort == c.APIPort {
		return fmt.Errorf("invalid config: api_port and dht_port are both %d", c.APIPort)
	}
	if c.DHTPort == 0 && c.DHTBootstrapAddr != "" {
		return fmt.Errorf("invalid config: dht_bootstrap_addr set but dht_port is 0")
	}
	return nil
}

// PublicAddr is the host:port other witnesses use to reach this API. It is
// the value announced in the directory.
func (c Config) PublicAddr() string {
	return net.JoinHostPort(c.APIPublicHost, strconv.Itoa(c.APIPort))
}

// ListenAddr is the API's bind address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.APIPort))
}

// DHTAddr is the directory node's advertised host:port.
func (c Config) DHTAddr() string {
	return net.JoinHostPort(c.APIPublicHost, strconv.Itoa(c.DHTPort))
}

// DHTListenAddr is the directory node's bind address.
func (c Config) DHTListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.DHTPort))
}

// SingleNode reports whether the witness runs with an in-process
// directory instead of joining peers.
func (c Config) SingleNode() bool { return c.DHTPort == 0 }

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
