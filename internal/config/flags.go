package config

import "github.com/spf13/pflag"

// FlagBinding holds command-line overrides. Only flags the user set are
// applied, so an unset flag never masks the file or environment.
type FlagBinding struct {
	fs   *pflag.FlagSet
	vals Config
}

var flagFields = map[string]func(dst, src *Config){
	"api-port":                 func(d, s *Config) { d.APIPort = s.APIPort },
	"api-public-host":          func(d, s *Config) { d.APIPublicHost = s.APIPublicHost },
	"db":                       func(d, s *Config) { d.DBPath = s.DBPath },
	"dht-port":                 func(d, s *Config) { d.DHTPort = s.DHTPort },
	"dht-bootstrap":            func(d, s *Config) { d.DHTBootstrapAddr = s.DHTBootstrapAddr },
	"fetch-timeout":            func(d, s *Config) { d.FetchTimeout = s.FetchTimeout },
	"cache-remote":             func(d, s *Config) { d.CacheRemote = s.CacheRemote },
	"accept-unverified-states": func(d, s *Config) { d.AcceptUnverifiedStates = s.AcceptUnverifiedStates },
	"log-level":                func(d, s *Config) { d.LogLevel = s.LogLevel },
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) *FlagBinding {
	b := &FlagBinding{fs: fs}
	def := Default()
	fs.IntVar(&b.vals.APIPort, "api-port", def.APIPort, "HTTP API port")
	fs.StringVar(&b.vals.APIPublicHost, "api-public-host", def.APIPublicHost, "host other witnesses use to reach this one")
	fs.StringVar(&b.vals.DBPath, "db", def.DBPath, "path to the SQLite database")
	fs.IntVar(&b.vals.DHTPort, "dht-port", def.DHTPort, "directory node port (0 runs single-node)")
	fs.StringVar(&b.vals.DHTBootstrapAddr, "dht-bootstrap", "", "host:port of a directory node to join")
	fs.DurationVar(&b.vals.FetchTimeout, "fetch-timeout", def.FetchTimeout, "bound on directory lookups and remote fetches")
	fs.BoolVar(&b.vals.CacheRemote, "cache-remote", false, "store verified remote logs locally")
	fs.BoolVar(&b.vals.AcceptUnverifiedStates, "accept-unverified-states", false, "accept key states written without a log")
	fs.StringVar(&b.vals.LogLevel, "log-level", def.LogLevel, "debug|info|warn|error")
	return b
}

func (b *FlagBinding) apply(cfg *Config) {
	b.fs.Visit(func(f *pflag.Flag) {
		if set, ok := flagFields[f.Name]; ok {
			set(cfg, &b.vals)
		}
	})
}
