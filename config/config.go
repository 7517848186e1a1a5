// Package config encapsulates this module's configuration: a single
// P2P record persisted as YAML, mirroring the shape (Config, DefaultConfig,
// SetArbitrary) qri uses for its own much larger configuration tree.
package config

import (
	"fmt"
	"io/ioutil"

	"github.com/ghodss/yaml"
)

// CurrentConfigRevision is the latest configuration revision; configs
// that don't match this number should be migrated up before use.
const CurrentConfigRevision = 1

// Config holds every top-level configuration section this module reads
// at startup.
type Config struct {
	path string

	Revision int
	P2P      *P2P
}

// SetArbitrary is an implementation of base/fill/struct's interface, so
// config files carrying fields beyond those declared here are accepted
// and the extra fields are simply ignored at read time.
func (cfg *Config) SetArbitrary(key string, val interface{}) error {
	return nil
}

// DefaultConfig gives a new configuration with simple, default settings.
// The P2P section lacks a keypair and peer ID: those are expensive to
// generate and are added separately by whatever command bootstraps a new
// identity (see auth/key), or populated by ReadFromFile for an existing one.
func DefaultConfig() *Config {
	return &Config{
		Revision: CurrentConfigRevision,
		P2P:      DefaultP2P(),
	}
}

// ReadFromFile reads a YAML configuration file from path.
func ReadFromFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{path: path}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.Revision == 0 {
		cfg.Revision = CurrentConfigRevision
	}
	return cfg, nil
}

// SetPath assigns the unexported filepath a config is written to.
func (cfg *Config) SetPath(path string) {
	cfg.path = path
}

// Path gives the unexported filepath for a config.
func (cfg Config) Path() string {
	return cfg.path
}

// WriteToFile encodes a configuration to YAML and writes it to path.
func (cfg Config) WriteToFile(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}

// ImmutablePaths returns the set of dotted config paths that should
// never be edited in place once a node has an identity.
func ImmutablePaths() map[string]bool {
	return map[string]bool{
		"p2p.peerid":  true,
		"p2p.privkey": true,
	}
}

// Validate validates every section of the config, returning the first error.
func (cfg Config) Validate() error {
	if cfg.P2P == nil {
		return fmt.Errorf("config: P2P section is required")
	}
	return cfg.P2P.Validate()
}

// Copy returns a deep copy of the Config.
func (cfg *Config) Copy() *Config {
	res := &Config{
		path:     cfg.path,
		Revision: cfg.Revision,
	}
	if cfg.P2P != nil {
		res.P2P = cfg.P2P.Copy()
	}
	return res
}

// WithoutPrivateValues returns a deep copy of the receiver with its
// private key material removed, suitable for logging or display.
func (cfg *Config) WithoutPrivateValues() *Config {
	res := cfg.Copy()
	if res.P2P != nil {
		res.P2P.PrivKey = ""
	}
	return res
}

// WithPrivateValues returns a deep copy of the receiver with the private
// key material from p grafted in.
func (cfg *Config) WithPrivateValues(p *Config) *Config {
	res := cfg.Copy()
	if res.P2P != nil && p.P2P != nil {
		res.P2P.PrivKey = p.P2P.PrivKey
	}
	return res
}
