// Package hyperswitch is the composition root: it wires the spec
// loader, the stock filter registry, the observability collaborators
// and the dispatcher into one Engine, and exposes the configuration
// surface a host application supplies.
//
// Grounded on config/config.go's plain struct-plus-yaml-tags shape,
// trimmed to the handful of keys this engine actually recognises.
package hyperswitch

import (
	"gopkg.in/yaml.v3"

	"github.com/wikimedia/hyperswitch/openapi"
)

// Config holds every recognised configuration key.
type Config struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Spec *openapi.Document `yaml:"spec"`

	UserAgent string `yaml:"user_agent"`

	UIName  string `yaml:"ui_name"`
	UIURL   string `yaml:"ui_url"`
	UITitle string `yaml:"ui_title"`

	DefaultErrorURI string `yaml:"default_error_uri"`
	MaxDepth        int    `yaml:"maxDepth"`
	SkipResources   bool   `yaml:"skip_resources"`
	DisableHandlers bool   `yaml:"disable_handlers"`
}

const (
	defaultPort      = 7231
	defaultUserAgent = "HyperSwitch"
	defaultErrorURI  = "https://mediawiki.org/wiki/HyperSwitch/errors/"
)

// DefaultConfig returns a Config with every default from §6 applied and
// no spec attached; callers fill in Spec (and any overrides) before
// passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Port:            defaultPort,
		UserAgent:       defaultUserAgent,
		DefaultErrorURI: defaultErrorURI,
		MaxDepth:        0, // dispatch.New substitutes its own default of 10
	}
}

// LoadConfig decodes a YAML configuration document, applying the same
// defaults DefaultConfig does for any key the document omits.
func LoadConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.DefaultErrorURI == "" {
		cfg.DefaultErrorURI = defaultErrorURI
	}
	return cfg, nil
}
