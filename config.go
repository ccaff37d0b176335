package cfquorum

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML run configuration consumed by the cfquorum command.
// Unset fields fall back to defaults; command-line flags override file values.
type Config struct {
	// Record is the name of the DNS record to keep updated ("home.example.com").
	Record string `yaml:"record"`
	Zone   struct {
		ID   string `yaml:"id,omitempty"`
		Name string `yaml:"name,omitempty"`
	} `yaml:"zone,omitempty"`
	// Sources overrides the default lookup endpoints. Accepts http(s) URLs
	// and dns://server/name entries.
	Sources []string `yaml:"sources,omitempty"`
	// TimeoutSeconds is the per-request timeout. 0 means the default (5);
	// negative values are rejected.
	TimeoutSeconds int  `yaml:"timeoutSeconds,omitempty"`
	Verify         bool `yaml:"verify,omitempty"`
	DryRun         bool `yaml:"dryRun,omitempty"`
}

// NewConfigFromYAML parses and validates a Config.
func NewConfigFromYAML(in []byte) (Config, error) {
	var conf Config
	if err := yaml.Unmarshal(in, &conf); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := conf.validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// LoadConfig reads and parses the YAML config file at path.
func LoadConfig(path string) (Config, error) {
	in, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}
	conf, err := NewConfigFromYAML(in)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

func (c Config) validate() error {
	var errs []error
	if c.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeoutSeconds must be positive; got %d", c.TimeoutSeconds))
	}
	for _, s := range c.Sources {
		if _, err := ParseSource(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Timeout returns the configured per-request timeout, or DefaultTimeout when
// unset.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
