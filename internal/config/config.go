// Package config loads and validates the settings of a sync run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	APIREST    = "rest"
	APIGraphQL = "graphql"

	ProtocolSSH   = "ssh"
	ProtocolHTTPS = "https"

	OutputText = "text"
	OutputJSON = "json"
)

// Config represents the gh-sync-forks configuration.
// Values from the config file are overridden by explicit command-line flags.
type Config struct {
	Org             string        `yaml:"org"`
	Token           string        `yaml:"token"`
	Dir             string        `yaml:"dir"`
	Clean           bool          `yaml:"clean"`
	Reset           bool          `yaml:"reset"`
	API             string        `yaml:"api"`
	Protocol        string        `yaml:"protocol"`
	UpstreamBase    string        `yaml:"upstream_base"`
	OpTimeout       time.Duration `yaml:"op_timeout"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	Only            []string      `yaml:"only"`
	Skip            []string      `yaml:"skip"`
	GitName         string        `yaml:"git_name"`
	GitEmail        string        `yaml:"git_email"`
	MetricsFile     string        `yaml:"metrics_file"`
	Output          string        `yaml:"output"`
}

// Default returns the configuration used when neither file nor flags say otherwise.
func Default() *Config {
	return &Config{
		Dir:          filepath.Join(os.TempDir(), "gh-sync-forks"),
		API:          APIREST,
		Protocol:     ProtocolSSH,
		UpstreamBase: "https://github.com",
		OpTimeout:    10 * time.Minute,
		Output:       OutputText,
	}
}

// LoadFromPath loads configuration from path on top of Default().
// A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "gh-sync-forks", "config.yaml"), nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Org == "" {
		errs = append(errs, errors.New("organization is required"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("access token is required (--token or GITHUB_TOKEN)"))
	}
	if c.Dir == "" {
		errs = append(errs, errors.New("target directory is required"))
	}
	if c.API != APIREST && c.API != APIGraphQL {
		errs = append(errs, fmt.Errorf("unknown api %q (want %q or %q)", c.API, APIREST, APIGraphQL))
	}
	if c.Protocol != ProtocolSSH && c.Protocol != ProtocolHTTPS {
		errs = append(errs, fmt.Errorf("unknown protocol %q (want %q or %q)", c.Protocol, ProtocolSSH, ProtocolHTTPS))
	}
	if c.Output != OutputText && c.Output != OutputJSON {
		errs = append(errs, fmt.Errorf("unknown output %q (want %q or %q)", c.Output, OutputText, OutputJSON))
	}
	if c.OpTimeout < 0 {
		errs = append(errs, errors.New("op timeout must not be negative"))
	}
	return errors.Join(errs...)
}
