package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hostsyncd desired-state configuration
type Config struct {
	Components []Component `yaml:"components"`
	Artifacts  []Artifact  `yaml:"artifacts"`
	Assets     []AssetDir  `yaml:"assets"`
	Services   Services    `yaml:"services"`
	KV         KVConfig    `yaml:"kv"`
	Serve      ServeConfig `yaml:"serve"`
}

// Component is a git-managed software component pinned to an exact revision.
// An empty pin leaves the component unmanaged for the run.
type Component struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	Pin  string `yaml:"pin"`
}

// Artifact is a configuration file deployed from a source (optionally a
// template) to a destination path. Values maps literal placeholder strings
// to their replacements; an empty map means the source is copied verbatim.
type Artifact struct {
	Source string            `yaml:"source"`
	Dest   string            `yaml:"dest"`
	Values map[string]string `yaml:"values"`
}

// AssetDir is a bulk asset directory that is hard-replaced on deploy.
// Asset directories are never backed up and never restored on rollback.
type AssetDir struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
	Label  string `yaml:"label"`
}

// Services names the dependent services to resync after a run
type Services struct {
	Restart []string `yaml:"restart"`
}

// KVConfig configures the dependent key-value service used for branding
type KVConfig struct {
	URL         string `yaml:"url"`
	DisplayName string `yaml:"display_name"`
	Theme       string `yaml:"theme"`
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	Enabled           bool     `yaml:"enabled"`
	ListenAddr        string   `yaml:"listen_addr"`
	WebhookSecretFile string   `yaml:"webhook_secret_file"`
	AllowedEventTypes []string `yaml:"allowed_event_types"`
	AllowedRefs       []string `yaml:"allowed_refs"`
}

// Load reads and parses the desired-state configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path-like string fields
func (c *Config) expandEnv() {
	for i := range c.Components {
		c.Components[i].Path = os.ExpandEnv(c.Components[i].Path)
	}
	for i := range c.Artifacts {
		c.Artifacts[i].Source = os.ExpandEnv(c.Artifacts[i].Source)
		c.Artifacts[i].Dest = os.ExpandEnv(c.Artifacts[i].Dest)
	}
	for i := range c.Assets {
		c.Assets[i].Source = os.ExpandEnv(c.Assets[i].Source)
		c.Assets[i].Dest = os.ExpandEnv(c.Assets[i].Dest)
	}
	c.KV.URL = os.ExpandEnv(c.KV.URL)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.WebhookSecretFile = os.ExpandEnv(c.Serve.WebhookSecretFile)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate components
	seen := make(map[string]bool)
	for i, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("components[%d]: name is required", i)
		}
		if seen[comp.Name] {
			return fmt.Errorf("components[%d]: duplicate component name %q", i, comp.Name)
		}
		seen[comp.Name] = true
		if comp.Path == "" {
			return fmt.Errorf("component %q: path is required", comp.Name)
		}
		if !filepath.IsAbs(comp.Path) {
			return fmt.Errorf("component %q: path must be absolute: %s", comp.Name, comp.Path)
		}
	}

	// Validate artifacts
	for i, art := range c.Artifacts {
		if art.Source == "" {
			return fmt.Errorf("artifacts[%d]: source is required", i)
		}
		if art.Dest == "" {
			return fmt.Errorf("artifacts[%d]: dest is required", i)
		}
		if !filepath.IsAbs(art.Dest) {
			return fmt.Errorf("artifacts[%d]: dest must be an absolute path: %s", i, art.Dest)
		}
		for placeholder := range art.Values {
			if placeholder == "" {
				return fmt.Errorf("artifacts[%d]: empty placeholder key", i)
			}
		}
	}

	// Validate asset directories
	for i, asset := range c.Assets {
		if asset.Source == "" {
			return fmt.Errorf("assets[%d]: source is required", i)
		}
		if asset.Dest == "" {
			return fmt.Errorf("assets[%d]: dest is required", i)
		}
		if !filepath.IsAbs(asset.Dest) {
			return fmt.Errorf("assets[%d]: dest must be an absolute path: %s", i, asset.Dest)
		}
	}

	// Validate serve config if enabled
	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
		if c.Serve.WebhookSecretFile == "" {
			return fmt.Errorf("serve.webhook_secret_file is required when serve is enabled")
		}
	}

	return nil
}

// HasBranding returns true if any KV service branding record is configured
func (c *Config) HasBranding() bool {
	return c.KV.URL != "" && (c.KV.DisplayName != "" || c.KV.Theme != "")
}
