// Package config loads server definitions and engine settings from YAML and
// the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	goconfig "github.com/tpodg/go-config"

	"github.com/eugenetaranov/dasctl/internal/server"
)

// DefaultConfigFileName is looked up in the home and working directories.
const DefaultConfigFileName = ".dasctl.yaml"

// EnvPrefix prefixes environment overrides, e.g. DASCTL_TIMEOUT.
const EnvPrefix = "DASCTL"

type Config struct {
	// Defaults fill every unset field of each server.
	Defaults ServerConfig   `yaml:"defaults"`
	Servers  []ServerConfig `yaml:"servers"`

	// Workers sizes the command pool; 0 or 1 runs commands serially.
	Workers int `yaml:"workers"`

	// Timeout bounds waiting for a command result.
	Timeout time.Duration `yaml:"timeout"`

	UserAgent string `yaml:"user_agent"`
}

type ServerConfig struct {
	Name           string `yaml:"name"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	AdminPort      int    `yaml:"admin_port"`
	AdminUser      string `yaml:"admin_user"`
	AdminPassword  string `yaml:"admin_password"`
	Secure         *bool  `yaml:"secure"`
	ServerRoot     string `yaml:"server_root"`
	DomainsFolder  string `yaml:"domains_folder"`
	Domain         string `yaml:"domain"`
	JavaHome       string `yaml:"java_home"`
	AdminInterface string `yaml:"admin_interface"`
	Version        string `yaml:"version"`
}

// Load the configuration from the given file or default locations.
func Load(cfgFile string) (*Config, error) {
	path, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}

	c := goconfig.New()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
		}
		c.WithProviders(&goconfig.Yaml{Path: absPath})
	}

	c.WithProviders(&goconfig.Env{Prefix: EnvPrefix})

	cfg := &Config{}
	if err := c.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(cfgFile string) (string, error) {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return cfgFile, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, DefaultConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if _, err := os.Stat(DefaultConfigFileName); err == nil {
		return DefaultConfigFileName, nil
	}

	return "", nil
}

func (c *Config) applyDefaults() error {
	for i := range c.Servers {
		if err := mergo.Merge(&c.Servers[i], c.Defaults); err != nil {
			return fmt.Errorf("failed to apply defaults to server %s: %w", c.Servers[i].Name, err)
		}
	}
	return nil
}

// Validate checks server names and converts every server once so that
// errors surface at load time.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server %d: name is required", i+1)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate server name %q", s.Name)
		}
		seen[s.Name] = true
		if _, err := s.Descriptor(); err != nil {
			return fmt.Errorf("server %s: %w", s.Name, err)
		}
	}
	return nil
}

// Names returns the configured server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Server returns the descriptor of the named server. An empty name selects
// the only configured server. A name that is not configured but has the
// form host:port describes an ad-hoc server built from the defaults.
func (c *Config) Server(name string) (*server.Descriptor, error) {
	if name == "" {
		switch len(c.Servers) {
		case 0:
			return nil, fmt.Errorf("no servers configured; pass --server host:port or add one to %s", DefaultConfigFileName)
		case 1:
			return c.Servers[0].Descriptor()
		default:
			return nil, fmt.Errorf("multiple servers configured, select one with --server (available: %s)",
				strings.Join(c.Names(), ", "))
		}
	}

	for _, s := range c.Servers {
		if s.Name == name {
			return s.Descriptor()
		}
	}

	if host, port, err := net.SplitHostPort(name); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 {
			return nil, fmt.Errorf("invalid admin port in %q", name)
		}
		adhoc := ServerConfig{Name: name, Host: host, AdminPort: p}
		if err := mergo.Merge(&adhoc, c.Defaults); err != nil {
			return nil, fmt.Errorf("failed to apply defaults to server %s: %w", name, err)
		}
		return adhoc.Descriptor()
	}

	return nil, fmt.Errorf("server %q not found in config (available: %s)", name, strings.Join(c.Names(), ", "))
}

// Descriptor converts the configuration into a server descriptor.
func (s ServerConfig) Descriptor() (*server.Descriptor, error) {
	iface, err := server.ParseAdminInterface(s.AdminInterface)
	if err != nil {
		return nil, err
	}

	version := server.VersionUnknown
	if s.Version != "" {
		version, err = server.ParseVersion(s.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
	}

	if s.Port < 0 || s.AdminPort < 0 {
		return nil, fmt.Errorf("ports must not be negative")
	}

	return &server.Descriptor{
		Name:           s.Name,
		Host:           s.Host,
		Port:           s.Port,
		AdminPort:      s.AdminPort,
		AdminUser:      s.AdminUser,
		AdminPassword:  s.AdminPassword,
		Secure:         s.Secure != nil && *s.Secure,
		ServerRoot:     expandHome(s.ServerRoot),
		DomainsFolder:  expandHome(s.DomainsFolder),
		Domain:         s.Domain,
		JavaHome:       expandHome(s.JavaHome),
		AdminInterface: iface,
		Version:        version,
	}, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
