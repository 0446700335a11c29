// ABOUTME: Configuration loading and parsing for cumulus-auth
// ABOUTME: Supports YAML files with environment variable expansion and validation

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cumulus-auth configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	VPN         VPNConfig         `yaml:"vpn"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds role policy configuration. Superuser roles bypass
// every check; global roles grant admin visibility without superuser
// power.
type AuthConfig struct {
	SuperuserRoles []string `yaml:"superuser_roles"`
	GlobalRoles    []string `yaml:"global_roles"`
}

// VPNConfig holds per-project VPN port pool configuration
type VPNConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	StartPort int    `yaml:"start_port"`
	EndPort   int    `yaml:"end_port"`
	RedisAddr string `yaml:"redis_addr"`
}

// CredentialsConfig holds credential bundle configuration
type CredentialsConfig struct {
	CADir       string `yaml:"ca_dir"`
	RCFile      string `yaml:"rc_file"`
	KeyFile     string `yaml:"key_file"`
	CertFile    string `yaml:"cert_file"`
	CAFile      string `yaml:"ca_file"`
	VPNFile     string `yaml:"vpn_file"`
	CertSubject string `yaml:"cert_subject"`
	RCTemplate  string `yaml:"rc_template"`
	VPNTemplate string `yaml:"vpn_template"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a config populated with the defaults a file may
// override.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "cumulus.db"},
		Auth: AuthConfig{
			SuperuserRoles: []string{"cloudadmin"},
			GlobalRoles:    []string{"cloudadmin", "itsec"},
		},
		VPN: VPNConfig{
			StartPort: 1000,
			EndPort:   2000,
			RedisAddr: "localhost:6379",
		},
		Credentials: CredentialsConfig{
			CADir:       "ca",
			RCFile:      "cumulusrc",
			KeyFile:     "pk.pem",
			CertFile:    "cert.pem",
			CAFile:      "cacert.pem",
			VPNFile:     "cumulus-client.ovpn",
			CertSubject: "/C=US/ST=California/L=MountainView/O=Cumulus/OU=CumulusDev/CN=%s-%s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.VPN.Enabled {
		if c.VPN.Address == "" {
			return fmt.Errorf("vpn.address is required when vpn is enabled")
		}
		if c.VPN.StartPort <= 0 || c.VPN.EndPort < c.VPN.StartPort {
			return fmt.Errorf("vpn port range [%d, %d] is invalid", c.VPN.StartPort, c.VPN.EndPort)
		}
		if c.VPN.RedisAddr == "" {
			return fmt.Errorf("vpn.redis_addr is required when vpn is enabled")
		}
	}

	if len(c.Auth.SuperuserRoles) == 0 {
		return fmt.Errorf("auth.superuser_roles must name at least one role")
	}

	return nil
}
