package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// configBaseName is the file base name InitViper searches for, with an
// explicit extension, in standard locations. Requiring an extension
// keeps viper from matching the gateway binary itself (same base name,
// no extension) the way a bare SetConfigName search would.
const configBaseName = "elnmcp-gateway"

// InitViper initializes viper with the configuration file and
// environment variable bindings. If configFile is empty, it searches
// standard locations for elnmcp-gateway.yaml/.yml.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName(configBaseName)
		viper.SetConfigType("yaml")
	}

	// ELNMCP_SCOPE_FOLDER_PATH overrides scope.folder_path, etc.
	viper.SetEnvPrefix("ELNMCP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for elnmcp-gateway.yaml or
// .yml, returning the first match.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".elnmcp-gateway"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "elnmcp-gateway"))
		}
	} else {
		paths = append(paths, "/etc/elnmcp-gateway")
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configBaseName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys that env vars are expected to
// override, most importantly the secret-bearing auth fields, which are
// never read from the YAML file at all (auth.access_password has
// `yaml:"-"`) — they exist only via ELNMCP_AUTH_ACCESS_PASSWORD.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("scope.mode")
	_ = viper.BindEnv("scope.notebook_id")
	_ = viper.BindEnv("scope.notebook_name")
	_ = viper.BindEnv("scope.folder_path")
	_ = viper.BindEnv("auth.mode")
	_ = viper.BindEnv("auth.access_key_id")
	_ = viper.BindEnv("auth.access_password")
	_ = viper.BindEnv("auth.username")
	_ = viper.BindEnv("eln.base_url")
	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file (if any), applies environment
// overrides and defaults, and validates the result. The core never
// calls this directly — only cmd/elnmcp-gateway does.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and unmarshals it without
// applying defaults or validating, so a caller can apply CLI flag
// overrides (e.g. --dev) first.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// AccessPassword carries `mapstructure:"-"`, so Unmarshal never sets
	// it; it is taken from the environment only.
	cfg.Auth.AccessPassword = os.Getenv("ELNMCP_AUTH_ACCESS_PASSWORD")
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or "" if the gateway is running on env vars alone.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
