// Package config provides the configuration schema for the ELN MCP
// gateway: the ScopeConfig and AuthConfig records,
// plus the ambient server, upstream HTTP client, and audit sink settings
// a complete deployment needs. The core (internal/domain, internal/service,
// internal/adapter) never reads argv, env vars, or files directly — this
// package and cmd/elnmcp-gateway are the sole external collaborators that
// construct a Config and hand it, already validated and immutable, to the
// wired components.
package config

import "time"

// Config is the top-level, immutable configuration for the gateway.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Scope  ScopeConfig  `yaml:"scope" mapstructure:"scope"`
	Auth   AuthConfig   `yaml:"auth" mapstructure:"auth"`
	ELN    ELNConfig    `yaml:"eln" mapstructure:"eln"`
	Audit  AuditConfig  `yaml:"audit" mapstructure:"audit"`

	// DevMode enables verbose (debug) logging only. It never relaxes
	// scope enforcement — fail-secure is never a dev-mode-gated behavior.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures process-level ambient behavior: logging and
// the graceful-shutdown timings.
type ServerConfig struct {
	// LogLevel sets the minimum slog level. Valid values: debug, info,
	// warn, error. Defaults to "info"; DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownDrainTimeout bounds how long an in-flight JSON-RPC request
	// is allowed to finish after a termination signal.
	ShutdownDrainTimeout time.Duration `yaml:"shutdown_drain_timeout" mapstructure:"shutdown_drain_timeout"`

	// AuditDrainTimeout bounds how long the audit buffer is drained
	// after a termination signal.
	AuditDrainTimeout time.Duration `yaml:"audit_drain_timeout" mapstructure:"audit_drain_timeout"`
}

// ScopeMode names which ScopeConfig variant is configured. Exactly one
// of the corresponding fields may be set, which Validate() enforces.
type ScopeMode string

const (
	ScopeModeNone         ScopeMode = "none"
	ScopeModeNotebookID   ScopeMode = "notebook_id"
	ScopeModeNotebookName ScopeMode = "notebook_name"
	ScopeModeFolderPath   ScopeMode = "folder_path"
)

// ScopeConfig is the process-wide authorization boundary. At most one of NotebookID, NotebookName, or FolderPath may be
// non-empty; an invalid combination is a fatal startup error (Validate).
// Mode may be left empty in YAML — Normalize derives it from whichever
// field is set, defaulting to ScopeModeNone.
type ScopeConfig struct {
	Mode         ScopeMode `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=none notebook_id notebook_name folder_path"`
	NotebookID   string    `yaml:"notebook_id" mapstructure:"notebook_id"`
	NotebookName string    `yaml:"notebook_name" mapstructure:"notebook_name"`
	// FolderPath is the raw, slash-delimited folder scope string, e.g.
	// "Chemistry/Reagents". Normalized via folderpath.FromRaw when the
	// ScopeConfig is turned into a scope.Config at startup.
	FolderPath string `yaml:"folder_path" mapstructure:"folder_path"`
}

// Normalize derives Mode from whichever field is set when Mode was left
// blank in YAML/env, so `folder_path: ""` and an absent folder_path key
// both mean ScopeModeNone unless the caller explicitly writes
// `mode: folder_path` to scope to the root folder.
func (s ScopeConfig) Normalize() ScopeConfig {
	if s.Mode != "" {
		return s
	}
	switch {
	case s.NotebookID != "":
		s.Mode = ScopeModeNotebookID
	case s.NotebookName != "":
		s.Mode = ScopeModeNotebookName
	case s.FolderPath != "":
		s.Mode = ScopeModeFolderPath
	default:
		s.Mode = ScopeModeNone
	}
	return s
}

// AuthMode selects the ELN credential scheme.
type AuthMode string

const (
	AuthModeAPIKey    AuthMode = "api_key"
	AuthModeUserToken AuthMode = "user_token"
)

// AuthConfig is the upstream ELN credential and endpoint binding.
// None of its secret-bearing fields are ever logged;
// see internal/domain/sanitize.
type AuthConfig struct {
	Mode AuthMode `yaml:"mode" mapstructure:"mode" validate:"required,oneof=api_key user_token"`

	// AccessKeyID identifies the credential; not secret.
	AccessKeyID string `yaml:"access_key_id" mapstructure:"access_key_id" validate:"required"`

	// AccessPassword is the HMAC signing secret (api_key mode) or the
	// SSO temporary token (user_token mode). Supplied at runtime via the
	// ELNMCP_AUTH_ACCESS_PASSWORD env var — never only as AccessPasswordHash.
	AccessPassword string `yaml:"-" mapstructure:"-"`

	// AccessPasswordHash, if set, is an Argon2id hash (produced by
	// `elnmcp-gateway hash-secret`) the gateway verifies the runtime
	// AccessPassword value against before first use, so the plaintext
	// never needs to sit in the YAML file at rest. Optional.
	AccessPasswordHash string `yaml:"access_password_hash" mapstructure:"access_password_hash"`

	// Username is required when Mode is AuthModeUserToken.
	Username string `yaml:"username" mapstructure:"username"`
}

// ELNConfig configures the outbound HTTP client to the ELN API. Durations use Go duration strings in YAML ("30s", "100ms").
type ELNConfig struct {
	// BaseURL is the primary regional endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// BackupURLs is an ordered list of secondary endpoints tried on
	// connection-level failure or persistent 5xx from BaseURL.
	BackupURLs []string `yaml:"backup_urls" mapstructure:"backup_urls" validate:"omitempty,dive,url"`

	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries" validate:"omitempty,min=0,max=10"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	Jitter            float64       `yaml:"jitter" mapstructure:"jitter" validate:"omitempty,min=0,max=1"`
}

// AuditConfig configures the AuditEmitter (C9) and its sink.
type AuditConfig struct {
	// Output selects the sink: "stdout" or "file://<absolute-path>".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// Capacity bounds the in-memory buffer of unwritten events.
	Capacity int `yaml:"capacity" mapstructure:"capacity" validate:"omitempty,min=1"`

	// FlushInterval is how often the background worker drains the
	// buffer to the sink.
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`

	// TerminateOnOverflow controls whether the process exits when the
	// buffer overflows with nothing evictable.
	TerminateOnOverflow bool `yaml:"terminate_on_overflow" mapstructure:"terminate_on_overflow"`

	// File-sink-only settings, used when Output starts with "file://".
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// SetDefaults applies default values to any field left at its zero
// value. Called before Validate.
func (c *Config) SetDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.DevMode {
		c.Server.LogLevel = "debug"
	}
	if c.Server.ShutdownDrainTimeout == 0 {
		c.Server.ShutdownDrainTimeout = 30 * time.Second
	}
	if c.Server.AuditDrainTimeout == 0 {
		c.Server.AuditDrainTimeout = 5 * time.Second
	}

	c.Scope = c.Scope.Normalize()

	if c.ELN.Timeout == 0 {
		c.ELN.Timeout = 30 * time.Second
	}
	if c.ELN.ConnectTimeout == 0 {
		c.ELN.ConnectTimeout = 10 * time.Second
	}
	if c.ELN.MaxRetries == 0 {
		c.ELN.MaxRetries = 3
	}
	if c.ELN.InitialBackoff == 0 {
		c.ELN.InitialBackoff = 100 * time.Millisecond
	}
	if c.ELN.MaxBackoff == 0 {
		c.ELN.MaxBackoff = 10 * time.Second
	}
	if c.ELN.BackoffMultiplier == 0 {
		c.ELN.BackoffMultiplier = 2.0
	}
	if c.ELN.Jitter == 0 {
		c.ELN.Jitter = 0.25
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.Capacity == 0 {
		c.Audit.Capacity = 1000
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = time.Second
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
}
