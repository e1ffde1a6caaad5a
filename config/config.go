package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/cloudops/logging"
	"github.com/nomis52/cloudops/operation"
)

const (
	// Operation types
	TypeREST = "rest"
	TypeSSH  = "ssh"

	// Default monitoring settings
	defaultMetricsPrefix = "cloudops"
	defaultJobName       = "cloudops"

	// Default management API settings
	defaultRetryCount = 2
	defaultRetryWait  = 500 * time.Millisecond
	defaultTimeout    = 30 * time.Second

	// Default SSH settings
	defaultSSHPort     = 22
	defaultDialTimeout = 10 * time.Second

	// Default server settings
	defaultListenAddr   = ":8080"
	defaultHistoryLimit = 50
)

// Config represents the complete application configuration
type Config struct {
	Logging    logging.Config     `yaml:"logging" toml:"logging"`
	Monitoring MonitoringConfig   `yaml:"monitoring" toml:"monitoring"`
	Defaults   operation.Settings `yaml:"defaults" toml:"defaults"`
	Management ManagementConfig   `yaml:"management" toml:"management"`
	SSH        SSHConfig          `yaml:"ssh" toml:"ssh"`
	Operations []OperationConfig  `yaml:"operations" toml:"operations"`
	Server     ServerConfig       `yaml:"server" toml:"server"`
}

// MonitoringConfig holds metrics settings. Metrics are only pushed when
// VictoriaMetricsURL is set.
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url" toml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix" toml:"metrics_prefix"`
	JobName            string `yaml:"jobname" toml:"jobname"`
}

// ManagementConfig holds the management REST API connection settings.
type ManagementConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	// Credentials are bearer tokens, tried in order when a request is rejected
	// with 401 or 403.
	Credentials []string `yaml:"credentials" toml:"credentials"`
	// RetryCount is the number of resends after a failed attempt. Unset means
	// the default; 0 disables retries.
	RetryCount *int          `yaml:"retry_count" toml:"retry_count"`
	RetryWait  time.Duration `yaml:"retry_wait" toml:"retry_wait"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`

	HandleHeader   string `yaml:"handle_header" toml:"handle_header"`
	OperationsPath string `yaml:"operations_path" toml:"operations_path"`
	// DocumentPath selects a nested object of the status response, e.g. "properties".
	DocumentPath string `yaml:"document_path" toml:"document_path"`

	// SucceededWhen and FailedWhen are expressions over the status document.
	// Both or neither must be set.
	SucceededWhen string `yaml:"succeeded_when" toml:"succeeded_when"`
	FailedWhen    string `yaml:"failed_when" toml:"failed_when"`
}

// Retries returns the configured retry count, or the default when unset.
func (m ManagementConfig) Retries() int {
	if m.RetryCount == nil {
		return defaultRetryCount
	}
	return *m.RetryCount
}

// SSHConfig holds the remote host used by ssh operations.
type SSHConfig struct {
	Host        string        `yaml:"host" toml:"host"`
	Port        int           `yaml:"port" toml:"port"`
	User        string        `yaml:"user" toml:"user"`
	KeyFile     string        `yaml:"key_file" toml:"key_file"`
	JobDir      string        `yaml:"job_dir" toml:"job_dir"`
	DialTimeout time.Duration `yaml:"dial_timeout" toml:"dial_timeout"`
}

// Address returns host:port.
func (c SSHConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OperationConfig describes one supervised operation of the build.
type OperationConfig struct {
	Name string `yaml:"name" toml:"name"`
	Type string `yaml:"type" toml:"type"`

	// rest
	Method  string            `yaml:"method" toml:"method"`
	Path    string            `yaml:"path" toml:"path"`
	Body    map[string]any    `yaml:"body" toml:"body"`
	Headers map[string]string `yaml:"headers" toml:"headers"`

	// ssh
	Script      string `yaml:"script" toml:"script"`
	OutputLines int    `yaml:"output_lines" toml:"output_lines"`

	// Zero fields fall back to Config.Defaults.
	operation.Settings `yaml:",inline"`

	// WarnOnly reports a failed operation as a warning instead of failing the build.
	WarnOnly        bool     `yaml:"warn_only" toml:"warn_only"`
	ContinueOnError bool     `yaml:"continue_on_error" toml:"continue_on_error"`
	DependsOn       []string `yaml:"depends_on" toml:"depends_on"`
}

// ServerConfig holds the HTTP server settings used by the serve command.
type ServerConfig struct {
	Listen string        `yaml:"listen" toml:"listen"`
	Cron   []CronTrigger `yaml:"cron" toml:"cron"`
	// StateDir stores the run history. History is kept in memory when empty.
	StateDir     string `yaml:"state_dir" toml:"state_dir"`
	HistoryLimit int    `yaml:"history_limit" toml:"history_limit"`
	// TLSCert and TLSKey enable HTTPS. Both or neither must be set.
	TLSCert string `yaml:"tls_cert" toml:"tls_cert"`
	TLSKey  string `yaml:"tls_key" toml:"tls_key"`
}

// CronTrigger runs a set of operations on a schedule. An empty Operations
// list runs the whole build.
type CronTrigger struct {
	Schedule   string   `yaml:"schedule" toml:"schedule"`
	Operations []string `yaml:"operations" toml:"operations"`
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Defaults.SetDefaults()

	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}

	if c.Management.RetryCount == nil {
		retries := defaultRetryCount
		c.Management.RetryCount = &retries
	}
	if c.Management.RetryWait == 0 {
		c.Management.RetryWait = defaultRetryWait
	}
	if c.Management.Timeout == 0 {
		c.Management.Timeout = defaultTimeout
	}

	if c.SSH.Port == 0 {
		c.SSH.Port = defaultSSHPort
	}
	if c.SSH.DialTimeout == 0 {
		c.SSH.DialTimeout = defaultDialTimeout
	}

	for i := range c.Operations {
		op := &c.Operations[i]
		if op.Type == TypeREST && op.Method == "" {
			op.Method = "POST"
		}
		op.Settings = op.Settings.Merge(c.Defaults)
	}

	if c.Server.Listen == "" {
		c.Server.Listen = defaultListenAddr
	}
	if c.Server.HistoryLimit == 0 {
		c.Server.HistoryLimit = defaultHistoryLimit
	}
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if len(c.Operations) == 0 {
		return errors.New("at least one operation is required")
	}
	if (c.Management.SucceededWhen == "") != (c.Management.FailedWhen == "") {
		return errors.New("management: succeeded_when and failed_when must be set together")
	}
	if c.Management.RetryCount != nil && *c.Management.RetryCount < 0 {
		return errors.New("management: retry_count cannot be negative")
	}

	seen := make(map[string]bool, len(c.Operations))
	for i, op := range c.Operations {
		if err := c.validateOperation(op, seen); err != nil {
			if op.Name == "" {
				return fmt.Errorf("operations[%d]: %w", i, err)
			}
			return fmt.Errorf("operation %q: %w", op.Name, err)
		}
		seen[op.Name] = true
	}

	for i, trigger := range c.Server.Cron {
		if strings.TrimSpace(trigger.Schedule) == "" {
			return fmt.Errorf("server.cron[%d]: schedule is required", i)
		}
		for _, name := range trigger.Operations {
			if !seen[name] {
				return fmt.Errorf("server.cron[%d]: unknown operation %q", i, name)
			}
		}
	}
	if c.Server.HistoryLimit < 0 {
		return errors.New("server: history_limit cannot be negative")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server: tls_cert and tls_key must be set together")
	}
	return nil
}

const redacted = "REDACTED"

// Redacted returns a copy of the config with credentials replaced, safe to
// return from the API.
func (c *Config) Redacted() Config {
	out := *c
	if len(c.Management.Credentials) > 0 {
		out.Management.Credentials = make([]string, len(c.Management.Credentials))
		for i := range out.Management.Credentials {
			out.Management.Credentials[i] = redacted
		}
	}
	out.Operations = make([]OperationConfig, len(c.Operations))
	for i, op := range c.Operations {
		out.Operations[i] = op
		if len(op.Headers) == 0 {
			continue
		}
		// Headers commonly carry keys.
		out.Operations[i].Headers = make(map[string]string, len(op.Headers))
		for k := range op.Headers {
			out.Operations[i].Headers[k] = redacted
		}
	}
	return out
}

// validateOperation checks op; seen holds the names of the operations before it.
func (c *Config) validateOperation(op OperationConfig, seen map[string]bool) error {
	if op.Name == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(op.Name, "/ ") {
		return errors.New("name cannot contain spaces or slashes")
	}
	if seen[op.Name] {
		return errors.New("duplicate name")
	}

	switch op.Type {
	case TypeREST:
		if c.Management.BaseURL == "" {
			return errors.New("management.base_url is required for rest operations")
		}
		if op.Path == "" {
			return errors.New("path is required")
		}
	case TypeSSH:
		if c.SSH.Host == "" || c.SSH.User == "" || c.SSH.KeyFile == "" {
			return errors.New("ssh host, user and key_file are required for ssh operations")
		}
		if strings.TrimSpace(op.Script) == "" {
			return errors.New("script is required")
		}
	default:
		return fmt.Errorf("type must be %q or %q, got %q", TypeREST, TypeSSH, op.Type)
	}

	if err := op.Settings.Validate(); err != nil {
		return err
	}

	for _, dep := range op.DependsOn {
		if !seen[dep] {
			return fmt.Errorf("depends on %q, which is not an earlier operation", dep)
		}
	}
	return nil
}

// Operation returns the operation named name.
func (c *Config) Operation(name string) (OperationConfig, bool) {
	for _, op := range c.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return OperationConfig{}, false
}

// OperationNames returns the operation names in build order.
func (c *Config) OperationNames() []string {
	names := make([]string, len(c.Operations))
	for i, op := range c.Operations {
		names[i] = op.Name
	}
	return names
}

// LoadConfig reads the config file at path, YAML unless the extension is
// .toml, and returns it with defaults applied and validated.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode YAML config %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
