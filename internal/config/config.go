package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dynrelay/dynrelay/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConnectorTimeout  = 30 * time.Second
	defaultConnectorAttempts = 3
	defaultStatePath         = "./data/dynrelay.db"
	defaultAdminPort         = 8085
)

// Config is the full process configuration, loaded from a YAML file with
// secrets overlaid from the environment.
type Config struct {
	Dynatrace  DynatraceConfig   `yaml:"dynatrace"`
	Polling    PollingConfig     `yaml:"polling"`
	Database   DatabaseConfig    `yaml:"database"`
	Admin      AdminConfig       `yaml:"admin"`
	Logging    LoggingConfig     `yaml:"logging"`
	Connectors []ConnectorConfig `yaml:"connectors"`
}

// environment holds the settings that never live in the config file.
type environment struct {
	APIToken string `env:"DYNATRACE_API_TOKEN"`
	LogLevel string `env:"LOG_LEVEL"`
}

type DynatraceConfig struct {
	BaseURL         string `yaml:"base_url"`
	Tenant          string `yaml:"tenant"`
	ProblemSelector string `yaml:"problem_selector"`
	APIToken        string `yaml:"-"`
}

// ProblemsURL builds the problems endpoint for the configured tenant.
func (c DynatraceConfig) ProblemsURL() string {
	url := fmt.Sprintf("%s/e/%s/api/v2/problems", strings.TrimRight(c.BaseURL, "/"), c.Tenant)
	if c.ProblemSelector != "" {
		url += "?problemSelector=" + c.ProblemSelector + "&sort=-startTime"
	}
	return url
}

type PollingConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Source returns the connection string passed to the storage layer: the
// state file path for SQLite, the DSN otherwise.
func (c DatabaseConfig) Source() string {
	if c.Driver == "" || c.Driver == "sqlite" {
		if c.Path == "" {
			return defaultStatePath
		}
		return c.Path
	}
	return c.DSN
}

type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ConnectorConfig struct {
	Name           string            `yaml:"name"`
	URL            string            `yaml:"url"`
	Method         string            `yaml:"method"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	RetryAttempts  int               `yaml:"retry_attempts"`
	VerifySSL      *bool             `yaml:"verify_ssl"`
	Mode           string            `yaml:"mode"`

	// Resolved during Load; closed enums, never re-parsed afterwards.
	HTTPMethod   domain.HTTPMethod   `yaml:"-"`
	DeliveryMode domain.DeliveryMode `yaml:"-"`
}

func (c ConnectorConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultConnectorTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ConnectorConfig) MaxAttempts() int {
	if c.RetryAttempts <= 0 {
		return defaultConnectorAttempts
	}
	return c.RetryAttempts
}

func (c ConnectorConfig) SSLVerificationEnabled() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// Load reads the YAML file at path, overlays environment settings and
// validates the result. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	var envSettings environment
	if _, err := env.UnmarshalFromEnviron(&envSettings); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	cfg.Dynatrace.APIToken = envSettings.APIToken
	if envSettings.LogLevel != "" {
		cfg.Logging.Level = envSettings.LogLevel
	}

	cfg.applyDefaults()
	cfg.expandHeaderEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultStatePath
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = defaultAdminPort
	}
}

// expandHeaderEnv substitutes ${VAR} placeholders in connector header
// values so credentials stay out of the config file.
func (c *Config) expandHeaderEnv() {
	for i := range c.Connectors {
		for key, value := range c.Connectors[i].Headers {
			if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
				if envValue, ok := os.LookupEnv(value[2 : len(value)-1]); ok {
					c.Connectors[i].Headers[key] = envValue
				}
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Dynatrace.BaseURL == "" {
		return fmt.Errorf("%w: dynatrace.base_url cannot be empty", domain.ErrValidation)
	}
	if c.Dynatrace.Tenant == "" {
		return fmt.Errorf("%w: dynatrace.tenant cannot be empty", domain.ErrValidation)
	}
	if c.Dynatrace.APIToken == "" {
		return fmt.Errorf("%w: DYNATRACE_API_TOKEN environment variable is required", domain.ErrValidation)
	}
	if c.Polling.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: polling.interval_seconds must be greater than 0", domain.ErrValidation)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required for the postgres driver", domain.ErrValidation)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("%w: unsupported database.driver %q", domain.ErrValidation, c.Database.Driver)
	}
	if len(c.Connectors) == 0 {
		return fmt.Errorf("%w: at least one connector must be configured", domain.ErrValidation)
	}

	seen := make(map[string]bool, len(c.Connectors))
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		if conn.Name == "" {
			return fmt.Errorf("%w: connector name cannot be empty", domain.ErrValidation)
		}
		if seen[conn.Name] {
			return fmt.Errorf("%w: duplicate connector name %q", domain.ErrValidation, conn.Name)
		}
		seen[conn.Name] = true

		if !strings.HasPrefix(conn.URL, "http://") && !strings.HasPrefix(conn.URL, "https://") {
			return fmt.Errorf("%w: connector %q URL must start with http:// or https://", domain.ErrValidation, conn.Name)
		}

		method, err := domain.ParseHTTPMethodFromString(conn.Method)
		if err != nil {
			return fmt.Errorf("connector %q: %w", conn.Name, err)
		}
		conn.HTTPMethod = method

		mode, err := domain.ParseDeliveryModeFromString(conn.Mode)
		if err != nil {
			return fmt.Errorf("connector %q: %w", conn.Name, err)
		}
		conn.DeliveryMode = mode
	}

	return nil
}
