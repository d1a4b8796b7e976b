package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var (
	ErrNoDefaultTenant = errors.New("no default tenant configured")
	ErrMissingField    = errors.New("missing required configuration")
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"assistant-relay"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Hostname    string `envconfig:"HOSTNAME" default:"assistant-relay"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`

	VerifyToken string `envconfig:"VERIFY_TOKEN"`
	AppSecret   string `envconfig:"APP_SECRET"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	GraphAPIBaseURL string `envconfig:"GRAPH_API_BASE_URL" default:"https://graph.facebook.com"`
	GraphAPIVersion string `envconfig:"VERSION" default:"v18.0"`

	ThreadDBPath  string `envconfig:"THREAD_DB_PATH" default:"data/threads.db"`
	TenantsFile   string `envconfig:"TENANTS_FILE"`
	KnowledgeFile string `envconfig:"KNOWLEDGE_FILE"`

	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	RunTimeout    time.Duration `envconfig:"RUN_TIMEOUT" default:"60s"`
	SendTimeout   time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`
	AsyncDispatch bool          `envconfig:"ASYNC_DISPATCH" default:"false"`

	// Tenants is sorted by business number. DefaultTenant points at the tenant
	// answering for numbers that are not in the table.
	Tenants       []TenantConfig `ignored:"true"`
	DefaultTenant *TenantConfig  `ignored:"true"`
}

// LoadConfig reads the process configuration from the environment and builds
// the tenant table. It fails when the result would not be able to answer a
// webhook, so a misconfigured deployment never starts.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.LoadTenants(os.Environ()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadTenants (re)builds Tenants and DefaultTenant from TenantsFile and the
// given environment.
func (c *Config) LoadTenants(environ []string) error {
	tenants, def, err := loadTenants(c.TenantsFile, environ)
	if err != nil {
		return fmt.Errorf("loading tenants: %w", err)
	}
	c.Tenants = tenants
	c.DefaultTenant = def
	return nil
}

func (c *Config) Validate() error {
	if c.VerifyToken == "" {
		return fmt.Errorf("%w: VERIFY_TOKEN", ErrMissingField)
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingField)
	}
	if c.ThreadDBPath == "" {
		return fmt.Errorf("%w: THREAD_DB_PATH", ErrMissingField)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.RunTimeout < c.PollInterval {
		return fmt.Errorf("RUN_TIMEOUT (%s) must not be shorter than POLL_INTERVAL (%s)", c.RunTimeout, c.PollInterval)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("SEND_TIMEOUT must be positive, got %s", c.SendTimeout)
	}

	for _, t := range c.Tenants {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	if c.DefaultTenant == nil {
		return ErrNoDefaultTenant
	}
	return c.DefaultTenant.Validate()
}
