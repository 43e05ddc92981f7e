package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultAdminEmail is the administrator address used when none is configured
	DefaultAdminEmail = "khhorem.khan@raqmiyat.com"
	// DefaultMinPasswordLength mirrors the auth backend password policy
	DefaultMinPasswordLength = 6
	// DefaultUploadBucket is the storage namespace for uploaded assets
	DefaultUploadBucket = "uploads"
)

// Environment variables that override values from the YAML file
const (
	EnvBackendURL       = "DOCFLOW_BACKEND_URL"
	EnvBackendKey       = "DOCFLOW_BACKEND_KEY"
	EnvJWTSecret        = "DOCFLOW_JWT_SECRET"
	EnvDatabasePassword = "DATABASE_PASSWORD"
	EnvRabbitMQPassword = "RABBITMQ_PASSWORD"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Backend    BackendConfig    `yaml:"backend"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Functions  FunctionsConfig  `yaml:"functions"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string   `yaml:"name"`
	Durable            bool     `yaml:"durable"`
	AutoDelete         bool     `yaml:"auto_delete"`
	Exclusive          bool     `yaml:"exclusive"`
	DeadLetterExchange string   `yaml:"dead_letter_exchange"`
	BindingKeys        []string `yaml:"binding_keys"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig holds the connection parameters of the auth/persistence backend.
// Both values must be present for any network-dependent component to run.
type BackendConfig struct {
	URL       string `yaml:"url"`
	AccessKey string `yaml:"access_key"`
}

// AuthConfig holds token verification and role settings
type AuthConfig struct {
	AdminEmails       []string      `yaml:"admin_emails"`
	JWTSecret         string        `yaml:"jwt_secret"`
	JWKSURL           string        `yaml:"jwks_url"`
	Issuer            string        `yaml:"issuer"`
	Leeway            time.Duration `yaml:"leeway"`
	MinPasswordLength int           `yaml:"min_password_length"`
}

// StorageConfig selects the bucket implementation for uploaded assets
type StorageConfig struct {
	Driver    string `yaml:"driver"` // local, gcs
	Bucket    string `yaml:"bucket"`
	LocalPath string `yaml:"local_path"`
}

// ProcessingConfig selects and tunes the processing backend
type ProcessingConfig struct {
	Driver        string        `yaml:"driver"` // http, stub
	OCRURL        string        `yaml:"ocr_url"`
	DocGenURL     string        `yaml:"docgen_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	StubLatency   time.Duration `yaml:"stub_latency"`
}

// WorkflowConfig tunes the processing workflow
type WorkflowConfig struct {
	// Concurrency 1 keeps the sequential abort-on-failure policy
	Concurrency       int           `yaml:"concurrency"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	FinalizeTimeout   time.Duration `yaml:"finalize_timeout"`
}

// FunctionsConfig holds settings of the processing functions service
type FunctionsConfig struct {
	Mode             string        `yaml:"mode"` // server, framework
	SimulatedLatency time.Duration `yaml:"simulated_latency"`
}

// Load reads and parses the configuration file, then applies
// environment overrides and defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()

	return &config, nil
}

// applyEnv overrides secrets from the environment
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBackendURL); ok {
		c.Backend.URL = v
	}
	if v, ok := lookup(EnvBackendKey); ok {
		c.Backend.AccessKey = v
	}
	if v, ok := lookup(EnvJWTSecret); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup(EnvDatabasePassword); ok {
		c.Database.Password = v
	}
	if v, ok := lookup(EnvRabbitMQPassword); ok {
		c.RabbitMQ.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20
	}

	if len(c.Auth.AdminEmails) == 0 {
		c.Auth.AdminEmails = []string{DefaultAdminEmail}
	}
	if c.Auth.MinPasswordLength == 0 {
		c.Auth.MinPasswordLength = DefaultMinPasswordLength
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = DefaultUploadBucket
	}
	if c.Storage.LocalPath == "" {
		c.Storage.LocalPath = "data"
	}

	if c.Processing.Driver == "" {
		c.Processing.Driver = "http"
	}
	base := strings.TrimRight(c.Backend.URL, "/")
	if c.Processing.OCRURL == "" && base != "" {
		c.Processing.OCRURL = base + "/functions/v1/ocr-convert"
	}
	if c.Processing.DocGenURL == "" && base != "" {
		c.Processing.DocGenURL = base + "/functions/v1/docgen"
	}
	if c.Processing.Timeout == 0 {
		c.Processing.Timeout = 60 * time.Second
	}
	if c.Processing.RetryAttempts == 0 {
		c.Processing.RetryAttempts = 3
	}
	if c.Processing.RetryDelay == 0 {
		c.Processing.RetryDelay = 500 * time.Millisecond
	}

	if c.Workflow.Concurrency == 0 {
		c.Workflow.Concurrency = 1
	}
	if c.Workflow.ProcessingTimeout == 0 {
		c.Workflow.ProcessingTimeout = 2 * time.Minute
	}
	if c.Workflow.FinalizeTimeout == 0 {
		c.Workflow.FinalizeTimeout = 10 * time.Second
	}

	if c.Functions.Mode == "" {
		c.Functions.Mode = "server"
	}

	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 5
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateAPIConfig checks the settings needed by the API service.
// Missing backend credentials are not an error: the service then runs unconfigured.
func (c *Config) ValidateAPIConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if err := validatePort("database", c.Database.Port); err != nil {
		return err
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(false); err != nil {
			return err
		}
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage local_path is required for the local driver")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}

	switch c.Processing.Driver {
	case "http", "stub":
	default:
		return fmt.Errorf("unsupported processing driver: %q", c.Processing.Driver)
	}

	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth jwt_secret or jwks_url is required")
	}

	if c.Workflow.Concurrency < 1 {
		return fmt.Errorf("workflow concurrency must be at least 1")
	}

	return nil
}

// ValidateWorkerConfig checks the settings needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if err := c.validateRabbitMQ(true); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.StaleAfter <= 0 {
		return fmt.Errorf("worker stale_after must be greater than 0")
	}

	if c.Worker.SweepInterval <= 0 {
		return fmt.Errorf("worker sweep_interval must be greater than 0")
	}

	return nil
}

// ValidateFunctionsConfig checks the settings needed by the functions service
func (c *Config) ValidateFunctionsConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	switch c.Functions.Mode {
	case "server", "framework":
	default:
		return fmt.Errorf("unsupported functions mode: %q", c.Functions.Mode)
	}

	if c.Functions.SimulatedLatency < 0 {
		return fmt.Errorf("functions simulated_latency must not be negative")
	}

	return nil
}

func (c *Config) validateRabbitMQ(needQueue bool) error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if err := validatePort("rabbitmq", c.RabbitMQ.Port); err != nil {
		return err
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if needQueue && c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
