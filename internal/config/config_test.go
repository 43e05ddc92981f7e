package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "docflow", cfg.Database.Database)
			assert.Equal(t, "docflow.events", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, []string{"document.finalize"}, cfg.RabbitMQ.Queue.BindingKeys)
			assert.Equal(t, "docflow-api", cfg.App.Name)
			assert.Equal(t, "stub", cfg.Processing.Driver)
			assert.Equal(t, 4, cfg.Workflow.Concurrency)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultAdminEmail}, cfg.Auth.AdminEmails)
	assert.Equal(t, DefaultMinPasswordLength, cfg.Auth.MinPasswordLength)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, DefaultUploadBucket, cfg.Storage.Bucket)
	assert.Equal(t, "http", cfg.Processing.Driver)
	assert.Equal(t, 3, cfg.Processing.RetryAttempts)
	assert.Equal(t, 1, cfg.Workflow.Concurrency)
	assert.Equal(t, "server", cfg.Functions.Mode)
	assert.Equal(t, int64(32<<20), cfg.Server.MaxUploadBytes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBackendURL, "https://override.example.co/")
	t.Setenv(EnvBackendKey, "override-key")
	t.Setenv(EnvDatabasePassword, "db-secret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.co/", cfg.Backend.URL)
	assert.Equal(t, "override-key", cfg.Backend.AccessKey)
	assert.Equal(t, "db-secret", cfg.Database.Password)
	assert.Equal(t, "https://override.example.co/functions/v1/ocr-convert", cfg.Processing.OCRURL)
	assert.Equal(t, "https://override.example.co/functions/v1/docgen", cfg.Processing.DocGenURL)
}

func TestConfig_applyEnv_EmptyValueClears(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{URL: "https://x", AccessKey: "k"}}
	env := map[string]string{EnvBackendKey: ""}

	cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "https://x", cfg.Backend.URL)
	assert.Empty(t, cfg.Backend.AccessKey)
}

func validAPIConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "docflow",
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "docflow.events"},
		},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "missing backend credentials is not an error",
			mutate: func(c *Config) { c.Backend = BackendConfig{} },
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "rabbitmq enabled without exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name: "rabbitmq disabled skips its checks",
			mutate: func(c *Config) {
				c.RabbitMQ = RabbitMQConfig{Enabled: false}
			},
		},
		{
			name:      "unsupported storage driver",
			mutate:    func(c *Config) { c.Storage.Driver = "s3" },
			wantErr:   true,
			errString: "unsupported storage driver",
		},
		{
			name:      "unsupported processing driver",
			mutate:    func(c *Config) { c.Processing.Driver = "grpc" },
			wantErr:   true,
			errString: "unsupported processing driver",
		},
		{
			name:      "no token verification source",
			mutate:    func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr:   true,
			errString: "jwt_secret or jwks_url",
		},
		{
			name: "jwks url is enough",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
				c.Auth.JWKSURL = "https://project.example.co/auth/v1/.well-known/jwks.json"
			},
		},
		{
			name:      "invalid workflow concurrency",
			mutate:    func(c *Config) { c.Workflow.Concurrency = -1 },
			wantErr:   true,
			errString: "workflow concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost", Port: 5432, Database: "docflow"},
			RabbitMQ: RabbitMQConfig{
				Host:     "localhost",
				Port:     5672,
				Exchange: ExchangeConfig{Name: "docflow.events"},
				Queue:    QueueConfig{Name: "docflow.finalize"},
			},
			Worker: WorkerConfig{
				Concurrency:   2,
				JobTimeout:    30 * time.Second,
				StaleAfter:    15 * time.Minute,
				SweepInterval: time.Minute,
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:      "missing queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "invalid rabbitmq port",
			mutate:    func(c *Config) { c.RabbitMQ.Port = 0 },
			wantErr:   true,
			errString: "invalid rabbitmq port",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "job_timeout",
		},
		{
			name:      "zero stale threshold",
			mutate:    func(c *Config) { c.Worker.StaleAfter = 0 },
			wantErr:   true,
			errString: "stale_after",
		},
		{
			name:      "zero sweep interval",
			mutate:    func(c *Config) { c.Worker.SweepInterval = 0 },
			wantErr:   true,
			errString: "sweep_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateFunctionsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:   "server mode",
			config: &Config{Server: ServerConfig{Port: 8090}, Functions: FunctionsConfig{Mode: "server"}},
		},
		{
			name:   "framework mode",
			config: &Config{Server: ServerConfig{Port: 8090}, Functions: FunctionsConfig{Mode: "framework"}},
		},
		{
			name:    "unknown mode",
			config:  &Config{Server: ServerConfig{Port: 8090}, Functions: FunctionsConfig{Mode: "lambda"}},
			wantErr: true,
		},
		{
			name: "negative latency",
			config: &Config{
				Server:    ServerConfig{Port: 8090},
				Functions: FunctionsConfig{Mode: "server", SimulatedLatency: -time.Second},
			},
			wantErr: true,
		},
		{
			name:    "bad port",
			config:  &Config{Functions: FunctionsConfig{Mode: "server"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.ValidateFunctionsConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
