// Package config loads orchestrator configuration from a YAML file with
// environment-variable overrides, following the ORCHESTRATOR_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized orchestrator configuration option (§6.4).
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	APIKey           string `yaml:"api_key"`
	APIKeyHeaderName string `yaml:"api_key_header_name"`

	SandboxImageRef string `yaml:"sandbox_image_ref"`
	DockerNetwork   string `yaml:"docker_network"`

	ObjectStoreBucket string `yaml:"object_store_bucket"`
	ObjectStoreRegion string `yaml:"object_store_region"`

	SandboxStoreBackend string `yaml:"sandbox_store_backend"` // memory | sqlite | postgres
	DatabaseURL         string `yaml:"database_url"`
	RegistryRetention   int    `yaml:"registry_retention_seconds"` // memory backend: prune terminal records older than this; 0 = never

	DefaultTTLSeconds         int `yaml:"default_ttl_seconds"`
	ExecDefaultTimeoutSeconds int `yaml:"exec_default_timeout_seconds"`
	ShutdownTimeoutSeconds    int `yaml:"shutdown_timeout_seconds"`
	ReadinessTimeoutSeconds   int `yaml:"readiness_timeout_seconds"`

	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	ExpiryIntervalSeconds    int `yaml:"expiry_interval_seconds"`

	ContainerCPULimit    float64 `yaml:"container_cpu_limit"`
	ContainerMemLimitMB  int     `yaml:"container_mem_limit_mb"`
	ContainerPidsLimit   int     `yaml:"container_pids_limit"`
	MaxCommandLengthByte int     `yaml:"max_command_length_bytes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json | text

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns a Config populated with the same defaults the teacher's
// Load seeds before applying file/env overrides.
func Default() *Config {
	return &Config{
		Host:                      "0.0.0.0",
		Port:                      8080,
		APIKeyHeaderName:          "X-API-Key",
		SandboxImageRef:           "matrx-sandbox:latest",
		DockerNetwork:             "bridge",
		ObjectStoreRegion:         "us-east-1",
		SandboxStoreBackend:       "memory",
		RegistryRetention:         86400,
		DefaultTTLSeconds:         7200,
		ExecDefaultTimeoutSeconds: 300,
		ShutdownTimeoutSeconds:    30,
		ReadinessTimeoutSeconds:   60,
		ReconcileIntervalSeconds: 45,
		ExpiryIntervalSeconds:    60,
		ContainerCPULimit:        2.0,
		ContainerMemLimitMB:      4096,
		ContainerPidsLimit:       512,
		MaxCommandLengthByte:     10000,
		LogLevel:                 "info",
		LogFormat:                "json",
	}
}

// Load reads yamlPath (if it exists) over the defaults, then applies
// ORCHESTRATOR_*-prefixed environment overrides.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SandboxStoreBackend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("sandbox_store_backend must be memory, sqlite, or postgres, got %q", c.SandboxStoreBackend)
	}
	if c.SandboxStoreBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required when sandbox_store_backend=postgres")
	}
	if c.APIKeyHeaderName == "" {
		c.APIKeyHeaderName = "X-API-Key"
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, set func(string)) {
		if v := os.Getenv("ORCHESTRATOR_" + key); v != "" {
			set(v)
		}
	}
	intv := func(key string, set func(int)) {
		str(key, func(v string) {
			if n, err := strconv.Atoi(v); err == nil {
				set(n)
			}
		})
	}
	floatv := func(key string, set func(float64)) {
		str(key, func(v string) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				set(f)
			}
		})
	}
	boolv := func(key string, set func(bool)) {
		str(key, func(v string) {
			if b, err := strconv.ParseBool(v); err == nil {
				set(b)
			}
		})
	}

	str("HOST", func(v string) { cfg.Host = v })
	intv("PORT", func(v int) { cfg.Port = v })
	str("API_KEY", func(v string) { cfg.APIKey = v })
	str("API_KEY_HEADER_NAME", func(v string) { cfg.APIKeyHeaderName = v })
	str("SANDBOX_IMAGE_REF", func(v string) { cfg.SandboxImageRef = v })
	str("DOCKER_NETWORK", func(v string) { cfg.DockerNetwork = v })
	str("OBJECT_STORE_BUCKET", func(v string) { cfg.ObjectStoreBucket = v })
	str("OBJECT_STORE_REGION", func(v string) { cfg.ObjectStoreRegion = v })
	str("SANDBOX_STORE_BACKEND", func(v string) { cfg.SandboxStoreBackend = strings.ToLower(v) })
	str("DATABASE_URL", func(v string) { cfg.DatabaseURL = v })
	intv("REGISTRY_RETENTION_SECONDS", func(v int) { cfg.RegistryRetention = v })
	intv("DEFAULT_TTL_SECONDS", func(v int) { cfg.DefaultTTLSeconds = v })
	intv("EXEC_DEFAULT_TIMEOUT_SECONDS", func(v int) { cfg.ExecDefaultTimeoutSeconds = v })
	intv("SHUTDOWN_TIMEOUT_SECONDS", func(v int) { cfg.ShutdownTimeoutSeconds = v })
	intv("READINESS_TIMEOUT_SECONDS", func(v int) { cfg.ReadinessTimeoutSeconds = v })
	intv("RECONCILE_INTERVAL_SECONDS", func(v int) { cfg.ReconcileIntervalSeconds = v })
	intv("EXPIRY_INTERVAL_SECONDS", func(v int) { cfg.ExpiryIntervalSeconds = v })
	floatv("CONTAINER_CPU_LIMIT", func(v float64) { cfg.ContainerCPULimit = v })
	intv("CONTAINER_MEM_LIMIT_MB", func(v int) { cfg.ContainerMemLimitMB = v })
	intv("CONTAINER_PIDS_LIMIT", func(v int) { cfg.ContainerPidsLimit = v })
	intv("MAX_COMMAND_LENGTH_BYTES", func(v int) { cfg.MaxCommandLengthByte = v })
	str("LOG_LEVEL", func(v string) { cfg.LogLevel = strings.ToLower(v) })
	str("LOG_FORMAT", func(v string) { cfg.LogFormat = strings.ToLower(v) })
	boolv("METRICS_ENABLED", func(v bool) { cfg.MetricsEnabled = v })
}
