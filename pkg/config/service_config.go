// Package config provides configuration loading for the flowstate services
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/helaix/flowstate/pkg/archive"
)

// ServiceConfigFile represents the structure of the flowstate.yaml file
type ServiceConfigFile struct {
	DatabaseURL string            `yaml:"database_url"`
	EventBus    string            `yaml:"event_bus"`
	Port        int               `yaml:"port"`
	LogLevel    string            `yaml:"log_level"`
	Archive     ArchiveConfigFile `yaml:"archive"`
	Sweep       SweepConfigFile   `yaml:"sweep"`
}

// ArchiveConfigFile represents the archive section of the YAML file
type ArchiveConfigFile struct {
	Provider string       `yaml:"provider"`
	RedisURL string       `yaml:"redis_url"`
	S3       S3ConfigFile `yaml:"s3"`
}

// S3ConfigFile represents the S3 connection settings in the YAML file
type S3ConfigFile struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SweepConfigFile represents the sweep section of the YAML file. MaxAge is a
// Go duration string such as "720h".
type SweepConfigFile struct {
	Schedule     string `yaml:"schedule"`
	MaxAge       string `yaml:"max_age"`
	MinSizeBytes int64  `yaml:"min_size_bytes"`
	BatchSize    int    `yaml:"batch_size"`
}

// ServiceConfig is the parsed configuration consumed by the flowstate binaries
type ServiceConfig struct {
	DatabaseURL string
	EventBus    string
	Port        int
	LogLevel    string
	Archive     ArchiveConfig
	Sweep       archive.SweeperConfig
}

// ArchiveConfig selects the archive backend and carries its connection settings
type ArchiveConfig struct {
	Provider string
	RedisURL string
	S3       archive.S3Config
}

// LoadServiceConfig loads service configuration from a YAML file
func LoadServiceConfig(filepath string) (ServiceConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ServiceConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return ServiceConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Convert to ServiceConfig
	config := ServiceConfig{
		DatabaseURL: configFile.DatabaseURL,
		EventBus:    configFile.EventBus,
		Port:        configFile.Port,
		LogLevel:    configFile.LogLevel,
		Archive: ArchiveConfig{
			Provider: configFile.Archive.Provider,
			RedisURL: configFile.Archive.RedisURL,
			S3: archive.S3Config{
				Endpoint:  configFile.Archive.S3.Endpoint,
				AccessKey: configFile.Archive.S3.AccessKey,
				SecretKey: configFile.Archive.S3.SecretKey,
				Bucket:    configFile.Archive.S3.Bucket,
				UseSSL:    configFile.Archive.S3.UseSSL,
			},
		},
		Sweep: archive.SweeperConfig{
			Schedule:     configFile.Sweep.Schedule,
			MinSizeBytes: configFile.Sweep.MinSizeBytes,
			BatchSize:    configFile.Sweep.BatchSize,
		},
	}

	if configFile.Sweep.MaxAge != "" {
		maxAge, err := time.ParseDuration(configFile.Sweep.MaxAge)
		if err != nil {
			return ServiceConfig{}, fmt.Errorf("failed to parse sweep max_age: %w", err)
		}

		config.Sweep.MaxAge = maxAge
	}

	// Set defaults for fields not specified
	if config.EventBus == "" {
		config.EventBus = "gochannel"
	}

	if config.Port == 0 {
		config.Port = 9091
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if config.Sweep.Schedule == "" {
		config.Sweep.Schedule = "@hourly"
	}

	return config, nil
}

// LoadServiceConfigOrDefault attempts to load service config from file,
// falling back to a default configuration if the file doesn't exist
func LoadServiceConfigOrDefault(filepath string) ServiceConfig {
	config, err := LoadServiceConfig(filepath)
	if err != nil {
		// Return a minimal default configuration
		return ServiceConfig{
			DatabaseURL: "memory://",
			EventBus:    "gochannel",
			Port:        9091,
			LogLevel:    "info",
			Sweep: archive.SweeperConfig{
				Schedule: "@hourly",
			},
		}
	}

	return config
}

// ValidateServiceConfig validates the service configuration
func ValidateServiceConfig(config ServiceConfig) error {
	if config.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}

	switch config.EventBus {
	case "gochannel", "kafka":
		// Valid
	default:
		return fmt.Errorf("unknown event_bus '%s' (supported: gochannel, kafka)", config.EventBus)
	}

	if config.Port <= 0 {
		return fmt.Errorf("port must be positive, got %d", config.Port)
	}

	// Backend-specific validation
	switch config.Archive.Provider {
	case "redis":
		if err := validateRedisArchive(config.Archive); err != nil {
			return err
		}
	case "s3":
		if err := validateS3Archive(config.Archive); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("archive provider is required")
	default:
		return fmt.Errorf("unknown archive provider '%s' (supported: redis, s3)", config.Archive.Provider)
	}

	return validateSweep(config.Sweep)
}

func validateRedisArchive(config ArchiveConfig) error {
	if config.RedisURL == "" {
		return fmt.Errorf("archive: redis provider requires 'redis_url'")
	}

	return nil
}

func validateS3Archive(config ArchiveConfig) error {
	if config.S3.Endpoint == "" {
		return fmt.Errorf("archive: s3 provider requires 's3.endpoint'")
	}

	if config.S3.Bucket == "" {
		return fmt.Errorf("archive: s3 provider requires 's3.bucket'")
	}

	return nil
}

func validateSweep(config archive.SweeperConfig) error {
	if config.Schedule != "" {
		if _, err := cron.ParseStandard(config.Schedule); err != nil {
			return fmt.Errorf("sweep: invalid schedule '%s': %w", config.Schedule, err)
		}
	}

	if config.MaxAge < 0 {
		return fmt.Errorf("sweep: max_age must not be negative")
	}

	if config.MinSizeBytes < 0 {
		return fmt.Errorf("sweep: min_size_bytes must not be negative")
	}

	if config.BatchSize < 0 {
		return fmt.Errorf("sweep: batch_size must not be negative")
	}

	return nil
}
