package cmd

import (
	"fmt"
	"log/slog"

	"github.com/helaix/flowstate/pkg/archive"
)

// ArchiverConfig selects and configures the cold storage backend snapshots
// are offloaded to.
type ArchiverConfig struct {
	Provider string // "redis" or "s3"
	RedisURL string
	S3       archive.S3Config
}

// NewArchiver creates an archive backend based on the provider. Constructors
// do not connect; call HealthCheck on the result to verify the backend is
// reachable before starting the sweeper.
func NewArchiver(cfg ArchiverConfig, logger *slog.Logger) (archive.Archiver, error) {
	switch cfg.Provider {
	case "redis":
		return archive.NewRedisArchiver(cfg.RedisURL, logger)
	case "s3":
		return archive.NewS3Archiver(cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unsupported archive provider: %s", cfg.Provider)
	}
}
