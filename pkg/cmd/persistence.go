// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helaix/flowstate/pkg/persistence"
	"github.com/helaix/flowstate/pkg/persistence/memory"
	"github.com/helaix/flowstate/pkg/persistence/postgresql"
	"github.com/helaix/flowstate/pkg/persistence/sqlite"
)

var supportedPersistenceProviders = []string{"memory", "sqlite", "postgres", "postgresql"}

// NewPersistence creates a persistence backend from a database URL. The
// scheme selects the backend: memory:// keeps everything in process,
// sqlite://<path> opens an embedded database, postgres://... connects to a
// server. SQL backends run their migrations before returning.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewPersistence(), nil
	case "sqlite":
		return sqlite.NewPersistence(ctx, logger, databaseURL)
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database URL %q, supported providers: %s",
			databaseURL, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
