// Package cmd wires shared infrastructure (persistence, event bus) for the
// command-line entry points.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/scoutvc/diligence/pkg/persistence"
	"github.com/scoutvc/diligence/pkg/persistence/file"
	"github.com/scoutvc/diligence/pkg/persistence/postgres"
	"github.com/scoutvc/diligence/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "redis", "postgres", "postgresql"}

// NewPersistence builds a persistence backend from a database URL. The scheme
// selects the provider; anything unrecognized falls back to file storage.
func NewPersistence(ctx context.Context, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "redis":
		p, err := redis.NewPersistence(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("create redis persistence: %w", err)
		}

		return p, nil
	case "postgres", "postgresql":
		p, err := postgres.NewPersistence(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
