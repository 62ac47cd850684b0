// Package datasource selects the upstream the scheduler reads from.
package datasource

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/datasource/fixture"
	"jobsync/internal/infrastructure/datasource/octoparse"
)

const (
	KindOctoparse = "octoparse"
	KindMock      = "mock"
)

type Options struct {
	// Kind is the DATA_SOURCE selector. Anything but "octoparse" means fixtures.
	Kind       string
	FixtureDir string
	Octoparse  octoparse.Config
	// Redis, when set, backs the Octoparse token cache.
	Redis *redis.Client
}

// New is the only place that looks at the selector.
func New(opts Options, logger *slog.Logger) (repository.DataSource, error) {
	if strings.EqualFold(strings.TrimSpace(opts.Kind), KindOctoparse) {
		if opts.Octoparse.Username == "" || opts.Octoparse.Password == "" {
			return nil, fmt.Errorf("octoparse data source requires username and password")
		}
		var cache octoparse.TokenCache = octoparse.NewMemoryTokenCache()
		if opts.Redis != nil {
			cache = octoparse.NewRedisTokenCache(opts.Redis, "")
		}
		logger.Info("using Octoparse data source", "redis_token_cache", opts.Redis != nil)
		return octoparse.NewClient(opts.Octoparse, cache, logger.With("component", "octoparse")), nil
	}

	logger.Info("using fixture data source", "dir", opts.FixtureDir)
	src, err := fixture.NewSource(opts.FixtureDir, logger.With("component", "fixture"))
	if err != nil {
		return nil, fmt.Errorf("init fixture source: %w", err)
	}
	return src, nil
}
