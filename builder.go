package ecoregions

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BuildOrLoad returns the reference cache from the store, or rebuilds it from
// the SPARQL endpoint when the store is empty or WithRebuild(true) is given.
//
// Only existence is checked: a stored cache is never considered stale. A
// corrupt cache is reported as an error rather than rebuilt.
func BuildOrLoad(ctx context.Context, opts ...Option) (*ReferenceCache, error) {
	return buildOrLoad(ctx, newConfig(opts...))
}

func buildOrLoad(ctx context.Context, cfg *Config) (*ReferenceCache, error) {
	if !cfg.Rebuild {
		rc, err := cfg.Store.Load(ctx)
		if err == nil {
			cfg.Logger.Debug("refcache_loaded", "admin", len(rc.Admin), "ecoregions", len(rc.Ecoregions))
			return rc, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, fmt.Errorf("loading reference cache: %w", err)
		}
		cfg.Logger.Info("refcache_miss")
	}

	rc, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Store.Save(ctx, rc); err != nil {
		return nil, fmt.Errorf("storing reference cache: %w", err)
	}
	return rc, nil
}

// build runs the five reference queries and maps their rows.
func build(ctx context.Context, cfg *Config) (*ReferenceCache, error) {
	start := time.Now()
	cfg.Logger.Info("refcache_rebuild_begin")

	rc := &ReferenceCache{}
	for _, aq := range adminQueries {
		res, err := cfg.Querier.Query(ctx, aq.query)
		if err != nil {
			return nil, fmt.Errorf("querying %s reference list: %w", aq.category, err)
		}
		for _, b := range res.Results.Bindings {
			rec, err := adminRecordFromBinding(aq.category, b, aq.withCode)
			if err != nil {
				return nil, err
			}
			rc.Admin = append(rc.Admin, rec)
		}
		cfg.Logger.Debug("refcache_query_done", "category", aq.category, "rows", len(res.Results.Bindings))
	}

	res, err := cfg.Querier.Query(ctx, queryEcoregions)
	if err != nil {
		return nil, fmt.Errorf("querying %s reference list: %w", CategoryEcoregions, err)
	}
	for _, b := range res.Results.Bindings {
		rec, err := ecoregionRecordFromBinding(b)
		if err != nil {
			return nil, err
		}
		rc.Ecoregions = append(rc.Ecoregions, rec)
	}

	cfg.Logger.Info("refcache_rebuild_done",
		"admin", len(rc.Admin),
		"ecoregions", len(rc.Ecoregions),
		"elapsed", time.Since(start))
	return rc, nil
}
