package ecoregions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// maxFuzzyDistance caps LookupOptions.FuzzyDistance; every fuzzy lookup is a
// full scan with an edit distance per candidate.
const maxFuzzyDistance = 3

// maxFuzzyInputLen bounds the edit distance computation. Longer keys or
// labels are only compared exactly or case-folded.
const maxFuzzyInputLen = 256

// LookupOptions configures how label keys are compared. The zero value is an
// exact, case-sensitive match. External IDs are always compared exactly.
type LookupOptions struct {
	IgnoreCase    bool // Compare labels with strings.EqualFold
	FuzzyDistance int  // Max edit distance for typo tolerance (0 = disabled)
}

// Resolver answers identifier lookups from an in-memory reference cache.
// The cache is loaded once; Rebuild replaces it. Safe for concurrent use.
type Resolver struct {
	mu  sync.RWMutex
	rc  *ReferenceCache
	cfg *Config
}

// NewResolver loads the reference cache (building it if the store is empty)
// and returns a resolver over it.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := newConfig(opts...)
	rc, err := buildOrLoad(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Resolver{rc: rc, cfg: cfg}, nil
}

// NewResolverFromCache returns a resolver over an already loaded cache.
// Rebuild uses the default configuration unless options are given.
func NewResolverFromCache(rc *ReferenceCache, opts ...Option) *Resolver {
	if rc == nil {
		rc = &ReferenceCache{}
	}
	return &Resolver{rc: rc, cfg: newConfig(opts...)}
}

// Singleton pattern for the default resolver.
var (
	defaultResolver     *Resolver
	defaultResolverOnce sync.Once
	defaultResolverErr  error
)

// GetDefaultResolver returns a shared resolver using the default data path and
// endpoint, initializing it on first call. Later calls return the same
// resolver (or the same error) and ignore ctx.
func GetDefaultResolver(ctx context.Context) (*Resolver, error) {
	defaultResolverOnce.Do(func() {
		defaultResolver, defaultResolverErr = NewResolver(ctx)
	})
	return defaultResolver, defaultResolverErr
}

// Cache returns the current reference cache snapshot.
func (r *Resolver) Cache() *ReferenceCache {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rc
}

// Rebuild queries the endpoint, stores the result and swaps it in. On error
// the previous cache stays in place.
func (r *Resolver) Rebuild(ctx context.Context) error {
	cfg := *r.cfg
	cfg.Rebuild = true
	rc, err := buildOrLoad(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("rebuilding reference cache: %w", err)
	}
	r.mu.Lock()
	r.rc = rc
	r.mu.Unlock()
	return nil
}

// LookupAdmin returns the Wikidata ID of an administrative unit.
//
// When externalID is non-empty the first record with that external code wins
// and category/label are ignored. Otherwise the first record whose category
// and label both match wins. The second result is false when nothing matches.
func (r *Resolver) LookupAdmin(category Category, label, externalID string, opts ...LookupOptions) (string, bool) {
	rc := r.Cache()
	if externalID != "" {
		for _, rec := range rc.Admin {
			if rec.ExternalID == externalID {
				return rec.WDID, true
			}
		}
		return "", false
	}

	for _, o := range lookupPasses(opts) {
		for _, rec := range rc.Admin {
			if rec.Category == category && labelMatch(label, rec.Label, o) {
				return rec.WDID, true
			}
		}
	}
	return "", false
}

// LookupEcoregion returns the Wikidata ID of the first ecoregion listing
// nameOrCode among its alternate labels. Codes should be passed in their
// string form (see FormatKey).
//
// An item without alternate labels has the single alt label "", so an empty
// key matches the first such item.
func (r *Resolver) LookupEcoregion(nameOrCode string, opts ...LookupOptions) (string, bool) {
	rc := r.Cache()
	for _, o := range lookupPasses(opts) {
		for _, rec := range rc.Ecoregions {
			for _, alt := range rec.AltLabels {
				if labelMatch(nameOrCode, alt, o) {
					return rec.WDID, true
				}
			}
		}
	}
	return "", false
}

// lookupPasses returns the comparison passes for a lookup. A relaxed lookup
// scans exactly first, so an exact match later in the list still beats a
// close match earlier in it.
func lookupPasses(opts []LookupOptions) []LookupOptions {
	var o LookupOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.FuzzyDistance > maxFuzzyDistance {
		o.FuzzyDistance = maxFuzzyDistance
	}
	if o.FuzzyDistance < 0 {
		o.FuzzyDistance = 0
	}
	if o == (LookupOptions{}) {
		return []LookupOptions{o}
	}
	return []LookupOptions{{}, o}
}

// labelMatch compares a query with a candidate label. With a fuzzy distance
// the comparison is case-insensitive when IgnoreCase is set; empty strings
// only ever match empty strings.
func labelMatch(query, candidate string, o LookupOptions) bool {
	if query == candidate {
		return true
	}
	if o.IgnoreCase && strings.EqualFold(query, candidate) {
		return true
	}
	if o.FuzzyDistance == 0 || query == "" || candidate == "" {
		return false
	}
	if utf8.RuneCountInString(query) > maxFuzzyInputLen || utf8.RuneCountInString(candidate) > maxFuzzyInputLen {
		return false
	}
	if o.IgnoreCase {
		query = strings.ToLower(query)
		candidate = strings.ToLower(candidate)
	}
	return levenshtein.ComputeDistance(query, candidate) <= o.FuzzyDistance
}
