// Package service holds the business logic of the check-in module.
// CollaboratorCache is an LRU cache of collaborator lookups with a TTL,
// a thin wrapper over hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/model"
)

// Cache metrics.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_collaborator_cache_hits_total",
		Help: "Total number of collaborator cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_collaborator_cache_misses_total",
		Help: "Total number of collaborator cache misses.",
	})
)

// CollaboratorCache caches collaborators by normalized identifier.
// Each instance keeps its own in-memory cache.
type CollaboratorCache struct {
	cache *expirable.LRU[string, model.Collaborator]
}

// NewCollaboratorCache creates a cache holding at most maxSize entries,
// each evicted ttl after insertion.
func NewCollaboratorCache(maxSize int, ttl time.Duration) *CollaboratorCache {
	return &CollaboratorCache{cache: expirable.NewLRU[string, model.Collaborator](maxSize, nil, ttl)}
}

// Get returns the cached collaborator and records a hit or miss.
func (c *CollaboratorCache) Get(id string) (model.Collaborator, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return model.Collaborator{}, false
}

// Set adds or replaces an entry.
func (c *CollaboratorCache) Set(id string, collab model.Collaborator) {
	c.cache.Add(id, collab)
}

// Purge drops every entry. Called after the collaborators snapshot is
// reloaded so that edited names and keys become visible.
func (c *CollaboratorCache) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached entries.
func (c *CollaboratorCache) Len() int {
	return c.cache.Len()
}
