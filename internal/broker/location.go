package broker

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/metrics"
)

const (
	// DefaultRegion is used when object storage reports no location
	// constraint for a bucket.
	DefaultRegion = "us-east-1"
	// DefaultCacheSize bounds the number of buckets remembered.
	DefaultCacheSize = 16
)

// RegionCache is the subset of an LRU cache the resolver needs. Implementations
// must be safe for concurrent use.
type RegionCache interface {
	Get(bucket string) (string, bool)
	Add(bucket, region string) bool
}

// NewRegionCache returns a concurrency-safe LRU cache holding at most size
// buckets.
func NewRegionCache(size int) (RegionCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// LocationResolver maps bucket names to regions. Buckets do not change region,
// so a resolved mapping is kept until it is evicted.
//
// Concurrent misses for the same bucket may both reach the locator; the call
// is idempotent.
type LocationResolver struct {
	locator       BucketLocator
	cache         RegionCache
	defaultRegion string
	metrics       *metrics.Recorder
}

// ResolverOption configures a LocationResolver.
type ResolverOption func(*LocationResolver)

// WithDefaultRegion overrides the region used for an empty location.
func WithDefaultRegion(region string) ResolverOption {
	return func(r *LocationResolver) {
		if region != "" {
			r.defaultRegion = region
		}
	}
}

// WithResolverMetrics records cache hits and misses.
func WithResolverMetrics(m *metrics.Recorder) ResolverOption {
	return func(r *LocationResolver) {
		r.metrics = m
	}
}

// NewLocationResolver creates a resolver over locator using cache.
func NewLocationResolver(locator BucketLocator, cache RegionCache, opts ...ResolverOption) *LocationResolver {
	r := &LocationResolver{
		locator:       locator,
		cache:         cache,
		defaultRegion: DefaultRegion,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the region of bucket.
func (r *LocationResolver) Resolve(ctx context.Context, bucket string) (string, error) {
	if region, ok := r.cache.Get(bucket); ok {
		r.metrics.RecordRegionLookup(true)
		return region, nil
	}
	r.metrics.RecordRegionLookup(false)

	region, err := r.locator.BucketRegion(ctx, bucket)
	if err != nil {
		return "", mberrors.Propagate("broker.resolve_region", err, mberrors.UpstreamFailure)
	}
	if region == "" {
		region = r.defaultRegion
	}
	r.cache.Add(bucket, region)
	return region, nil
}
