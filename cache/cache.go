package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// TTLUnknown is returned by TTLRemaining when the remaining lifetime cannot
// be determined (key absent, no expiry, or storage error).
const TTLUnknown = time.Duration(-1)

// Config holds the cache engine connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DefaultTTL   time.Duration
	TagIndexTTL  time.Duration
	OpTimeout    time.Duration
	PoolSize     int
	MinIdleConns int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "cs",
		DefaultTTL:   5 * time.Minute,
		TagIndexTTL:  24 * time.Hour,
		OpTimeout:    3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Options scopes a single cache operation.
type Options struct {
	// TenantID isolates the entry; empty means the shared keyspace.
	TenantID string
	// TTL overrides the store default for Set. Zero means default.
	TTL time.Duration
	// Tags attach the entry to tag indices for group invalidation.
	Tags []string
}

// entry is the stored envelope for a cache value.
type entry struct {
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Tags       []string        `json:"tags,omitempty"`
}

// Store is a tenant-scoped, TTL-bounded key/value cache over Redis with
// tag-based invalidation.
//
// Every method is fail-soft: storage errors degrade to "no cache" behavior
// (miss on reads, silent no-op on writes) and are only visible through the
// log and the errors counter. Caching must never turn into a user-facing
// error.
type Store struct {
	client      *redis.Client
	prefix      string
	defaultTTL  time.Duration
	tagIndexTTL time.Duration
	opTimeout   time.Duration
	metrics     *Metrics
	group       singleflight.Group
}

// New connects to the cache engine and returns a Store.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to cache engine")
	}

	slog.Info("cache engine connected", "addr", config.Addr)
	return NewWithClient(client, config), nil
}

// NewWithClient wraps an existing client. The caller owns connectivity.
func NewWithClient(client *redis.Client, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	defaultTTL := config.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	tagIndexTTL := config.TagIndexTTL
	if tagIndexTTL <= 0 {
		tagIndexTTL = 24 * time.Hour
	}
	opTimeout := config.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &Store{
		client:      client,
		prefix:      config.KeyPrefix,
		defaultTTL:  defaultTTL,
		tagIndexTTL: tagIndexTTL,
		opTimeout:   opTimeout,
		metrics:     NewMetrics(defaultLatencyWindow),
	}
}

// Metrics returns the store's metrics collector.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Set serializes value and stores it under the tenant-scoped physical key,
// overwriting any prior entry unconditionally (last-writer-wins, no CAS).
// When tags are given the physical key is added to each tag index and the
// index TTL is refreshed.
func (s *Store) Set(ctx context.Context, key string, value any, opts Options) {
	start := time.Now()

	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("failed to marshal cache value", "key", key, "error", err)
		s.metrics.RecordError()
		return
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	data, err := json.Marshal(entry{
		Value:      raw,
		CreatedAt:  now,
		TTLSeconds: int64(ttl / time.Second),
		ExpiresAt:  now.Add(ttl),
		Tags:       opts.Tags,
	})
	if err != nil {
		slog.Warn("failed to marshal cache entry", "key", key, "error", err)
		s.metrics.RecordError()
		return
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	physicalKey := EncodeKey(key, opts.TenantID, s.prefix)
	if err := s.client.Set(ctx, physicalKey, data, ttl).Err(); err != nil {
		slog.Warn("failed to set cache value", "key", physicalKey, "error", err)
		s.metrics.RecordError()
		return
	}

	for _, tag := range opts.Tags {
		tagKey := EncodeTagKey(tag, opts.TenantID, s.prefix)
		if err := s.client.SAdd(ctx, tagKey, physicalKey).Err(); err != nil {
			slog.Warn("failed to index cache tag", "tag", tag, "key", physicalKey, "error", err)
			s.metrics.RecordError()
			continue
		}
		if err := s.client.Expire(ctx, tagKey, s.tagIndexTTL).Err(); err != nil {
			slog.Warn("failed to refresh tag index ttl", "tag", tag, "error", err)
			s.metrics.RecordError()
		}
	}

	s.metrics.RecordSet(time.Since(start))
}

// Get returns the stored value if present and unexpired. An expired entry is
// removed eagerly and reported as a miss. Storage errors are also misses;
// they differ from ordinary misses only in the log and the errors counter.
func (s *Store) Get(ctx context.Context, key string, opts Options) (json.RawMessage, bool) {
	start := time.Now()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	physicalKey := EncodeKey(key, opts.TenantID, s.prefix)
	data, err := s.client.Get(ctx, physicalKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("failed to get cache value", "key", physicalKey, "error", err)
			s.metrics.RecordError()
		}
		s.metrics.RecordMiss()
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.Warn("failed to unmarshal cache entry", "key", physicalKey, "error", err)
		s.metrics.RecordError()
		s.metrics.RecordMiss()
		return nil, false
	}

	// The engine expires entries on its own, but the envelope is still
	// checked so that entries surviving a restore or clock skew behave as
	// misses and get removed.
	if time.Now().After(e.ExpiresAt) {
		if err := s.client.Del(ctx, physicalKey).Err(); err != nil {
			slog.Warn("failed to remove expired cache entry", "key", physicalKey, "error", err)
			s.metrics.RecordError()
		}
		s.metrics.RecordMiss()
		return nil, false
	}

	s.metrics.RecordHit(time.Since(start))
	return e.Value, true
}

// Delete removes the entry. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string, opts Options) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	physicalKey := EncodeKey(key, opts.TenantID, s.prefix)
	if err := s.client.Del(ctx, physicalKey).Err(); err != nil {
		slog.Warn("failed to delete cache value", "key", physicalKey, "error", err)
		s.metrics.RecordError()
		return
	}
	s.metrics.RecordDelete()
}

// Exists reports whether the key is present. False on storage error.
func (s *Store) Exists(ctx context.Context, key string, opts Options) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, EncodeKey(key, opts.TenantID, s.prefix)).Result()
	if err != nil {
		slog.Warn("failed to check cache key existence", "key", key, "error", err)
		s.metrics.RecordError()
		return false
	}
	return n > 0
}

// TTLRemaining returns the remaining lifetime of the entry, or TTLUnknown
// when the key is absent, has no expiry, or the lookup fails.
func (s *Store) TTLRemaining(ctx context.Context, key string, opts Options) time.Duration {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.client.TTL(ctx, EncodeKey(key, opts.TenantID, s.prefix)).Result()
	if err != nil {
		slog.Warn("failed to read cache ttl", "key", key, "error", err)
		s.metrics.RecordError()
		return TTLUnknown
	}
	if d < 0 {
		return TTLUnknown
	}
	return d
}

// SetTTL resets the entry's expiry. Returns false when the key is absent or
// the update fails.
func (s *Store) SetTTL(ctx context.Context, key string, ttl time.Duration, opts Options) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.client.Expire(ctx, EncodeKey(key, opts.TenantID, s.prefix), ttl).Result()
	if err != nil {
		slog.Warn("failed to set cache ttl", "key", key, "error", err)
		s.metrics.RecordError()
		return false
	}
	return ok
}

// Producer computes a value on a cache miss.
type Producer func(ctx context.Context) (any, error)

// GetOrSet returns the cached value or invokes producer once per caller and
// caches the result. There is no cross-caller locking: concurrent GetOrSet
// calls for the same key during a miss will each invoke producer
// independently (a cache stampede). Callers that need collapsing use
// GetOrSetOnce.
func (s *Store) GetOrSet(ctx context.Context, key string, producer Producer, opts Options) (json.RawMessage, error) {
	if value, ok := s.Get(ctx, key, opts); ok {
		return value, nil
	}

	value, err := producer(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal produced value")
	}

	s.Set(ctx, key, json.RawMessage(raw), opts)
	return raw, nil
}

// GetOrSetOnce behaves like GetOrSet but collapses concurrent misses for the
// same physical key into a single producer invocation.
func (s *Store) GetOrSetOnce(ctx context.Context, key string, producer Producer, opts Options) (json.RawMessage, error) {
	if value, ok := s.Get(ctx, key, opts); ok {
		return value, nil
	}

	physicalKey := EncodeKey(key, opts.TenantID, s.prefix)
	v, err, _ := s.group.Do(physicalKey, func() (any, error) {
		return s.GetOrSet(ctx, key, producer, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// DeletePattern removes every physical key matching the glob within the
// tenant scope of opts and returns how many were deleted.
//
// This is a full keyspace scan, unsuitable for very large keyspaces, and is
// not atomic with respect to concurrent writers: keys created after the scan
// began are not guaranteed to be included.
func (s *Store) DeletePattern(ctx context.Context, glob string, opts Options) int {
	match := EncodeKey(glob, opts.TenantID, s.prefix)
	count, err := s.deleteScan(ctx, match)
	if err != nil {
		slog.Warn("failed to delete cache keys by pattern", "pattern", match, "error", err)
		s.metrics.RecordError()
	}
	return count
}

// InvalidateByTags deletes every key indexed under the given tags for the
// tenant, then drops the indices themselves. The index is a hint, not
// ground truth: already-absent members are tolerated, and re-invoking on an
// invalidated tag is a no-op.
func (s *Store) InvalidateByTags(ctx context.Context, tenantID string, tags []string) int {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	total := 0
	for _, tag := range tags {
		tagKey := EncodeTagKey(tag, tenantID, s.prefix)
		members, err := s.client.SMembers(ctx, tagKey).Result()
		if err != nil {
			slog.Warn("failed to read tag index", "tag", tag, "error", err)
			s.metrics.RecordError()
			continue
		}
		if len(members) > 0 {
			n, err := s.client.Del(ctx, members...).Result()
			if err != nil {
				slog.Warn("failed to delete tagged cache keys", "tag", tag, "error", err)
				s.metrics.RecordError()
			} else {
				total += int(n)
			}
		}
		if err := s.client.Del(ctx, tagKey).Err(); err != nil {
			slog.Warn("failed to delete tag index", "tag", tag, "error", err)
			s.metrics.RecordError()
		}
	}
	return total
}

// Clear deletes every key in the store's prefix regardless of tenant. This
// is an administrative operation, not part of ordinary business flow.
func (s *Store) Clear(ctx context.Context) int {
	match := "*"
	if s.prefix != "" {
		match = s.prefix + keyDelimiter + "*"
	}
	count, err := s.deleteScan(ctx, match)
	if err != nil {
		slog.Warn("failed to clear cache", "error", err)
		s.metrics.RecordError()
	}
	s.metrics.RecordClear()
	return count
}

func (s *Store) deleteScan(ctx context.Context, match string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	deleted := 0
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		deleted += int(n)
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, flush()
}

// KeyInfo annotates a physical key for the admin listing surface.
type KeyInfo struct {
	Key        string `json:"key"`
	TTLSeconds int64  `json:"ttl_seconds"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Keys returns a page of physical keys matching the glob within the tenant
// scope of opts, annotated with TTL remaining and serialized size. The page
// is cut from an unordered snapshot; no stable ordering is guaranteed across
// calls while the keyspace mutates.
func (s *Store) Keys(ctx context.Context, glob string, limit, offset int, opts Options) []KeyInfo {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if glob == "" {
		glob = "*"
	}
	match := EncodeKey(glob, opts.TenantID, s.prefix)

	var all []string
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		all = append(all, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("failed to list cache keys", "pattern", match, "error", err)
		s.metrics.RecordError()
		return nil
	}

	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	infos := make([]KeyInfo, 0, end-offset)
	for _, key := range all[offset:end] {
		info := KeyInfo{Key: key, TTLSeconds: -1}
		if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			info.TTLSeconds = int64(ttl / time.Second)
		}
		if size, err := s.client.StrLen(ctx, key).Result(); err == nil {
			info.SizeBytes = size
		}
		infos = append(infos, info)
	}
	return infos
}

// Health describes the cache engine's reachability for the admin surface.
type Health struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ApproxMemory int64  `json:"approx_memory_bytes"`
	KeyCount     int64  `json:"key_count"`
}

// Health never returns an error; an unreachable engine reports
// connected=false instead.
func (s *Store) Health(ctx context.Context) Health {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		slog.Warn("cache engine unreachable", "error", err)
		return Health{Status: "degraded", Connected: false}
	}

	h := Health{Status: "ok", Connected: true}
	if n, err := s.client.DBSize(ctx).Result(); err == nil {
		h.KeyCount = n
	}
	// Memory usage is best-effort; some engines and test doubles omit it.
	if info, err := s.client.Info(ctx, "memory").Result(); err == nil {
		h.ApproxMemory = parseUsedMemory(info)
	}
	return h
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
