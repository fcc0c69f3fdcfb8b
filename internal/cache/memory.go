package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/quakewatch/quakewatch/internal/metrics"
)

// payloadSizeFactor converts payload length into the rough in-memory footprint
// charged against the budget. Exactness is not required, only consistency.
const payloadSizeFactor = 2

// evictionTargetRatio is the usage level eviction drains the cache down to
// once the budget has been exceeded.
const evictionTargetRatio = 0.8

// MemoryConfig holds the tunables for the in-memory provider.
type MemoryConfig struct {
	TTL           time.Duration
	MaxBytes      int64
	SweepInterval time.Duration
	Clock         clockwork.Clock
}

type entry struct {
	payload    []byte
	insertedAt time.Time
	size       int64
}

// MemoryProvider is a bounded in-memory byte cache. Entries expire after a
// fixed TTL and the oldest entries are evicted first when total usage exceeds
// the byte budget. The provider exclusively owns its map; a background sweep
// removes expired entries between requests.
type MemoryProvider struct {
	cfg    MemoryConfig
	logger *slog.Logger
	clock  clockwork.Clock

	mu      sync.Mutex
	store   map[string]entry
	used    int64
	done    chan struct{}
	sweeper sync.WaitGroup
}

// NewMemoryProvider constructs a provider and starts its sweep loop when a
// sweep interval is configured.
func NewMemoryProvider(cfg MemoryConfig, logger *slog.Logger) *MemoryProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 8 << 20
	}

	p := &MemoryProvider{
		cfg:    cfg,
		logger: logger,
		clock:  cfg.Clock,
		store:  make(map[string]entry),
		done:   make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		p.sweeper.Add(1)
		go p.sweepLoop()
	}
	return p
}

// Get returns the stored payload when the entry is still live. Expired entries
// are evicted on read and reported as a miss.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.store[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if p.clock.Since(e.insertedAt) >= p.cfg.TTL {
		p.removeLocked(key)
		p.publishUsageLocked()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.payload...), nil
}

// Set admits a payload under the byte budget. A payload larger than the whole
// budget is skipped without error; otherwise expired entries are purged first
// and the oldest entries evicted until usage falls back under the target.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte) error {
	size := int64(len(value)) * payloadSizeFactor
	if size > p.cfg.MaxBytes {
		p.logger.Debug("payload exceeds cache budget, not caching",
			slog.String("key", key),
			slog.Int64("size", size),
			slog.Int64("budget", p.cfg.MaxBytes))
		metrics.CacheSkip()
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.store[key]; ok {
		p.used -= existing.size
		delete(p.store, key)
	}
	if p.used+size > p.cfg.MaxBytes {
		p.purgeExpiredLocked()
		target := int64(float64(p.cfg.MaxBytes) * evictionTargetRatio)
		for p.used+size > target && len(p.store) > 0 {
			p.evictOldestLocked()
		}
	}

	p.store[key] = entry{
		payload:    append([]byte(nil), value...),
		insertedAt: p.clock.Now(),
		size:       size,
	}
	p.used += size
	p.publishUsageLocked()
	return nil
}

// Del removes a key from the cache.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(key)
	p.publishUsageLocked()
	return nil
}

// Entries returns the current number of cached entries.
func (p *MemoryProvider) Entries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.store)
}

// SizeBytes returns the approximate bytes currently charged to the cache.
func (p *MemoryProvider) SizeBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Close stops the sweep loop and drops all entries.
func (p *MemoryProvider) Close() error {
	close(p.done)
	p.sweeper.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = make(map[string]entry)
	p.used = 0
	p.publishUsageLocked()
	return nil
}

func (p *MemoryProvider) sweepLoop() {
	defer p.sweeper.Done()
	ticker := p.clock.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.Chan():
			p.mu.Lock()
			removed := p.purgeExpiredLocked()
			p.publishUsageLocked()
			p.mu.Unlock()
			if removed > 0 {
				p.logger.Debug("cache sweep removed expired entries", slog.Int("removed", removed))
			}
		}
	}
}

func (p *MemoryProvider) purgeExpiredLocked() int {
	removed := 0
	for key, e := range p.store {
		if p.clock.Since(e.insertedAt) >= p.cfg.TTL {
			p.removeLocked(key)
			removed++
		}
	}
	return removed
}

func (p *MemoryProvider) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, e := range p.store {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.insertedAt
			first = false
		}
	}
	if !first {
		p.removeLocked(oldestKey)
		metrics.CacheEviction()
	}
}

func (p *MemoryProvider) removeLocked(key string) {
	if e, ok := p.store[key]; ok {
		p.used -= e.size
		delete(p.store, key)
	}
}

func (p *MemoryProvider) publishUsageLocked() {
	metrics.SetCacheUsage(p.used, len(p.store))
}
