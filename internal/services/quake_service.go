package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quakewatch/quakewatch/internal/cache"
	"github.com/quakewatch/quakewatch/internal/engine"
	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/models"
	"github.com/quakewatch/quakewatch/internal/repo"
	"github.com/quakewatch/quakewatch/internal/utils"
)

// CatalogClient is the outbound dependency resolving a filter into a raw
// GeoJSON payload.
type CatalogClient interface {
	Query(ctx context.Context, filter models.Filter) ([]byte, error)
}

// Config holds the fetch orchestration tunables.
type Config struct {
	// RequestTimeout bounds one upstream request end to end.
	RequestTimeout time.Duration
	// BatchThreshold is the record count above which an interim snapshot is
	// published before the full set.
	BatchThreshold int
	// PreviewSize is the number of records in the interim snapshot.
	PreviewSize int
	// ChunkSize is the number of records materialized per segment between
	// cancellation checks.
	ChunkSize int
	// ProgressInterval is the cadence of synthetic progress snapshots.
	ProgressInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.BatchThreshold <= 0 {
		c.BatchThreshold = 500
	}
	if c.PreviewSize <= 0 {
		c.PreviewSize = 100
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 150 * time.Millisecond
	}
	return c
}

// QuakeService resolves filters into earthquake records and summaries, caching
// raw catalog payloads and publishing state snapshots to subscribers. At most
// one asynchronous fetch run is live per instance; starting a new one cancels
// the previous run, whose late results are discarded.
type QuakeService struct {
	logger      *slog.Logger
	client      CatalogClient
	cache       cache.Provider
	cfg         Config
	broadcaster *Broadcaster
	latencies   *utils.LatencyTracker

	mu         sync.Mutex
	cancelRun  context.CancelFunc
	currentRun string
}

// NewQuakeService constructs the fetch service facade.
func NewQuakeService(logger *slog.Logger, client CatalogClient, provider cache.Provider, cfg Config) *QuakeService {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &QuakeService{
		logger:      logger,
		client:      client,
		cache:       provider,
		cfg:         cfg.withDefaults(),
		broadcaster: NewBroadcaster(),
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// Subscribe registers a snapshot subscriber; the current snapshot is replayed
// immediately.
func (s *QuakeService) Subscribe() chan Snapshot {
	return s.broadcaster.Subscribe()
}

// Unsubscribe removes a snapshot subscriber.
func (s *QuakeService) Unsubscribe(ch chan Snapshot) {
	s.broadcaster.Unsubscribe(ch)
}

// Snapshot returns the current observable state.
func (s *QuakeService) Snapshot() Snapshot {
	return s.broadcaster.Last()
}

// Fetch starts an asynchronous fetch for the filter, cancelling any run still
// in flight, and returns the new run's ID. The filter is expected to be
// validated upstream.
func (s *QuakeService) Fetch(filter models.Filter) string {
	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.cancelRun = cancel
	s.currentRun = runID
	s.mu.Unlock()

	go s.run(ctx, runID, filter)
	return runID
}

// Cancel stops the in-flight run, clears the loading state, and leaves the
// last published records in place.
func (s *QuakeService) Cancel() {
	// The clear and the cleared-snapshot publish happen under one lock hold so
	// a concurrent Fetch cannot slot its loading snapshot in between.
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel := s.cancelRun
	runID := s.currentRun
	if cancel == nil {
		return
	}
	s.cancelRun = nil
	s.currentRun = ""
	cancel()

	snapshot := s.broadcaster.Last()
	snapshot.RunID = runID
	snapshot.Loading = false
	snapshot.Partial = false
	snapshot.Progress = 0
	snapshot.Err = ""
	snapshot.ErrKind = ""
	s.broadcaster.Publish(snapshot)
	s.logger.Debug("fetch cancelled", slog.String("run_id", runID))
}

// FetchSync resolves a filter through the same cache-then-catalog path as the
// asynchronous run, but synchronously and without touching the snapshot
// stream. Used by the request/response API endpoints.
func (s *QuakeService) FetchSync(ctx context.Context, filter models.Filter) ([]models.EarthquakeRecord, models.Summary, error) {
	start := time.Now()
	records, outcome, err := s.resolve(ctx, filter)
	duration := time.Since(start)
	metrics.ObserveFetch(duration, outcome)
	if err != nil {
		return nil, models.Summary{}, err
	}
	s.observeLatency(duration)
	return records, engine.Summarize(records, filter), nil
}

func (s *QuakeService) run(ctx context.Context, runID string, filter models.Filter) {
	start := time.Now()
	s.publish(runID, func(snapshot *Snapshot) {
		snapshot.Loading = true
		snapshot.Partial = false
		snapshot.Progress = 0
		snapshot.Err = ""
		snapshot.ErrKind = ""
	})

	key := filter.CacheKey()
	if payload, err := s.cache.Get(ctx, key); err == nil {
		if records, perr := repo.ParseFeatureCollection(payload); perr == nil {
			s.logger.Debug("cache hit", slog.String("run_id", runID), slog.Int("records", len(records)))
			s.complete(ctx, runID, filter, records, start, metrics.OutcomeCacheHit)
			return
		}
		// The stored payload no longer parses; drop it and refetch.
		_ = s.cache.Del(ctx, key)
	}

	progressDone := make(chan struct{})
	go s.emitProgress(ctx, runID, start, progressDone)

	reqCtx, cancelReq := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	payload, err := s.client.Query(reqCtx, filter)
	cancelReq()
	close(progressDone)

	if ctx.Err() != nil {
		// Superseded or cancelled: discard whatever arrived.
		metrics.ObserveFetch(time.Since(start), metrics.OutcomeCancelled)
		return
	}
	if err != nil {
		s.fail(runID, start, err)
		return
	}

	_ = s.cache.Set(ctx, key, payload)

	records, perr := repo.ParseFeatureCollection(payload)
	if perr != nil {
		s.fail(runID, start, perr)
		return
	}
	s.complete(ctx, runID, filter, records, start, metrics.OutcomeSuccess)
}

// complete publishes the resolved record set: an interim preview first for
// large sets, then the full set materialized chunk by chunk with cancellation
// checks at segment boundaries. Both phases converge on the same final
// summary.
func (s *QuakeService) complete(ctx context.Context, runID string, filter models.Filter, records []models.EarthquakeRecord, start time.Time, outcome string) {
	if len(records) > s.cfg.BatchThreshold {
		preview := append([]models.EarthquakeRecord(nil), records[:s.cfg.PreviewSize]...)
		s.publish(runID, func(snapshot *Snapshot) {
			snapshot.Loading = true
			snapshot.Partial = true
			snapshot.Progress = 96
			snapshot.Records = preview
			snapshot.Summary = engine.Summarize(preview, filter)
		})
	}

	final := make([]models.EarthquakeRecord, 0, len(records))
	for offset := 0; offset < len(records); offset += s.cfg.ChunkSize {
		if ctx.Err() != nil {
			metrics.ObserveFetch(time.Since(start), metrics.OutcomeCancelled)
			return
		}
		end := offset + s.cfg.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		final = append(final, records[offset:end]...)
	}
	summary := engine.Summarize(final, filter)

	duration := time.Since(start)
	metrics.ObserveFetch(duration, outcome)
	s.observeLatency(duration)

	s.publish(runID, func(snapshot *Snapshot) {
		snapshot.Loading = false
		snapshot.Partial = false
		snapshot.Progress = 100
		snapshot.Records = final
		snapshot.Summary = summary
		snapshot.Err = ""
		snapshot.ErrKind = ""
	})
	s.logger.Info("fetch complete",
		slog.String("run_id", runID),
		slog.String("outcome", outcome),
		slog.Int("records", len(final)),
		slog.Duration("duration", duration))
}

func (s *QuakeService) fail(runID string, start time.Time, err error) {
	outcome := metrics.OutcomeError
	kind := utils.KindUpstream
	message := "earthquake data request failed"
	if utils.IsTimeout(err) {
		outcome = metrics.OutcomeTimeout
		kind = utils.KindTimeout
		message = "earthquake data request timed out"
	}
	metrics.ObserveFetch(time.Since(start), outcome)
	s.logger.Error("fetch failed", slog.String("run_id", runID), slog.Any("error", err))

	s.publish(runID, func(snapshot *Snapshot) {
		snapshot.Loading = false
		snapshot.Partial = false
		snapshot.Progress = 0
		snapshot.Err = message
		snapshot.ErrKind = kind
	})
}

func (s *QuakeService) resolve(ctx context.Context, filter models.Filter) ([]models.EarthquakeRecord, string, error) {
	key := filter.CacheKey()
	if payload, err := s.cache.Get(ctx, key); err == nil {
		if records, perr := repo.ParseFeatureCollection(payload); perr == nil {
			return records, metrics.OutcomeCacheHit, nil
		}
		_ = s.cache.Del(ctx, key)
	}

	reqCtx, cancelReq := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancelReq()
	payload, err := s.client.Query(reqCtx, filter)
	if err != nil {
		if utils.IsTimeout(err) {
			return nil, metrics.OutcomeTimeout, err
		}
		return nil, metrics.OutcomeError, err
	}

	_ = s.cache.Set(ctx, key, payload)
	records, perr := repo.ParseFeatureCollection(payload)
	if perr != nil {
		return nil, metrics.OutcomeError, perr
	}
	return records, metrics.OutcomeSuccess, nil
}

// emitProgress publishes the synthetic progress curve while the upstream
// request is outstanding. The curve is cosmetic: monotonically increasing and
// capped below 100 so only a real completion can finish the bar.
func (s *QuakeService) emitProgress(ctx context.Context, runID string, start time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.publish(runID, func(snapshot *Snapshot) {
				snapshot.Loading = true
				snapshot.Progress = progressValue(time.Since(start))
			})
		}
	}
}

// progressValue maps elapsed wait time onto the piecewise-linear synthetic
// progress curve, approaching but never reaching 94%.
func progressValue(elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	switch {
	case seconds <= 0:
		return 0
	case seconds < 1:
		return 40 * seconds
	case seconds < 5:
		return 40 + 35*(seconds-1)/4
	case seconds < 20:
		return 75 + 15*(seconds-5)/15
	case seconds < 60:
		return 90 + 4*(seconds-20)/40
	default:
		return 94
	}
}

// publish applies a mutation to the last snapshot and broadcasts the result,
// unless the run has been superseded in the meantime.
func (s *QuakeService) publish(runID string, mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRun != runID {
		return
	}

	snapshot := s.broadcaster.Last()
	snapshot.RunID = runID
	mutate(&snapshot)
	s.broadcaster.Publish(snapshot)
}

func (s *QuakeService) observeLatency(duration time.Duration) {
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("fetch latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
}
