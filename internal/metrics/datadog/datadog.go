// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// The backend buffers metrics in memory, flushes them periodically on a
// ticker, and flushes one final time on Close(). Import runs can be long
// (a full barangay year is thousands of files); periodic submission gives a
// real time series instead of one spike at process exit.
//
// Concurrency model:
//   - pipeline goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/AndrewHamiliDevelopment/json-maps-docker/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "maps_import".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls submission cadence. Defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams: a deterministic clock/ticker and a fake
	// submitter so unit tests never touch the network.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend
// needs; *datadogV2.MetricsApi satisfies it, tests use a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	apiSub metricsSubmitter
	ctx    context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	fileCounts    map[string]float64 // "status|admin_level" -> count
	featureCounts map[string]float64 // admin_level -> count
	stageDur      map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "maps_import".
//   - Environment tag selection uses ENV then DD_ENV, else env:unknown.
//
// Datadog client construction itself is not expected to fail; network
// errors surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "maps_import"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		apiSub:     submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		fileCounts:    make(map[string]float64),
		featureCounts: make(map[string]float64),
		stageDur:      make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Call once at process shutdown.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricFilesTotal:
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.fileCounts[status+"|"+labels["admin_level"]] += delta

	case metrics.MetricFeaturesTotal:
		b.featureCounts[labels["admin_level"]] += delta

	default:
		// Unknown metrics are ignored; the facade is shared with other
		// backends that may know them.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if name == metrics.MetricStageDuration {
		stage := labels["stage"]
		if stage == "" {
			stage = "unknown"
		}
		b.stageDur[stage] = append(b.stageDur[stage], value)
	}
}

// snapshot is the buffered state consumed by one Flush.
type snapshot struct {
	fileCounts    map[string]float64
	featureCounts map[string]float64
	stageDur      map[string][]float64
}

// snapshotAndReset detaches the current buffers under the lock so payload
// building and submission happen out-of-lock.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		fileCounts:    b.fileCounts,
		featureCounts: b.featureCounts,
		stageDur:      b.stageDur,
	}

	b.fileCounts = make(map[string]float64)
	b.featureCounts = make(map[string]float64)
	b.stageDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.fileCounts) == 0 && len(s.featureCounts) == 0 && len(s.stageDur) == 0
}

// Flush submits buffered metrics and resets local buffers.
//
// Buffers reset even when submission fails, so the import never blocks on a
// metrics outage.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.apiSub.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, no network, no clocks), which is what makes
// the naming/tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	count := func(metric string, value float64, tags []string) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}
	gauge := func(metric string, value float64, tags []string) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}

	series := make([]datadogV2.MetricSeries, 0, len(s.fileCounts)+len(s.featureCounts)+8)

	for k, v := range s.fileCounts {
		if v == 0 {
			continue
		}
		status, level, _ := strings.Cut(k, "|")
		tags := withTags(b.baseTags, "status:"+status, "admin_level:"+level)
		series = append(series, count("maps.files.total", v, tags))
	}

	for level, v := range s.featureCounts {
		if v == 0 {
			continue
		}
		series = append(series, count("maps.features.total", v, withTags(b.baseTags, "admin_level:"+level)))
	}

	for stage, samples := range s.stageDur {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		tags := withTags(b.baseTags, "stage:"+stage)
		series = append(series,
			gauge("maps.stage.duration_seconds.p50", percentileNearestRank(cp, 0.50), tags),
			gauge("maps.stage.duration_seconds.p95", percentileNearestRank(cp, 0.95), tags),
			gauge("maps.stage.duration_seconds.max", cp[len(cp)-1], tags),
			gauge("maps.stage.duration_seconds.samples", float64(len(cp)), tags),
		)
	}

	return series
}

// ParseTagsCSV splits a comma-separated tag list, trimming whitespace and
// dropping empty segments. Returns nil for an empty input.
func ParseTagsCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withTags(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// percentileNearestRank returns the nearest-rank percentile of sorted
// samples. q is in (0, 1].
func percentileNearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(q*float64(len(sorted)) + 0.5)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
