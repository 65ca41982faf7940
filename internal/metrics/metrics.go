// Package metrics aggregates pipeline counters and derives the binary health
// verdict from configured thresholds.
package metrics

import (
	"sync"
	"time"
)

// Thresholds define when the pipeline reports itself unhealthy.
type Thresholds struct {
	// MaxAvgProcessing is the ceiling on mean end-to-end processing time.
	MaxAvgProcessing time.Duration `yaml:"max_avg_processing"`
	// MaxQueueDepth is the ceiling on queued jobs.
	MaxQueueDepth int `yaml:"max_queue_depth"`
	// MinCacheHitRatio is the floor on the cache hit ratio, applied only
	// after MinCacheSamples lookups so a cold cache is not unhealthy.
	MinCacheHitRatio float64 `yaml:"min_cache_hit_ratio"`
	MinCacheSamples  int64   `yaml:"min_cache_samples"`
}

// DefaultThresholds returns the production health limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxAvgProcessing: 10 * time.Second,
		MaxQueueDepth:    100,
		MinCacheHitRatio: 0.2,
		MinCacheSamples:  50,
	}
}

// Registry accumulates pipeline counters. All methods are safe for
// concurrent use; the critical sections are a handful of integer updates.
type Registry struct {
	mu sync.Mutex

	submissions      int64
	cacheHits        int64
	cacheMisses      int64
	completedValid   int64
	completedInvalid int64
	failed           int64
	rejected         int64

	activeJobs int64
	queueDepth int64

	processingTotal time.Duration
	processedJobs   int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Submission() {
	r.mu.Lock()
	r.submissions++
	r.mu.Unlock()
}

func (r *Registry) CacheHit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}

func (r *Registry) CacheMiss() {
	r.mu.Lock()
	r.cacheMisses++
	r.mu.Unlock()
}

// Completed records a terminal completed job and its total processing time.
func (r *Registry) Completed(valid bool, elapsed time.Duration) {
	r.mu.Lock()
	if valid {
		r.completedValid++
	} else {
		r.completedInvalid++
	}
	r.processingTotal += elapsed
	r.processedJobs++
	r.mu.Unlock()
}

func (r *Registry) Failed() {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func (r *Registry) Rejected() {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()
}

// SetQueueDepth and the active-job pair are gauges owned by the scheduler.
func (r *Registry) SetQueueDepth(depth int) {
	r.mu.Lock()
	r.queueDepth = int64(depth)
	r.mu.Unlock()
}

func (r *Registry) JobStarted() {
	r.mu.Lock()
	r.activeJobs++
	r.mu.Unlock()
}

func (r *Registry) JobFinished() {
	r.mu.Lock()
	if r.activeJobs > 0 {
		r.activeJobs--
	}
	r.mu.Unlock()
}

// Snapshot is a point-in-time view of every counter.
type Snapshot struct {
	Submissions      int64   `json:"submissions"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	CacheHitRatio    float64 `json:"cache_hit_ratio"`
	CompletedValid   int64   `json:"completed_valid"`
	CompletedInvalid int64   `json:"completed_invalid"`
	Failed           int64   `json:"failed"`
	Rejected         int64   `json:"rejected"`
	ActiveJobs       int64   `json:"active_jobs"`
	QueueDepth       int64   `json:"queue_depth"`
	AvgProcessingMs  int64   `json:"avg_processing_ms"`
}

// Snapshot returns the current counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Submissions:      r.submissions,
		CacheHits:        r.cacheHits,
		CacheMisses:      r.cacheMisses,
		CompletedValid:   r.completedValid,
		CompletedInvalid: r.completedInvalid,
		Failed:           r.failed,
		Rejected:         r.rejected,
		ActiveJobs:       r.activeJobs,
		QueueDepth:       r.queueDepth,
	}
	if lookups := r.cacheHits + r.cacheMisses; lookups > 0 {
		snap.CacheHitRatio = float64(r.cacheHits) / float64(lookups)
	}
	if r.processedJobs > 0 {
		snap.AvgProcessingMs = (r.processingTotal / time.Duration(r.processedJobs)).Milliseconds()
	}
	return snap
}

// Health is the binary verdict with the reasons it failed, if any.
type Health struct {
	Healthy bool     `json:"healthy"`
	Reasons []string `json:"reasons,omitempty"`
}

// Evaluate derives the health verdict from a snapshot.
func Evaluate(snap Snapshot, th Thresholds) Health {
	var reasons []string

	if th.MaxAvgProcessing > 0 && snap.AvgProcessingMs > th.MaxAvgProcessing.Milliseconds() {
		reasons = append(reasons, "average processing time over ceiling")
	}
	if th.MaxQueueDepth > 0 && snap.QueueDepth > int64(th.MaxQueueDepth) {
		reasons = append(reasons, "queue depth over ceiling")
	}
	if lookups := snap.CacheHits + snap.CacheMisses; th.MinCacheHitRatio > 0 && lookups >= th.MinCacheSamples && th.MinCacheSamples > 0 {
		if snap.CacheHitRatio < th.MinCacheHitRatio {
			reasons = append(reasons, "cache hit ratio under floor")
		}
	}

	return Health{Healthy: len(reasons) == 0, Reasons: reasons}
}
