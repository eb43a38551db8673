// Package metrics counts what an archive run did, for scraping or a node-exporter textfile.
//
// All methods are safe on a nil *Collector so components can take metrics optionally.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "subarchive"

// Collector owns a private registry with the run's counters
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimitWait   prometheus.Histogram
	retries         *prometheus.CounterVec
	posts           prometheus.Counter
	comments        prometheus.Counter
	malformed       prometheus.Counter
	duplicates      prometheus.Counter
	placeholders    *prometheus.CounterVec
	windows         *prometheus.CounterVec
	snapshotBytes   prometheus.Counter
	lastSuccess     prometheus.Gauge
}

// New creates a collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream API calls by endpoint and HTTP status (0 for network errors).",
		}, []string{"endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate limiter slot.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried upstream operations by kind (page, comments).",
		}, []string{"kind"}),
		posts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Posts written to snapshots.",
		}),
		comments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_total",
			Help:      "Flattened comments written to snapshots.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_items_total",
			Help:      "Upstream items skipped because of an unexpected shape.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_items_total",
			Help:      "Posts or comments seen again and skipped.",
		}),
		placeholders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_placeholders_total",
			Help:      "Comment tree placeholders by outcome (resolved, unresolved).",
		}, []string{"outcome"}),
		windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Day windows finished by outcome (written, truncated).",
		}, []string{"outcome"}),
		snapshotBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes_total",
			Help:      "Bytes published to snapshot files.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that reached Done.",
		}),
	}

	c.registry.MustRegister(
		c.requests, c.requestDuration, c.rateLimitWait, c.retries,
		c.posts, c.comments, c.malformed, c.duplicates, c.placeholders,
		c.windows, c.snapshotBytes, c.lastSuccess,
	)
	return c
}

// Registry exposes the underlying registry, e.g. for promhttp or tests
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records one upstream call
func (c *Collector) ObserveRequest(endpoint string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRateLimitWait records time blocked on the limiter
func (c *Collector) ObserveRateLimitWait(d time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitWait.Observe(d.Seconds())
}

// IncRetry counts a retried operation
func (c *Collector) IncRetry(kind string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(kind).Inc()
}

// AddMalformed counts skipped items
func (c *Collector) AddMalformed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.malformed.Add(float64(n))
}

// AddDuplicates counts de-duplicated items
func (c *Collector) AddDuplicates(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.duplicates.Add(float64(n))
}

// AddPlaceholders counts placeholder outcomes
func (c *Collector) AddPlaceholders(resolved, unresolved int) {
	if c == nil {
		return
	}
	c.placeholders.WithLabelValues("resolved").Add(float64(resolved))
	c.placeholders.WithLabelValues("unresolved").Add(float64(unresolved))
}

// WindowWritten records a published snapshot
func (c *Collector) WindowWritten(posts, comments int, bytes int64, truncated bool) {
	if c == nil {
		return
	}
	c.posts.Add(float64(posts))
	c.comments.Add(float64(comments))
	c.snapshotBytes.Add(float64(bytes))
	c.windows.WithLabelValues("written").Inc()
	if truncated {
		c.windows.WithLabelValues("truncated").Inc()
	}
}

// RunSucceeded stamps the completion time
func (c *Collector) RunSucceeded(at time.Time) {
	if c == nil {
		return
	}
	c.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
