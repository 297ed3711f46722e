package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Plans             *prometheus.CounterVec // status label: ok|no_bus|no_schedule|no_trip|error
	CandidatesSkipped *prometheus.CounterVec // reason label: missing_route|decode_error|invalid_line
	PlanDuration      prometheus.Histogram

	CatalogBuses           prometheus.Gauge
	CatalogRejected        prometheus.Counter
	CatalogRefreshes       *prometheus.CounterVec // result label: ok|error
	CatalogRefreshDuration prometheus.Histogram

	ActiveSessions  prometheus.Gauge
	SessionsEvicted prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	RefreshInterval prometheus.Gauge // seconds
	SessionTTL      prometheus.Gauge // seconds
}

func NewCollector(refreshInterval, sessionTTL time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackly_plans_total",
			Help: "Trip plans computed, by outcome.",
		}, []string{"status"}),
		CandidatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackly_candidates_skipped_total",
			Help: "Candidate buses skipped during nearest-route selection.",
		}, []string{"reason"}),
		PlanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackly_plan_duration_seconds",
			Help:    "Duration of select and resolve for one query.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		CatalogBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackly_catalog_buses",
			Help: "Buses in the current catalog snapshot.",
		}),
		CatalogRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackly_catalog_rejected_total",
			Help: "Bus records dropped by validation.",
		}),
		CatalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackly_catalog_refreshes_total",
			Help: "Catalog refreshes, by result.",
		}, []string{"result"}),
		CatalogRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackly_catalog_refresh_duration_seconds",
			Help:    "Duration of fetching bus data from the source.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackly_active_sessions",
			Help: "Passenger sessions currently held in memory.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackly_sessions_evicted_total",
			Help: "Sessions evicted after being idle.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackly_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackly_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackly_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackly_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackly_catalog_refresh_interval_seconds",
			Help: "Automatic catalog refresh interval in seconds, 0 when disabled.",
		}),
		SessionTTL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackly_session_ttl_seconds",
			Help: "Idle time after which a session is evicted.",
		}),
	}

	reg.MustRegister(
		c.Plans, c.CandidatesSkipped, c.PlanDuration,
		c.CatalogBuses, c.CatalogRejected, c.CatalogRefreshes, c.CatalogRefreshDuration,
		c.ActiveSessions, c.SessionsEvicted,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.RefreshInterval, c.SessionTTL,
	)

	c.RefreshInterval.Set(refreshInterval.Seconds())
	c.SessionTTL.Set(sessionTTL.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// The methods below let a *Collector satisfy the small metrics interfaces
// declared by the match, catalog, session and publisher packages.

func (c *Collector) CandidateSkipped(reason string) {
	c.CandidatesSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) RefreshObserve(d time.Duration, err error) {
	c.CatalogRefreshDuration.Observe(d.Seconds())
	if err != nil {
		c.CatalogRefreshes.WithLabelValues("error").Inc()
		return
	}
	c.CatalogRefreshes.WithLabelValues("ok").Inc()
}

func (c *Collector) BusesSet(n int)    { c.CatalogBuses.Set(float64(n)) }
func (c *Collector) RejectedAdd(n int) { c.CatalogRejected.Add(float64(n)) }

func (c *Collector) PlanObserve(status string, d time.Duration) {
	c.Plans.WithLabelValues(status).Inc()
	c.PlanDuration.Observe(d.Seconds())
}

func (c *Collector) SessionsSet(n int) { c.ActiveSessions.Set(float64(n)) }
func (c *Collector) SessionsEvictedAdd(n int) {
	c.SessionsEvicted.Add(float64(n))
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
