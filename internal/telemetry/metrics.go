/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snapsweep"

var (
	// HTTP API
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "api", Name: "requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
	APIActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "api", Name: "active_connections",
		Help: "In-flight HTTP requests.",
	})
	APIWebSocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "api", Name: "websocket_connections",
		Help: "Open progress stream connections.",
	})

	// Database
	DatabaseQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "db", Name: "query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation", "table"})
	DatabaseErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "db", Name: "errors_total",
		Help: "Database errors by operation.",
	}, []string{"operation", "type"})
	DatabaseConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "db", Name: "connections_active",
		Help: "Open database connections.",
	})

	// Scan pipeline
	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scan", Name: "runs_total",
		Help: "Finished scans by outcome.",
	}, []string{"outcome"})
	ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "scan", Name: "duration_seconds",
		Help:    "Wall time of finished scans.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"outcome"})
	ItemsAnalyzedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scan", Name: "items_analyzed_total",
		Help: "Items analyzed successfully.",
	})
	ItemsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scan", Name: "items_failed_total",
		Help: "Items whose fetch or analysis failed.",
	})
	ItemsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scan", Name: "items_skipped_total",
		Help: "Items skipped because memory admission was refused.",
	})
	LimiterInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "scan", Name: "limiter_in_flight",
		Help: "Analyses currently holding a concurrency slot.",
	})
	MemoryRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scan", Name: "memory_rejections_total",
		Help: "Admissions refused after memory retries were exhausted.",
	})
	AnalysisCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scan", Name: "analysis_cache_total",
		Help: "Analysis cache lookups by result.",
	}, []string{"result"})

	// Trash and quota
	TrashOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "trash", Name: "operations_total",
		Help: "Trash entries affected by operation.",
	}, []string{"operation"})
	TrashEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "trash", Name: "entries",
		Help: "Entries currently in trash.",
	})
	QuotaRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "quota", Name: "remaining",
		Help: "Remaining free-tier deletions, -1 when unlimited.",
	})
)

// Collectors returns every snapsweep collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		APIRequestsTotal, APIRequestDuration, APIActiveConnections, APIWebSocketConnections,
		DatabaseQueryDuration, DatabaseErrorsTotal, DatabaseConnectionsActive,
		ScansTotal, ScanDuration, ItemsAnalyzedTotal, ItemsFailedTotal, ItemsSkippedTotal,
		LimiterInFlight, MemoryRejectionsTotal, AnalysisCacheTotal,
		TrashOperationsTotal, TrashEntries, QuotaRemaining,
	}
}

func init() {
	prometheus.MustRegister(Collectors()...)
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
