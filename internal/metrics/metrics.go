package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler metrics
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_scheduler_ticks_total",
			Help: "Scheduled ticks by task and outcome",
		},
		[]string{"task", "status"}, // status: ok, failed, panic
	)

	TickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fuelwatch_scheduler_tick_duration_seconds",
			Help:    "Time taken by one scheduled tick",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task"},
	)

	// Rule evaluation metrics
	RulesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_rules_skipped_total",
			Help: "Rules skipped during evaluation",
		},
		[]string{"reason"}, // reason: orphaned, no_conditions
	)

	ConditionEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_condition_evaluations_total",
			Help: "Condition evaluations by outcome",
		},
		[]string{"outcome"}, // outcome: triggered, clear, failed
	)

	AlertsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_alerts_dispatched_total",
			Help: "Alert notifications handed to the dispatcher",
		},
		[]string{"reason"}, // reason: transition, cooldown
	)

	// Delivery metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_push_deliveries_total",
			Help: "Push delivery attempts by channel and status",
		},
		[]string{"channel", "status"}, // status: delivered, failed
	)

	StaleDevicesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_push_stale_devices_total",
			Help: "Devices disabled after the push service rejected them",
		},
		[]string{"channel"},
	)

	// Ingestion metrics
	IngestionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_ingestion_runs_total",
			Help: "Ingestion operations by outcome",
		},
		[]string{"operation", "status"},
	)

	IngestionRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_ingestion_records_total",
			Help: "Records written or skipped by ingestion",
		},
		[]string{"kind", "status"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fuelwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuelwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
