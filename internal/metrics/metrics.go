package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reduction and analysis metrics, exported at /metrics.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winnow_requests_total",
			Help: "Total number of analyze requests",
		},
		[]string{"outcome"}, // outcome: ok/no_match/too_large/bad_request/error
	)

	RecordsIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winnow_records_in_total",
			Help: "Total number of raw records accepted into the pipeline",
		},
	)

	RecordsSurviving = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winnow_records_surviving_total",
			Help: "Total number of records surviving reduction",
		},
	)

	CostReduction = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "winnow_cost_reduction_ratio",
			Help:    "Per-request cost reduction (1 - surviving/total)",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "winnow_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"stage"}, // stage: normalize/window/evaluate/rank/summarize
	)

	WindowsBuilt = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "winnow_windows_built",
			Help:    "Windows built per request before ranking",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
		},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winnow_llm_requests_total",
			Help: "Total number of analysis model requests",
		},
		[]string{"model", "status"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winnow_llm_tokens_total",
			Help: "Total number of analysis model tokens consumed",
		},
		[]string{"model", "type"}, // type: input/output
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winnow_llm_cost_usd_total",
			Help: "Total analysis model cost in USD",
		},
		[]string{"model"},
	)

	ConversationsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "winnow_conversations_live",
			Help: "Conversations currently held in the follow-up cache",
		},
	)
)
