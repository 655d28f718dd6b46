package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	AnalysisResultOK       = "ok"
	AnalysisResultFallback = "fallback"
)

var (
	chatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetchat_chat_messages_total",
			Help: "Total number of chat messages appended to sessions, by sender.",
		},
		[]string{"sender"},
	)
	chatSessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetchat_chat_sessions_created_total",
			Help: "Total number of chat sessions created.",
		},
	)
	analysisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetchat_analysis_requests_total",
			Help: "Total number of model analysis calls by result and output type.",
		},
		[]string{"result", "output_type"},
	)
	analysisLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sheetchat_analysis_latency_ms",
			Help:    "Model analysis latency in milliseconds, including fallbacks.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 60000},
		},
	)
	suggestionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetchat_suggestion_requests_total",
			Help: "Total number of suggestion requests by result.",
		},
		[]string{"result"},
	)
	uploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetchat_uploads_total",
			Help: "Total number of accepted workbook uploads.",
		},
	)
	uploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetchat_upload_bytes_total",
			Help: "Total bytes of accepted workbook uploads.",
		},
	)
	archiveFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetchat_archive_failures_total",
			Help: "Total number of uploads that could not be archived to object storage.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetchat_exports_total",
			Help: "Total number of table and session exports by kind and format.",
		},
		[]string{"kind", "format"},
	)
)

func init() {
	prometheus.MustRegister(
		chatMessagesTotal,
		chatSessionsCreatedTotal,
		analysisRequestsTotal,
		analysisLatencyMs,
		suggestionRequestsTotal,
		uploadsTotal,
		uploadBytesTotal,
		archiveFailuresTotal,
		exportsTotal,
	)
}

func ObserveSessionCreated() {
	chatSessionsCreatedTotal.Inc()
}

func ObserveMessagePair() {
	chatMessagesTotal.WithLabelValues("user").Inc()
	chatMessagesTotal.WithLabelValues("assistant").Inc()
}

func ObserveAnalysis(result, outputType string, elapsed time.Duration) {
	analysisRequestsTotal.WithLabelValues(result, outputType).Inc()
	analysisLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveSuggestions(result string) {
	suggestionRequestsTotal.WithLabelValues(result).Inc()
}

func ObserveUpload(size int64) {
	uploadsTotal.Inc()
	if size > 0 {
		uploadBytesTotal.Add(float64(size))
	}
}

func IncrementArchiveFailure() {
	archiveFailuresTotal.Inc()
}

func ObserveExport(kind, format string) {
	exportsTotal.WithLabelValues(kind, format).Inc()
}
