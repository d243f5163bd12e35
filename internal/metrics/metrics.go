package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smashers_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Provider Metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_provider_requests_total",
			Help: "Total number of calls to the generation provider",
		},
		[]string{"operation", "status"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smashers_provider_request_duration_seconds",
			Help:    "Generation provider call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27 minutes
		},
		[]string{"operation"},
	)

	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_provider_retries_total",
			Help: "Total number of rate-limit backoff retries",
		},
		[]string{"path"},
	)

	// Upload Metrics
	VideoUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_video_uploads_total",
			Help: "Total number of videos uploaded to the provider file store",
		},
		[]string{"status"},
	)

	VideoUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smashers_video_upload_size_bytes",
			Help:    "Size of uploaded videos in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 12), // 1MB to 2GB
		},
	)

	FileActivationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smashers_file_activation_duration_seconds",
			Help:    "Time spent polling until an uploaded file became active",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// Analysis Metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_analyses_total",
			Help: "Total number of analysis requests",
		},
		[]string{"source", "credential", "status"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smashers_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"source"},
	)

	EstimatedTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smashers_estimated_tokens_total",
			Help: "Total estimated input tokens sent for analysis",
		},
	)

	EstimatedCostPerAnalysis = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smashers_estimated_cost_per_analysis_dollars",
			Help:    "Estimated provider cost per analysis in dollars",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// Trim Metrics
	TrimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_trims_total",
			Help: "Total number of clip trims",
		},
		[]string{"status"},
	)

	TrimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smashers_trim_duration_seconds",
			Help:    "Clip trim duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// Job Metrics
	JobsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_jobs_created_total",
			Help: "Total number of analysis jobs created",
		},
		[]string{"source"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_jobs_completed_total",
			Help: "Total number of finished analysis jobs",
		},
		[]string{"status"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smashers_jobs_in_progress",
			Help: "Number of jobs currently being processed",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smashers_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"source"},
	)

	// Proxy Metrics
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_proxy_requests_total",
			Help: "Total number of proxy requests by response status",
		},
		[]string{"status"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smashers_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)

	StorageBytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_storage_bytes_transferred_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smashers_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smashers_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordProviderCall records one provider call
func RecordProviderCall(operation, status string, duration float64) {
	ProviderRequestsTotal.WithLabelValues(operation, status).Inc()
	ProviderRequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordProviderRetry records a rate-limit backoff on the given path (direct or proxy)
func RecordProviderRetry(path string) {
	ProviderRetriesTotal.WithLabelValues(path).Inc()
}

// RecordUpload records a provider upload
func RecordUpload(status string, sizeBytes int64) {
	VideoUploadsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		VideoUploadSizeBytes.Observe(float64(sizeBytes))
	}
}

// RecordFileActivation records how long an uploaded file took to become usable
func RecordFileActivation(duration float64) {
	FileActivationDuration.Observe(duration)
}

// RecordAnalysis records a finished analysis request
func RecordAnalysis(source, credential, status string, duration float64) {
	AnalysesTotal.WithLabelValues(source, credential, status).Inc()
	AnalysisDuration.WithLabelValues(source).Observe(duration)
}

// RecordEstimate records the token estimate for an analysis
func RecordEstimate(tokens int64, cost float64) {
	EstimatedTokensTotal.Add(float64(tokens))
	EstimatedCostPerAnalysis.Observe(cost)
}

// RecordTrim records a clip trim
func RecordTrim(status string, duration float64) {
	TrimsTotal.WithLabelValues(status).Inc()
	TrimDuration.Observe(duration)
}

// RecordJobCreated records a job creation
func RecordJobCreated(source string) {
	JobsCreatedTotal.WithLabelValues(source).Inc()
}

// RecordJobCompleted records a job completion
func RecordJobCompleted(status, source string, duration float64) {
	JobsCompletedTotal.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(source).Observe(duration)
}

// UpdateJobsInProgress sets the number of jobs being processed
func UpdateJobsInProgress(inProgress int) {
	JobsInProgress.Set(float64(inProgress))
}

// RecordProxyRequest records a proxy response status
func RecordProxyRequest(status string) {
	ProxyRequestsTotal.WithLabelValues(status).Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string, duration float64, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
	StorageBytesTransferred.WithLabelValues(operation).Add(float64(bytesTransferred))
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// Status maps an error to the status label used across metrics
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
