package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every fieldpipe collector; the web server exposes it on /metrics.
var Registry = prometheus.NewRegistry()

var (
	apiCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldpipe_api_calls_total",
		Help: "Remote API calls by entity, tenant, endpoint and outcome",
	}, []string{"entity", "tenant", "endpoint", "failed"})

	recordsExtracted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldpipe_records_extracted_total",
		Help: "Records fetched from the remote API",
	}, []string{"entity", "tenant"})

	rowsLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldpipe_raw_rows_loaded_total",
		Help: "Rows appended to raw tables",
	}, []string{"entity"})

	mergeRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldpipe_staging_merge_rows_total",
		Help: "Staging rows inserted or updated by merges",
	}, []string{"entity", "action"})

	unitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldpipe_extraction_duration_seconds",
		Help:    "Duration of one (entity, tenant) extraction",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"entity", "success"})
)

func init() {
	Registry.MustRegister(apiCalls, recordsExtracted, rowsLoaded, mergeRows, unitDuration)
}

// ObserveAPICall counts one remote call.
func ObserveAPICall(entity, tenant, endpoint string, failed bool) {
	apiCalls.WithLabelValues(entity, tenant, endpoint, strconv.FormatBool(failed)).Inc()
}

// ObserveRecordsExtracted counts records fetched for one tenant.
func ObserveRecordsExtracted(entity, tenant string, n int) {
	recordsExtracted.WithLabelValues(entity, tenant).Add(float64(n))
}

// ObserveRowsLoaded counts rows appended to a raw table.
func ObserveRowsLoaded(entity string, n int) {
	rowsLoaded.WithLabelValues(entity).Add(float64(n))
}

// ObserveMerge counts rows inserted and updated by one staging merge.
func ObserveMerge(entity string, inserted, updated int64) {
	mergeRows.WithLabelValues(entity, "inserted").Add(float64(inserted))
	mergeRows.WithLabelValues(entity, "updated").Add(float64(updated))
}

// ObserveUnitDuration records how long one tenant extraction took.
func ObserveUnitDuration(entity string, success bool, seconds float64) {
	unitDuration.WithLabelValues(entity, strconv.FormatBool(success)).Observe(seconds)
}
