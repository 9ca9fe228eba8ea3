package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recipes"

// Registry is the process-wide Prometheus registry served on /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes version information as labels (value is always 1).
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Ingestion pipeline metrics
var (
	// ImportsTotal counts single-URL imports by outcome and the stage that decided it.
	ImportsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Total number of recipe URL imports",
		},
		[]string{"outcome", "stage"}, // outcome: created|already_imported|failed
	)

	ImportDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall-clock duration of one URL import",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 180},
		},
		[]string{"outcome"},
	)

	FetchAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Fetch provider calls by result",
		},
		[]string{"result"}, // result: success|transient|permanent
	)

	ExtractionAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Completion calls made by the extractor by result",
		},
		[]string{"result"}, // result: success|parse|validation|completion
	)

	QAClassifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qa_classifications_total",
			Help:      "Candidate recipes by QA status",
		},
		[]string{"status"},
	)
)

// Batch and maintenance metrics
var (
	BatchJobsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_total",
			Help:      "Batch ingestion jobs by terminal status",
		},
		[]string{"status"},
	)

	BatchJobDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_job_duration_seconds",
			Help:      "Duration of batch ingestion jobs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	BatchURLsInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_urls_in_flight",
			Help:      "URLs currently being imported by batch workers",
		},
	)

	ReconcileOwnersCorrected = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_owners_corrected_total",
			Help:      "Owners whose cached recipe_count was corrected",
		},
	)

	ReconcileDrift = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_drift_owners",
			Help:      "Owners found drifted in the most recent reconciliation run",
		},
	)

	VisibilityFixups = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visibility_fixups_total",
			Help:      "Recipes hidden by the visibility fixup job",
		},
	)
)

// Init registers runtime collectors and records version information.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
