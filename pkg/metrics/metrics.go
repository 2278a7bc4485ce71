package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	LayersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_layers_total",
			Help: "Total number of layers in the store",
		},
	)

	LayerStoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_layer_store_bytes",
			Help: "Total compressed size of stored layer blobs in bytes",
		},
	)

	ImagesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_images_total",
			Help: "Total number of images",
		},
	)

	VolumesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hutch_volumes_total",
			Help: "Total number of volumes by kind",
		},
		[]string{"kind"},
	)

	NetworksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hutch_networks_total",
			Help: "Total number of networks",
		},
	)

	// Build metrics
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_builds_total",
			Help: "Total number of image builds by result",
		},
		[]string{"result"},
	)

	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_build_duration_seconds",
			Help:    "Image build duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BuildSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_build_steps_total",
			Help: "Total number of build steps by kind and cache outcome",
		},
		[]string{"kind", "cache"},
	)

	BaseFetchesDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_base_fetches_deduped_total",
			Help: "Base image fetches coalesced into an in-flight fetch",
		},
	)

	// Orchestrator metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hutch_instances_total",
			Help: "Total number of instances by state",
		},
		[]string{"state"},
	)

	UpDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_up_duration_seconds",
			Help:    "Time taken to bring a stack up in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstancesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_instances_failed_total",
			Help: "Total number of instances that entered the failed state",
		},
	)

	// DNS metrics
	DNSQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_dns_queries_total",
			Help: "Total number of DNS queries by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(LayersTotal)
	prometheus.MustRegister(LayerStoreBytes)
	prometheus.MustRegister(ImagesTotal)
	prometheus.MustRegister(VolumesTotal)
	prometheus.MustRegister(NetworksTotal)
	prometheus.MustRegister(BuildsTotal)
	prometheus.MustRegister(BuildDuration)
	prometheus.MustRegister(BuildSteps)
	prometheus.MustRegister(BaseFetchesDeduped)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(UpDuration)
	prometheus.MustRegister(InstancesFailed)
	prometheus.MustRegister(DNSQueriesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
