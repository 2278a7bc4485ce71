/*
Package metrics provides Prometheus metrics collection and exposition for Hutch.

The metrics package defines and registers all Hutch metrics using the
Prometheus client library, providing observability into layer storage, build
cache behavior, instance lifecycle, and DNS resolution. Metrics are exposed
via HTTP endpoint for scraping by Prometheus servers.

# Metric Catalog

Store metrics:
  - hutch_layers_total: Layers in the store (gauge)
  - hutch_layer_store_bytes: Compressed blob bytes (gauge)
  - hutch_images_total: Images (gauge)
  - hutch_volumes_total{kind}: Volumes by named/anonymous (gauge)
  - hutch_networks_total: Networks (gauge)

Build metrics:
  - hutch_builds_total{result}: Builds by success/failure (counter)
  - hutch_build_duration_seconds: Build wall time (histogram)
  - hutch_build_steps_total{kind,cache}: Steps by kind and hit/miss (counter)
  - hutch_base_fetches_deduped_total: Coalesced base fetches (counter)

Orchestrator metrics:
  - hutch_instances_total{state}: Instances by state (gauge)
  - hutch_up_duration_seconds: Stack up wall time (histogram)
  - hutch_instances_failed_total: Instances entering failed (counter)

DNS metrics:
  - hutch_dns_queries_total{outcome}: Queries by hit/miss/forwarded (counter)

# Usage

Counters and histograms are package-level and updated at the call site:

	metrics.BuildSteps.WithLabelValues(string(step.Kind), "hit").Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BuildDuration)

Gauges are refreshed by the Collector, which polls the orchestrator and
layer store every 15 seconds:

	collector := metrics.NewCollector(orch, store)
	collector.Start()
	defer collector.Stop()

Exposition:

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())

# Health Checks

The health checker tracks component status for the /health and /ready
endpoints. Readiness requires the store, layers, and dns components to
be registered and healthy.

	metrics.RegisterComponent("store", true, "")
	metrics.UpdateComponent("dns", false, "bind failed")

# See Also

  - Prometheus naming conventions: https://prometheus.io/docs/practices/naming/
*/
package metrics
