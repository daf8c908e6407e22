// Package metrics provides Prometheus instrumentation for milkflow components.
//
// # Overview
//
// The metrics package instruments:
//   - Bucket operations (fills, withdrawals, refusals, current level)
//   - The refill task (ticks applied, ticks that failed)
//   - The HTTP surface (requests by route and status)
//
// # Quick Start
//
// Wrap a bucket with the metrics decorator and expose the registry:
//
//	reg := prometheus.NewRegistry()
//	b, _ := milk.New(5, 0)
//	b = milk.NewWithMetrics(b, "factory", metrics.NewRegistry(reg))
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
//   - milkflow_bucket_operations_total{operation,bucket}
//   - milkflow_bucket_operation_duration_seconds{operation,bucket}
//   - milkflow_bucket_withdrawals_served_total{bucket}
//   - milkflow_bucket_withdrawals_refused_total{bucket}
//   - milkflow_bucket_liters_withdrawn_total{bucket}
//   - milkflow_bucket_level_liters{bucket}
//   - milkflow_bucket_capacity_liters{bucket}
//   - milkflow_refill_ticks_total{bucket}
//   - milkflow_refill_failures_total{bucket}
//   - milkflow_http_requests_total{route,status}
//
// # Configuration
//
//	config := metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "cowshed",
//		Labels:    prometheus.Labels{"region": "north"},
//	}
//	reg := metrics.NewRegistryWithConfig(config)
//
// Components implementing Instrumentable can be switched on and off at runtime.
package metrics
