package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	registry.BucketOperations.WithLabelValues("withdraw", "factory").Add(3)
	registry.WithdrawalsServed.WithLabelValues("factory").Add(2)
	registry.WithdrawalsRefused.WithLabelValues("factory").Inc()
	registry.BucketLevel.WithLabelValues("factory").Set(1.5)

	fmt.Println(testutil.ToFloat64(registry.WithdrawalsServed.WithLabelValues("factory")))
	fmt.Println(testutil.ToFloat64(registry.BucketLevel.WithLabelValues("factory")))

	// Output:
	// 2
	// 1.5
}

// Example_customNamespace demonstrates overriding the namespace.
func Example_customNamespace() {
	promRegistry := prometheus.NewRegistry()
	registry := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  promRegistry,
		Namespace: "cowshed",
		Labels:    prometheus.Labels{"region": "north"},
	})

	registry.RefillTicks.WithLabelValues("factory").Inc()

	families, _ := promRegistry.Gather()
	for _, mf := range families {
		fmt.Println(mf.GetName())
	}

	// Output:
	// cowshed_refill_ticks_total
}

// Example_configuration demonstrates different metrics configurations.
func Example_configuration() {
	defaultConfig := DefaultConfig()
	fmt.Printf("Default enabled: %v\n", defaultConfig.Enabled)
	fmt.Printf("Default namespace: %s\n", defaultConfig.Namespace)

	customConfig := Config{
		Enabled:   false,
		Namespace: "myapp",
	}
	fmt.Printf("Custom enabled: %v\n", customConfig.Enabled)
	fmt.Printf("Custom namespace: %s\n", customConfig.Namespace)

	// Output:
	// Default enabled: true
	// Default namespace: milkflow
	// Custom enabled: false
	// Custom namespace: myapp
}
