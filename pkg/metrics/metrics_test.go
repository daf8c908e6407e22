package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{Enabled: true, Registry: reg}

	first, err := Register(cfg)
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second, err := Register(cfg)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if first.WithdrawalsServed != second.WithdrawalsServed {
		t.Error("expected the second registry to share the first one's collectors")
	}
}

func TestRegisterOnDefaultRegisterer(t *testing.T) {
	r, err := Register(DefaultConfig())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.RefillTicks != DefaultRegistry.RefillTicks {
		t.Error("expected DefaultRegistry's collectors to be reused")
	}
}

func TestRegisterConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dairy",
		Subsystem: "refill",
		Name:      "ticks_total",
		Help:      "A gauge squatting on the counter's name",
	}))

	if _, err := Register(Config{Registry: reg, Namespace: "dairy"}); err == nil {
		t.Fatal("expected a conflicting registration to fail")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected NewRegistryWithConfig to panic on conflict")
		}
	}()
	NewRegistryWithConfig(Config{Registry: reg, Namespace: "dairy"})
}
