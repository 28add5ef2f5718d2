package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KernelMetrics tracks boots, operations and legacy links of a session.
type KernelMetrics struct {
	mu sync.RWMutex

	counts KernelMetricsSnapshot

	// Prometheus collectors
	bootTotal       *prometheus.CounterVec
	bootDuration    *prometheus.HistogramVec
	operationsTotal *prometheus.CounterVec
	legacyLinks     *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// KernelMetricsSnapshot provides a point-in-time view of the session.
type KernelMetricsSnapshot struct {
	Boots            uint64    `json:"boots"`
	FailedBoots      uint64    `json:"failed_boots"`
	Operations       uint64    `json:"operations"`
	FailedOperations uint64    `json:"failed_operations"`
	LegacyLinks      uint64    `json:"legacy_links"`
	CollectedAt      time.Time `json:"collected_at"`
}

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
)

// NewKernelMetrics creates the collectors under namespace. An empty
// namespace falls back to kerneltest.
func NewKernelMetrics(registerer prometheus.Registerer, namespace string) *KernelMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "kerneltest"
	}

	return &KernelMetrics{
		registerer: registerer,
		bootTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boot_total",
			Help:      "Total number of kernel boots by controller and outcome",
		}, []string{"controller", "outcome"}),
		bootDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "boot_duration_seconds",
			Help:      "Time from controller installation until the boot log was replayed",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"controller"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of operations executed through kernel services",
		}, []string{"controller", "outcome"}),
		legacyLinks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "legacy_links",
			Help:      "Number of legacy kernels linked to main kernels, by model version",
		}, []string{"model_version"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *KernelMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.bootTotal,
		m.bootDuration,
		m.operationsTotal,
		m.legacyLinks,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordBoot records the outcome of one kernel boot.
func (m *KernelMetrics) RecordBoot(controllerID string, successful bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.Boots++
	outcome := outcomeSuccess
	if !successful {
		m.counts.FailedBoots++
		outcome = outcomeFailed
	}
	m.bootTotal.WithLabelValues(controllerID, outcome).Inc()
	m.bootDuration.WithLabelValues(controllerID).Observe(duration.Seconds())
}

// RecordOperation records one executed operation.
func (m *KernelMetrics) RecordOperation(controllerID string, successful bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.Operations++
	outcome := outcomeSuccess
	if !successful {
		m.counts.FailedOperations++
		outcome = outcomeFailed
	}
	m.operationsTotal.WithLabelValues(controllerID, outcome).Inc()
}

// RecordLegacyLink records a legacy kernel linked for version.
func (m *KernelMetrics) RecordLegacyLink(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.LegacyLinks++
	m.legacyLinks.WithLabelValues(version).Inc()
}

// Hooks returns boot hooks feeding RecordBoot.
func (m *KernelMetrics) Hooks() BootHooks {
	return MetricsHooks(nil,
		func(controllerID string, duration time.Duration) { m.RecordBoot(controllerID, true, duration) },
		func(controllerID string, duration time.Duration) { m.RecordBoot(controllerID, false, duration) },
	)
}

// GetSnapshot returns a copy of the session counters.
func (m *KernelMetrics) GetSnapshot() KernelMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := m.counts
	snapshot.CollectedAt = time.Now()
	return snapshot
}

// Reset resets all metrics (useful for testing).
func (m *KernelMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts = KernelMetricsSnapshot{}
	m.bootTotal.Reset()
	m.bootDuration.Reset()
	m.operationsTotal.Reset()
	m.legacyLinks.Reset()
}
