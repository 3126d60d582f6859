package metrics

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Result labels for ProcessedTasksCounter.
const (
	ResultDelivered         = "delivered"
	ResultDispatchFailed    = "dispatch-failed"
	ResultInvalidSubscriber = "invalid-subscriber"
)

type Metrics struct {
	ProcessedTasksCounter *prometheus.CounterVec
	QueueDepthGauge       prometheus.Gauge
	MemoryUsageGauge      *prometheus.GaugeVec
	CpuUsageGauge         *prometheus.GaugeVec
}

// New registers the delivery metrics on the given registerer. Tests pass a
// private prometheus.NewRegistry() so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProcessedTasksCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "app_processed_delivery_tasks_total",
				Help: "Total number of delivery tasks finalized.",
			},
			[]string{"result"},
		),
		QueueDepthGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "app_delivery_queue_depth",
				Help: "Number of delivery tasks still pending.",
			},
		),
		MemoryUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "app_memory_usage_bytes",
				Help: "Amount of memory used by the application host.",
			},
			[]string{"type"},
		),
		CpuUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "app_cpu_usage_percent",
				Help: "CPU usage percentage.",
			},
			[]string{"cpu"},
		),
	}

	reg.MustRegister(m.ProcessedTasksCounter)
	reg.MustRegister(m.QueueDepthGauge)
	reg.MustRegister(m.MemoryUsageGauge)
	reg.MustRegister(m.CpuUsageGauge)

	return m
}

// CollectMemoryAndCpu samples host memory and per-core CPU usage into the
// runtime gauges.
func (m *Metrics) CollectMemoryAndCpu() error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("collect memory usage: %w", err)
	}
	m.MemoryUsageGauge.WithLabelValues("used").Set(float64(vm.Used))
	m.MemoryUsageGauge.WithLabelValues("available").Set(float64(vm.Available))

	percents, err := cpu.Percent(0, true)
	if err != nil {
		return fmt.Errorf("collect cpu usage: %w", err)
	}
	for i, p := range percents {
		m.CpuUsageGauge.WithLabelValues(strconv.Itoa(i)).Set(p)
	}

	return nil
}

// StartServer exposes the default registry at /metrics in a goroutine.
func StartServer(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("starting metrics server on :%d", port)
		if err := http.ListenAndServe(":"+strconv.Itoa(port), nil); err != nil {
			log.Fatalf("metrics server: %v", err)
		}
	}()
}
