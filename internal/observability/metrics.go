package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the motion engine.
type Collector struct {
	gatherer prometheus.Gatherer

	Sweeps        *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec
	Ticks         prometheus.Counter
	DeviceErrors  *prometheus.CounterVec
	Divergences   *prometheus.CounterVec
	AxisDuty      *prometheus.GaugeVec
}

// NewCollector registers the motion metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sweeps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "armgo_sweeps_total",
		Help: "Completed sweeps, labeled by kind (single, multi) and result (done, failed).",
	}, []string{"kind", "result"}), "armgo_sweeps_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "armgo_sweep_duration_seconds",
		Help:    "Wall time of a sweep from first tick to termination.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
	}, []string{"kind"}), "armgo_sweep_duration_seconds")
	if err != nil {
		return nil, err
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armgo_control_ticks_total",
		Help: "Control loop ticks executed across all sweeps.",
	}), "armgo_control_ticks_total")
	if err != nil {
		return nil, err
	}

	deviceErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "armgo_device_errors_total",
		Help: "Device gateway failures, labeled by axis and operation.",
	}, []string{"axis", "op"}), "armgo_device_errors_total")
	if err != nil {
		return nil, err
	}

	divergences, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "armgo_path_divergences_total",
		Help: "Paths dropped by the divergence guard, labeled by axis.",
	}, []string{"axis"}), "armgo_path_divergences_total")
	if err != nil {
		return nil, err
	}

	duty, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "armgo_axis_duty_nanoseconds",
		Help: "Last duty successfully written to each axis.",
	}, []string{"axis"}), "armgo_axis_duty_nanoseconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Sweeps:        sweeps,
		SweepDuration: durations,
		Ticks:         ticks,
		DeviceErrors:  deviceErrors,
		Divergences:   divergences,
		AxisDuty:      duty,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSweep records the outcome of one sweep.
func (c *Collector) ObserveSweep(kind, result string, elapsed time.Duration, ticks int) {
	if c == nil {
		return
	}
	c.Sweeps.WithLabelValues(kind, result).Inc()
	c.SweepDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	c.Ticks.Add(float64(ticks))
}

// DeviceError counts a failed gateway operation.
func (c *Collector) DeviceError(axis int, op string) {
	if c == nil {
		return
	}
	c.DeviceErrors.WithLabelValues(strconv.Itoa(axis), op).Inc()
}

// Divergence counts a path dropped by the divergence guard.
func (c *Collector) Divergence(axis int) {
	if c == nil {
		return
	}
	c.Divergences.WithLabelValues(strconv.Itoa(axis)).Inc()
}

// SetDuty publishes the last written duty of an axis.
func (c *Collector) SetDuty(axis int, duty time.Duration) {
	if c == nil {
		return
	}
	c.AxisDuty.WithLabelValues(strconv.Itoa(axis)).Set(float64(duty.Nanoseconds()))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
