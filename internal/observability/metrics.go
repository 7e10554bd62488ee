// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Package observability holds the Prometheus metrics and OpenTelemetry tracing of the navigation loop.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PvtCollector bundles Prometheus metrics for the navigation loop.
type PvtCollector struct {
	gatherer prometheus.Gatherer

	Epochs         *prometheus.CounterVec
	EpochDurations prometheus.Histogram
	ChannelErrors  *prometheus.CounterVec

	NavChannels prometheus.Gauge
	GDOP        prometheus.Gauge
	PDOP        prometheus.Gauge
	StaleTicks  prometheus.Gauge
}

// NewPvtCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewPvtCollector(reg prometheus.Registerer) (*PvtCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	epochs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pvt_epochs_total",
		Help: "Total number of navigation epochs, labeled by result.",
	}, []string{"result"}), "pvt_epochs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pvt_epoch_duration_seconds",
		Help:    "Processing time of one navigation epoch in seconds.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "pvt_epoch_duration_seconds")
	if err != nil {
		return nil, err
	}

	chanErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pvt_channel_errors_total",
		Help: "Channels excluded from an epoch, labeled by status.",
	}, []string{"status"}), "pvt_channel_errors_total")
	if err != nil {
		return nil, err
	}

	navChannels, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvt_nav_channels",
		Help: "Channels used by the latest epoch.",
	}), "pvt_nav_channels")
	if err != nil {
		return nil, err
	}
	gdop, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvt_gdop",
		Help: "Geometric dilution of precision of the master solution.",
	}), "pvt_gdop")
	if err != nil {
		return nil, err
	}
	pdop, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvt_pdop",
		Help: "Position dilution of precision of the master solution.",
	}), "pvt_pdop")
	if err != nil {
		return nil, err
	}
	stale, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvt_stale_ticks",
		Help: "Epochs since the last converged solution.",
	}), "pvt_stale_ticks")
	if err != nil {
		return nil, err
	}

	return &PvtCollector{
		gatherer:       gatherer,
		Epochs:         epochs,
		EpochDurations: durations,
		ChannelErrors:  chanErrors,
		NavChannels:    navChannels,
		GDOP:           gdop,
		PDOP:           pdop,
		StaleTicks:     stale,
	}, nil
}

// ObserveEpoch records the result and processing time of one epoch.
func (c *PvtCollector) ObserveEpoch(result string, activeChannels int, seconds float64) {
	if c == nil {
		return
	}
	c.Epochs.WithLabelValues(result).Inc()
	c.EpochDurations.Observe(seconds)
	c.NavChannels.Set(float64(activeChannels))
}

// ObserveSolution tracks the quality of the master solution.
func (c *PvtCollector) ObserveSolution(gdop, pdop float64, staleTicks int) {
	if c == nil {
		return
	}
	c.GDOP.Set(gdop)
	c.PDOP.Set(pdop)
	c.StaleTicks.Set(float64(staleTicks))
}

func (c *PvtCollector) IncChannelError(status string) {
	if c == nil {
		return
	}
	c.ChannelErrors.WithLabelValues(status).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PvtCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
