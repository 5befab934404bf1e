// Copyright The VM-PACK Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package solver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smich42/vmpacking/pkg/metrics"
	"github.com/smich42/vmpacking/pkg/packing"
)

const (
	// MetricsGroup is the metrics group of solver collectors.
	MetricsGroup   = "solver"
	algorithmLabel = "algorithm"
)

// Collector collects metrics of solver runs, labeled by algorithm.
type Collector struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	hosts    *prometheus.GaugeVec
	guests   *prometheus.GaugeVec
	duration *prometheus.HistogramVec
	rounds   *prometheus.CounterVec
}

var (
	defaultCollector = NewCollector()
)

// NewCollector creates a solver metrics collector.
func NewCollector() *Collector {
	labels := []string{algorithmLabel}
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runs_total",
				Help: "Number of solver runs.",
			},
			labels,
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failures_total",
				Help: "Number of failed solver runs.",
			},
			labels,
		),
		hosts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hosts",
				Help: "Number of hosts used by the last successful run.",
			},
			labels,
		),
		guests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guests",
				Help: "Number of guests packed by the last successful run.",
			},
			labels,
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "duration_seconds",
				Help:    "Duration of solver runs.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			labels,
		),
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "local_search_rounds_total",
				Help: "Number of local search rounds run.",
			},
			labels,
		),
	}
}

// DefaultCollector returns the collector solvers report to by default.
func DefaultCollector() *Collector {
	return defaultCollector
}

// RegisterMetrics registers the default solver collector with the registry.
func RegisterMetrics(r *metrics.Registry) error {
	return defaultCollector.Register(r)
}

// Register registers the collector with the registry.
func (c *Collector) Register(r *metrics.Registry) error {
	return r.Register("solver", c, metrics.WithGroup(MetricsGroup))
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.failures.Describe(ch)
	c.hosts.Describe(ch)
	c.guests.Describe(ch)
	c.duration.Describe(ch)
	c.rounds.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.failures.Collect(ch)
	c.hosts.Collect(ch)
	c.guests.Collect(ch)
	c.duration.Collect(ch)
	c.rounds.Collect(ch)
}

func (c *Collector) observe(algorithm string, p *packing.Packing, elapsed time.Duration, err error) {
	c.runs.WithLabelValues(algorithm).Inc()
	c.duration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	if err != nil {
		c.failures.WithLabelValues(algorithm).Inc()
		return
	}
	c.hosts.WithLabelValues(algorithm).Set(float64(p.HostCount()))
	c.guests.WithLabelValues(algorithm).Set(float64(p.GuestCount()))
}

func (c *Collector) roundObserver(algorithm string) func(int) {
	return func(rounds int) {
		c.rounds.WithLabelValues(algorithm).Add(float64(rounds))
	}
}
