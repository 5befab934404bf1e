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

package metrics_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/smich42/vmpacking/pkg/metrics"
	"github.com/smich42/vmpacking/pkg/metrics/collectors"
)

func TestMetricsDescriptors(t *testing.T) {
	r := metrics.NewRegistry()
	require.NotNil(t, r, "non-nil registry")

	newTestGauge(t, r, "test1", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test2", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test3", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	g := newTestGatherer(t, r, []string{"*"}, nil)

	described, _ := collect(t, g)
	require.True(t, described.HasEntry("test1", "gauge"))
	require.True(t, described.HasEntry("test2", "gauge"))
	require.True(t, described.HasEntry("test3", "gauge"))
}

func TestPrefixedCollection(t *testing.T) {
	r := metrics.NewRegistry()

	newTestGauge(t, r, "test1")
	newTestGauge(t, r, "test2", metrics.WithGroup("solver"))
	newTestGauge(t, r, "test3", metrics.WithGroup("solver"),
		metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	g := newTestGatherer(t, r, []string{"*"}, nil, metrics.WithNamespace("vmpack"))

	_, collected := collect(t, g)
	require.Equal(t, "0", collected.GetValue("vmpack_default_test1"))
	require.Equal(t, "0", collected.GetValue("vmpack_solver_test2"))
	require.Equal(t, "0", collected.GetValue("vmpack_test3"))
}

func TestUpdatedMetricsCollection(t *testing.T) {
	r := metrics.NewRegistry()

	g1 := newTestGauge(t, r, "test1", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	g2 := newTestGauge(t, r, "test2", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	g := newTestGatherer(t, r, []string{"*"}, nil)

	_, collected := collect(t, g)
	require.Equal(t, "0", collected.GetValue("test1"))
	require.Equal(t, "0", collected.GetValue("test2"))

	g1.gauge.Inc()
	g2.gauge.Set(5)

	_, collected = collect(t, g)
	require.Equal(t, "1", collected.GetValue("test1"))
	require.Equal(t, "5", collected.GetValue("test2"))

	g1.gauge.Set(4)
	g2.gauge.Dec()

	_, collected = collect(t, g)
	require.Equal(t, "4", collected.GetValue("test1"))
	require.Equal(t, "4", collected.GetValue("test2"))
}

func TestMetricsConfiguration(t *testing.T) {
	r := metrics.NewRegistry()

	newTestGauge(t, r, "test1", metrics.WithGroup("group1"))
	newTestGauge(t, r, "test2", metrics.WithGroup("group1"),
		metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test3", metrics.WithGroup("group2"),
		metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	newTestGauge(t, r, "test4", metrics.WithGroup("group2"))

	g := newTestGatherer(t, r, []string{"test1", "group2"}, nil)

	_, collected := collect(t, g)
	require.True(t, collected.HasEntry("group1_test1"), "group1_test1 collected")
	require.False(t, collected.HasEntry("test2"), "test2 not collected")
	require.True(t, collected.HasEntry("test3"), "test3 collected")
	require.True(t, collected.HasEntry("group2_test4"), "group2_test4 collected")
}

func TestUnmatchedGlobs(t *testing.T) {
	r := metrics.NewRegistry()
	newTestGauge(t, r, "test1")

	_, err := r.NewGatherer(metrics.WithMetrics([]string{"test1", "nothing*"}, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "nothing*")
}

func TestDuplicateRegistration(t *testing.T) {
	r := metrics.NewRegistry()
	newTestGauge(t, r, "test1", metrics.WithGroup("group1"))

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test1", Help: "dup"})
	require.Error(t, r.Register("test1", gauge, metrics.WithGroup("group1")))
	require.NoError(t, r.Register("test1", gauge, metrics.WithGroup("group2")))
}

func TestMetricsPolling(t *testing.T) {
	r := metrics.NewRegistry()

	p1 := newTestPolled(t, r, "test1", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))
	p2 := newTestPolled(t, r, "test2", metrics.WithCollectorOptions(metrics.WithoutSubsystem()))

	g := newTestGatherer(t, r, nil, []string{"*"})
	require.True(t, r.State().IsPolled())

	_, collected := collect(t, g)
	require.False(t, collected.HasEntry("test1"), "nothing polled yet")

	g.Poll()
	_, collected = collect(t, g)
	require.Equal(t, "0", collected.GetValue("test1"))
	require.Equal(t, "0", collected.GetValue("test2"))

	p1.Set(3)
	p2.Inc()

	_, collected = collect(t, g)
	require.Equal(t, "0", collected.GetValue("test1"))
	require.Equal(t, "0", collected.GetValue("test2"))

	g.Poll()
	_, collected = collect(t, g)
	require.Equal(t, "3", collected.GetValue("test1"))
	require.Equal(t, "1", collected.GetValue("test2"))
}

func TestRuntimeCollectors(t *testing.T) {
	r := metrics.NewRegistry()
	require.NoError(t, collectors.Register(r))

	g := newTestGatherer(t, r, []string{collectors.Group}, nil, metrics.WithNamespace("vmpack"))

	_, collected := collect(t, g)
	require.True(t, collected.HasPrefix("version_info"))
	require.True(t, collected.HasPrefix("go_goroutines"))
}

func TestStateString(t *testing.T) {
	for _, tc := range []*testCase{
		{
			name:   "disabled",
			state:  0,
			result: "disabled",
		},
		{
			name:   "enabled, polled",
			state:  metrics.Enabled | metrics.Polled,
			result: "enabled,polled",
		},
		{
			name:   "fully prefixed",
			state:  metrics.Enabled | metrics.NamespacePrefix | metrics.SubsystemPrefix,
			result: "enabled,namespace-prefixed,subsystem-prefixed",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.result, tc.state.String())
		})
	}
}

type testCase struct {
	name   string
	state  metrics.State
	result string
}

type testGauge struct {
	name  string
	gauge prometheus.Gauge
}

func newTestGauge(t *testing.T, r *metrics.Registry, name string, options ...metrics.RegisterOption) *testGauge {
	g := &testGauge{
		name: name,
	}
	g.gauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: name,
			Help: "Test gauge " + name,
		},
	)

	require.NoError(t, r.Register(g.name, g.gauge, options...))

	return g
}

type testPolled struct {
	desc  *prometheus.Desc
	value int
}

func newTestPolled(t *testing.T, r *metrics.Registry, name string, options ...metrics.RegisterOption) *testPolled {
	p := &testPolled{
		desc: prometheus.NewDesc(name, "Help for metric "+name, nil, nil),
	}
	require.NoError(t, r.Register(name, p, options...))
	return p
}

func (p *testPolled) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.desc
}

func (p *testPolled) Collect(ch chan<- prometheus.Metric) {
	m, err := prometheus.NewConstMetric(p.desc, prometheus.GaugeValue, float64(p.value))
	if err != nil {
		return
	}
	ch <- m
}

func (p *testPolled) Set(v int) { p.value = v }
func (p *testPolled) Inc()      { p.value++ }

func newTestGatherer(t *testing.T, r *metrics.Registry, enabled, polled []string, opts ...metrics.GathererOption) *metrics.Gatherer {
	g, err := r.NewGatherer(append(opts, metrics.WithMetrics(enabled, polled))...)
	require.NoError(t, err)
	require.NotNil(t, g)
	return g
}

type described []string

func (d described) HasEntry(name, kind string) bool {
	for _, e := range d {
		split := strings.Split(e, " ")
		if len(split) >= 2 && split[0] == name && split[1] == kind {
			return true
		}
	}
	return false
}

type collected []string

func (c collected) HasEntry(name string) bool {
	for _, e := range c {
		split := strings.SplitN(e, " ", 2)
		if len(split) > 0 && split[0] == name {
			return true
		}
	}
	return false
}

func (c collected) HasPrefix(prefix string) bool {
	for _, e := range c {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

func (c collected) GetValue(name string) string {
	for _, e := range c {
		split := strings.SplitN(e, " ", 2)
		if len(split) == 2 && split[0] == name {
			return split[1]
		}
	}
	return ""
}

func collect(t *testing.T, g *metrics.Gatherer) (described, collected) {
	buf := &bytes.Buffer{}
	require.NoError(t, g.WriteText(buf))

	var (
		d described
		c collected
	)
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "# TYPE "):
			d = append(d, strings.TrimPrefix(line, "# TYPE "))
		case strings.HasPrefix(line, "#"):
		default:
			c = append(c, line)
		}
	}
	return d, c
}
