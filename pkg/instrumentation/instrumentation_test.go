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

package instrumentation_test

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1/instrumentation"
	"github.com/smich42/vmpacking/pkg/apis/config/v1alpha1/metrics"
	"github.com/smich42/vmpacking/pkg/instrumentation"
	metricspkg "github.com/smich42/vmpacking/pkg/metrics"
)

func TestStartStop(t *testing.T) {
	r := metricspkg.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "runs", Help: "runs"})
	require.NoError(t, r.Register("runs", counter, metricspkg.WithGroup("solver")))

	cfg := &cfgapi.Config{
		Metrics: metrics.Config{Enabled: []string{"solver"}},
	}

	g, err := instrumentation.StartWithRegistry(cfg, r)
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Equal(t, g, instrumentation.Gatherer())

	counter.Add(2)

	buf := &bytes.Buffer{}
	require.NoError(t, g.WriteText(buf))
	require.Contains(t, buf.String(), "vmpack_solver_runs 2")

	instrumentation.Stop()
	require.Nil(t, instrumentation.Gatherer())
}

func TestInvalidConfig(t *testing.T) {
	cfg := &cfgapi.Config{
		Metrics: metrics.Config{Enabled: []string{"no-such-group"}},
	}
	_, err := instrumentation.StartWithRegistry(cfg, metricspkg.NewRegistry())
	require.Error(t, err)

	cfg = &cfgapi.Config{
		SamplingRatePerMillion: 1000000,
		TracingCollector:       "gopher://localhost",
	}
	_, err = instrumentation.StartWithRegistry(cfg, metricspkg.NewRegistry())
	require.Error(t, err)
}
