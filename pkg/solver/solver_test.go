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
package solver_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/instrumentation/tracing"
	"github.com/smich42/vmpacking/pkg/metrics"
	"github.com/smich42/vmpacking/pkg/packing"
	. "github.com/smich42/vmpacking/pkg/solver"
)

func smallClusterTree(t *testing.T) *instance.ClusterTreeInstance {
	ct := instance.NewClusterTreeInstance(3)
	r, err := ct.AddInner(instance.RootCluster, nil, pages(1))
	require.NoError(t, err)
	c, err := ct.AddCluster(instance.RootCluster)
	require.NoError(t, err)
	for _, p := range []int{2, 3, 4} {
		_, err := ct.AddLeaf(c, []instance.NodeID{r}, pages(p), nil)
		require.NoError(t, err)
	}
	return ct
}

func instanceFor(t *testing.T, a cfgapi.Algorithm) packing.Instance {
	switch a {
	case cfgapi.Tree:
		return twoBranchTree(t)
	case cfgapi.LocalClusterTree:
		return smallClusterTree(t)
	}
	return scenario()
}

func TestNew(t *testing.T) {
	for _, a := range cfgapi.Algorithms() {
		t.Run(string(a), func(t *testing.T) {
			s, err := New(a, nil, WithCollector(NewCollector()))
			require.NoError(t, err)
			require.Equal(t, string(a), s.Name())

			inst := instanceFor(t, a)
			p, err := s.Solve(context.Background(), inst)
			require.NoError(t, err)
			require.Equal(t, packing.StatusOK, p.ValidateForInstance(inst))
		})
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New("worst-fit", nil)
	require.True(t, errors.Is(err, packing.ErrInvalidParameter))

	cfg := &cfgapi.SolverConfig{SubsetSize: 9}
	cfg.SetDefaults()
	_, err = New(cfgapi.LocalSubsetEfficiency, cfg)
	require.True(t, errors.Is(err, packing.ErrInvalidParameter))

	for _, a := range []cfgapi.Algorithm{cfgapi.Tree, cfgapi.LocalClusterTree} {
		s, err := New(a, nil, WithCollector(NewCollector()))
		require.NoError(t, err)
		_, err = s.Solve(context.Background(), scenario())
		require.True(t, errors.Is(err, packing.ErrUnsupportedInstance), "algorithm %s", a)
	}
}

func TestNewAll(t *testing.T) {
	solvers, err := NewAll(nil)
	require.NoError(t, err)
	require.Equal(t, 1, len(solvers))
	require.Equal(t, string(cfgapi.BestFusion), solvers[0].Name())

	cfg := &cfgapi.SolverConfig{
		Algorithms: []cfgapi.Algorithm{cfgapi.NextFit, cfgapi.FirstFit},
	}
	cfg.SetDefaults()
	solvers, err = NewAll(cfg)
	require.NoError(t, err)
	require.Equal(t, 2, len(solvers))

	cfg.Algorithms = append(cfg.Algorithms, "worst-fit")
	_, err = NewAll(cfg)
	require.Error(t, err)
}

func TestSolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, a := range []cfgapi.Algorithm{cfgapi.FirstFit, cfgapi.LocalSubsetEfficiency} {
		s, err := New(a, nil, WithCollector(NewCollector()))
		require.NoError(t, err)
		_, err = s.Solve(ctx, scenario())
		require.True(t, errors.Is(err, context.Canceled), "algorithm %s", a)
	}
}

func TestSolveMetrics(t *testing.T) {
	var (
		r = metrics.NewRegistry()
		c = NewCollector()
	)
	require.NoError(t, c.Register(r))

	ff, err := New(cfgapi.FirstFit, nil, WithCollector(c))
	require.NoError(t, err)
	_, err = ff.Solve(context.Background(), scenario())
	require.NoError(t, err)
	_, err = ff.Solve(context.Background(), instance.NewGeneralInstance(1, pages(1, 2)))
	require.True(t, errors.Is(err, packing.ErrInfeasible))

	lse, err := New(cfgapi.LocalSubsetEfficiency, nil, WithCollector(c))
	require.NoError(t, err)
	_, err = lse.Solve(context.Background(), scenario())
	require.NoError(t, err)

	g, err := r.NewGatherer(
		metrics.WithNamespace("vmpack"),
		metrics.WithMetrics([]string{MetricsGroup}, nil),
	)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, g.WriteText(buf))
	text := buf.String()

	require.Contains(t, text, `vmpack_solver_runs_total{algorithm="first-fit"} 2`)
	require.Contains(t, text, `vmpack_solver_failures_total{algorithm="first-fit"} 1`)
	require.Contains(t, text, `vmpack_solver_hosts{algorithm="first-fit"} 3`)
	require.Contains(t, text, `vmpack_solver_guests{algorithm="first-fit"} 5`)
	require.Contains(t, text, `vmpack_solver_local_search_rounds_total{algorithm="local-subset-efficiency"}`)
	require.Contains(t, text, `vmpack_solver_duration_seconds_count{algorithm="first-fit"} 2`)
}

func TestSolveTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	require.NoError(t, tracing.Start(
		tracing.WithSpanProcessor(recorder),
		tracing.WithSamplingRatio(1.0),
	))
	defer tracing.Stop()

	s, err := New(cfgapi.BestFusion, nil, WithCollector(NewCollector()))
	require.NoError(t, err)

	_, err = s.Solve(context.Background(), scenario())
	require.NoError(t, err)
	_, err = s.Solve(context.Background(), instance.NewGeneralInstance(1, pages(1, 2)))
	require.Error(t, err)

	ended := recorder.Ended()
	require.Equal(t, 2, len(ended))
	for _, span := range ended {
		require.Equal(t, "solve", span.Name())
		require.Contains(t, span.Attributes(), attribute.String("algorithm", "best-fusion"))
	}
	require.Equal(t, codes.Ok, ended[0].Status().Code)
	require.Contains(t, ended[0].Attributes(), attribute.Int("hosts", 2))
	require.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestRegisterMetrics(t *testing.T) {
	r := metrics.NewRegistry()
	require.NoError(t, RegisterMetrics(r))
	require.Error(t, RegisterMetrics(r))
	require.NotNil(t, DefaultCollector())
}
