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
	"context"
	"fmt"
	"time"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/instrumentation/tracing"
	"github.com/smich42/vmpacking/pkg/maximizer"
	"github.com/smich42/vmpacking/pkg/packing"
)

// Solver packs instances with a named algorithm.
type Solver interface {
	// Name returns the algorithm name of the solver.
	Name() string
	// Solve packs the instance.
	Solve(ctx context.Context, inst packing.Instance) (*packing.Packing, error)
}

type solveFunc func(ctx context.Context, inst packing.Instance) (*packing.Packing, error)

type solver struct {
	name      string
	solve     solveFunc
	collector *Collector
}

// New creates a solver for the algorithm, configured by cfg. A nil cfg
// means the default configuration.
func New(algorithm cfgapi.Algorithm, cfg *cfgapi.SolverConfig, opts ...Option) (Solver, error) {
	if cfg == nil {
		cfg = &cfgapi.SolverConfig{}
		cfg.SetDefaults()
	}

	o := newOptions(opts...)
	if o.collector == nil {
		o.collector = defaultCollector
	}

	s := &solver{
		name:      string(algorithm),
		collector: o.collector,
	}

	common := append([]Option{WithDecanting(!cfg.DisableDecanting)}, opts...)

	switch algorithm {
	case cfgapi.NextFit:
		s.solve = heuristic(SolveByNextFit, common)
	case cfgapi.FirstFit:
		s.solve = heuristic(SolveByFirstFit, common)
	case cfgapi.BestFusion:
		s.solve = heuristic(SolveByBestFusion, common)
	case cfgapi.OverloadAndRemove:
		s.solve = heuristic(SolveByOverloadAndRemove, common)
	case cfgapi.OpportunityAwareEfficiency:
		s.solve = heuristic(SolveByOpportunityAwareEfficiency, common)

	case cfgapi.Tree:
		s.solve = func(_ context.Context, inst packing.Instance) (*packing.Packing, error) {
			t, ok := inst.(*instance.TreeInstance)
			if !ok {
				return nil, unsupported(algorithm, inst)
			}
			return SolveByTree(t, common...)
		}

	case cfgapi.LocalSubsetEfficiency, cfgapi.LocalClusterTree:
		local := append(common, WithLocalSearchOptions(
			maximizer.WithEpsilon(cfg.Epsilon),
			maximizer.WithApproxRatio(cfg.ApproxRatio),
			maximizer.WithRoundObserver(s.collector.roundObserver(s.name)),
		))
		if cfg.UnlimitedHosts {
			local = append(local, WithUnlimitedHosts())
		}

		if algorithm == cfgapi.LocalSubsetEfficiency {
			if _, err := maximizer.NewSubsetEfficiency(cfg.SubsetSize); err != nil {
				return nil, err
			}
			s.solve = func(ctx context.Context, inst packing.Instance) (*packing.Packing, error) {
				return SolveByLocalSubsetEfficiency(ctx, inst, cfg.SubsetSize, local...)
			}
		} else {
			s.solve = func(ctx context.Context, inst packing.Instance) (*packing.Packing, error) {
				ct, ok := inst.(*instance.ClusterTreeInstance)
				if !ok {
					return nil, unsupported(algorithm, inst)
				}
				return SolveByLocalClusterTree(ctx, ct, local...)
			}
		}

	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", packing.ErrInvalidParameter, algorithm)
	}

	return s, nil
}

// NewAll creates a solver for every algorithm of the configuration.
func NewAll(cfg *cfgapi.SolverConfig, opts ...Option) ([]Solver, error) {
	if cfg == nil {
		cfg = &cfgapi.SolverConfig{}
		cfg.SetDefaults()
	}
	solvers := make([]Solver, 0, len(cfg.Algorithms))
	for _, a := range cfg.Algorithms {
		s, err := New(a, cfg, opts...)
		if err != nil {
			return nil, err
		}
		solvers = append(solvers, s)
	}
	return solvers, nil
}

func heuristic(fn func(packing.Instance, ...Option) (*packing.Packing, error), opts []Option) solveFunc {
	return func(ctx context.Context, inst packing.Instance) (*packing.Packing, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(inst, opts...)
	}
}

func unsupported(algorithm cfgapi.Algorithm, inst packing.Instance) error {
	return fmt.Errorf("%w: %s cannot solve %T", packing.ErrUnsupportedInstance, algorithm, inst)
}

// Name returns the algorithm name of the solver.
func (s *solver) Name() string {
	return s.name
}

// Solve packs the instance, tracing and recording metrics of the run.
func (s *solver) Solve(ctx context.Context, inst packing.Instance) (*packing.Packing, error) {
	ctx, span := tracing.StartSpan(ctx, "solve",
		tracing.WithAttributes(
			tracing.Attribute("algorithm", s.name),
			tracing.Attribute("capacity", inst.Capacity()),
			tracing.Attribute("guests", len(inst.Guests())),
		),
	)

	start := time.Now()
	p, err := s.solve(ctx, inst)
	elapsed := time.Since(start)

	s.collector.observe(s.name, p, elapsed, err)

	if err != nil {
		span.End(tracing.WithStatus(err))
		log.Debug("%s: failed after %s: %v", s.name, elapsed, err)
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	span.SetAttributes(tracing.Attribute("hosts", p.HostCount()))
	span.End(tracing.WithStatus(nil))

	log.Debug("%s: packed %d guests on %d hosts in %s", s.name, p.GuestCount(),
		p.HostCount(), elapsed)

	return p, nil
}
