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
package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/instrumentation"
	"github.com/smich42/vmpacking/pkg/metrics"
	"github.com/smich42/vmpacking/pkg/metrics/collectors"
	"github.com/smich42/vmpacking/pkg/packing"
	"github.com/smich42/vmpacking/pkg/solver"
)

type solveOptions struct {
	*globalOptions
	source
	solvers  []string
	metrics  bool
	parallel int
}

type result struct {
	algorithm string
	hosts     int
	status    packing.Status
	elapsed   time.Duration
	err       error
}

func (r *result) ok() bool {
	return r.err == nil && r.status == packing.StatusOK
}

func newSolveCommand(g *globalOptions) *cobra.Command {
	o := &solveOptions{
		globalOptions: g,
		parallel:      runtime.NumCPU(),
	}

	var names []string
	for _, a := range cfgapi.Algorithms() {
		names = append(names, string(a))
	}

	cmd := &cobra.Command{
		Use:   "solve [flags] [FILE...]",
		Short: "Pack instances with one or more algorithms",
		Long: `Pack every loaded instance with every selected algorithm, printing the
number of hosts used, the validity of the packing and the time taken.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	fs := cmd.Flags()
	o.source.addFlags(fs)
	fs.StringSliceVarP(&o.solvers, "solver", "s", nil,
		"algorithms to run, any of "+strings.Join(names, ", "))
	fs.BoolVar(&o.metrics, "metrics", false, "print solver metrics when done")
	fs.IntVarP(&o.parallel, "parallel", "j", o.parallel, "number of instances to solve concurrently")

	return cmd
}

func (o *solveOptions) run(ctx context.Context, out io.Writer, files []string) error {
	cfg, err := o.globalOptions.load()
	if err != nil {
		return err
	}

	if len(o.solvers) > 0 {
		cfg.Solver.Algorithms = nil
		for _, s := range o.solvers {
			cfg.Solver.Algorithms = append(cfg.Solver.Algorithms, cfgapi.Algorithm(s))
		}
		if err := cfg.Solver.Validate(); err != nil {
			return fmt.Errorf("invalid --solver: %w", err)
		}
	}

	instances, err := o.source.instances(cfg, files)
	if err != nil {
		return err
	}

	var (
		registry  = metrics.NewRegistry()
		collector = solver.NewCollector()
	)
	if err := collectors.Register(registry); err != nil {
		return err
	}
	if err := collector.Register(registry); err != nil {
		return err
	}

	gatherer, err := instrumentation.StartWithRegistry(&cfg.Instrumentation, registry)
	if err != nil {
		return err
	}
	defer instrumentation.Stop()

	solvers, err := solver.NewAll(&cfg.Solver, solver.WithCollector(collector))
	if err != nil {
		return err
	}

	log.Info("solving %d instances with %d algorithms", len(instances), len(solvers))

	results := make([][]*result, len(instances))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, o.parallel))
	for i, ni := range instances {
		eg.Go(func() error {
			results[i] = solveAll(ctx, solvers, ni.inst)
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	printResults(out, instances, solvers, results)

	if o.metrics {
		gatherer.Poll()
		if err := gatherer.WriteText(out); err != nil {
			return err
		}
	}

	for _, rs := range results {
		for _, r := range rs {
			if !r.ok() {
				return fmt.Errorf("some instances could not be packed")
			}
		}
	}

	return nil
}

func solveAll(ctx context.Context, solvers []solver.Solver, inst packing.Instance) []*result {
	results := make([]*result, 0, len(solvers))
	for _, s := range solvers {
		r := &result{algorithm: s.Name()}

		start := time.Now()
		p, err := s.Solve(ctx, inst)
		r.elapsed = time.Since(start)

		if err != nil {
			r.err = err
		} else {
			r.hosts = p.HostCount()
			r.status = p.ValidateForInstance(inst)
		}

		results = append(results, r)
	}
	return results
}

func printResults(out io.Writer, instances []*namedInstance, solvers []solver.Solver, results [][]*result) {
	var (
		header = color.New(color.Bold).SprintFunc()
		good   = color.New(color.FgGreen).SprintFunc()
		bad    = color.New(color.FgRed).SprintFunc()
		width  = 0
		totals = make(map[string]int)
		failed = make(map[string]int)
	)

	for _, s := range solvers {
		width = max(width, len(s.Name()))
	}

	for i, ni := range instances {
		fmt.Fprintf(out, "%s: %s\n", header(ni.name), packing.Stats(ni.inst))
		for _, r := range results[i] {
			switch {
			case r.err != nil:
				failed[r.algorithm]++
				fmt.Fprintf(out, "  %-*s %s: %v\n", width, r.algorithm, bad("failed"), r.err)
			case r.status != packing.StatusOK:
				failed[r.algorithm]++
				fmt.Fprintf(out, "  %-*s %4d hosts %s %s\n", width, r.algorithm, r.hosts,
					bad(r.status), r.elapsed)
			default:
				totals[r.algorithm] += r.hosts
				fmt.Fprintf(out, "  %-*s %4d hosts %s %s\n", width, r.algorithm, r.hosts,
					good(r.status), r.elapsed)
			}
		}
	}

	fmt.Fprintf(out, "%s\n", header("total"))
	for _, s := range solvers {
		name := s.Name()
		line := fmt.Sprintf("  %-*s %4d hosts", width, name, totals[name])
		if n := failed[name]; n > 0 {
			line += " " + bad(fmt.Sprintf("(%d failed)", n))
		}
		fmt.Fprintln(out, line)
	}
}
