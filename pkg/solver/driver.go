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

	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/maximizer"
	"github.com/smich42/vmpacking/pkg/packing"
)

// SolveByMaximizer finds the least number of hosts for which the n-host
// maximizer places every guest, by binary search over [1, guest count].
// A candidate packing counts only if it is complete, with no empty or
// overfull host. With WithUnlimitedHosts the maximizer runs once with
// one host per guest.
func SolveByMaximizer(ctx context.Context, inst packing.Instance, m maximizer.NHost, opts ...Option) (*packing.Packing, error) {
	o := newOptions(opts...)
	n := len(inst.Guests())

	if n == 0 {
		return packing.NewPacking(nil), nil
	}
	if err := packing.CheckFeasible(inst); err != nil {
		return nil, err
	}

	try := func(k int) (*packing.Packing, bool, error) {
		p, err := m.Maximize(ctx, inst, k)
		if err != nil {
			return nil, false, err
		}
		if o.decant {
			p.Decant()
		}
		status := p.ValidateForInstance(inst)
		log.Debug("%s: %d hosts allowed, %d used, %d/%d guests placed: %s",
			m.Name(), k, p.HostCount(), p.GuestCount(), n, status)
		return p, status == packing.StatusOK, nil
	}

	var best *packing.Packing

	if o.unlimitedHosts {
		p, complete, err := try(n)
		if err != nil {
			return nil, err
		}
		if complete {
			best = p
		}
	} else {
		for lo, hi := 1, n; lo <= hi; {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			k := lo + (hi-lo)/2
			p, complete, err := try(k)
			if err != nil {
				return nil, err
			}

			if complete {
				best = p
				hi = k - 1
			} else {
				lo = k + 1
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: %s found no complete packing on %d hosts",
			packing.ErrInfeasible, m.Name(), n)
	}

	return best, nil
}

// SolveByLocalSubsetEfficiency solves the instance by local search over
// the subset efficiency one-host maximizer.
func SolveByLocalSubsetEfficiency(ctx context.Context, inst packing.Instance, subsetSize int, opts ...Option) (*packing.Packing, error) {
	oneHost, err := maximizer.NewSubsetEfficiency(subsetSize)
	if err != nil {
		return nil, err
	}
	return solveByLocal(ctx, inst, oneHost, opts...)
}

// SolveByLocalClusterTree solves a cluster tree instance by local search
// over the cluster tree one-host maximizer.
func SolveByLocalClusterTree(ctx context.Context, inst *instance.ClusterTreeInstance, opts ...Option) (*packing.Packing, error) {
	return solveByLocal(ctx, inst, maximizer.NewClusterTree(), opts...)
}

func solveByLocal(ctx context.Context, inst packing.Instance, oneHost maximizer.OneHost, opts ...Option) (*packing.Packing, error) {
	o := newOptions(opts...)

	ls, err := maximizer.NewLocalSearch(oneHost, o.localSearch...)
	if err != nil {
		return nil, err
	}

	return SolveByMaximizer(ctx, inst, ls, opts...)
}
