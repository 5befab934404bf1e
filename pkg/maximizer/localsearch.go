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

package maximizer

import (
	"context"
	"fmt"
	"math"

	"github.com/smich42/vmpacking/pkg/packing"
)

const (
	// DefaultApproxRatio is the assumed approximation ratio of the
	// one-host maximizer.
	DefaultApproxRatio = 1.0
	// DefaultEpsilon is the default slack of the local search.
	DefaultEpsilon = 0.1
)

// LocalSearch is an n-host maximizer which starts from a first-fit
// packing and in every round replaces the contents of the host a one-host
// maximizer can improve the most. The number of rounds is bounded by
// ⌈k·ln(1/ε)/β⌉ for k hosts, where β is the approximation ratio of the
// one-host maximizer and ε the slack.
type LocalSearch struct {
	oneHost     OneHost
	approxRatio float64
	epsilon     float64
	observer    func(rounds int)
}

var _ NHost = &LocalSearch{}

// LocalSearchOption is an option for a local search.
type LocalSearchOption func(*LocalSearch) error

// WithApproxRatio sets the approximation ratio of the one-host maximizer.
func WithApproxRatio(ratio float64) LocalSearchOption {
	return func(ls *LocalSearch) error {
		if ratio <= 0 || ratio > 1 {
			return fmt.Errorf("%w: approximation ratio %g out of range (0, 1]",
				packing.ErrInvalidParameter, ratio)
		}
		ls.approxRatio = ratio
		return nil
	}
}

// WithEpsilon sets the slack of the local search.
func WithEpsilon(epsilon float64) LocalSearchOption {
	return func(ls *LocalSearch) error {
		if epsilon <= 0 || epsilon >= 1 {
			return fmt.Errorf("%w: epsilon %g out of range (0, 1)",
				packing.ErrInvalidParameter, epsilon)
		}
		ls.epsilon = epsilon
		return nil
	}
}

// WithRoundObserver sets a function called with the number of rounds
// run at the end of every maximization.
func WithRoundObserver(fn func(rounds int)) LocalSearchOption {
	return func(ls *LocalSearch) error {
		ls.observer = fn
		return nil
	}
}

// NewLocalSearch creates a local search over the given one-host maximizer.
func NewLocalSearch(oneHost OneHost, options ...LocalSearchOption) (*LocalSearch, error) {
	if oneHost == nil {
		return nil, fmt.Errorf("%w: nil one-host maximizer", packing.ErrInvalidParameter)
	}

	ls := &LocalSearch{
		oneHost:     oneHost,
		approxRatio: DefaultApproxRatio,
		epsilon:     DefaultEpsilon,
	}

	for _, o := range options {
		if err := o(ls); err != nil {
			return nil, err
		}
	}

	return ls, nil
}

// Name returns the name of the maximizer.
func (ls *LocalSearch) Name() string {
	return "local-" + ls.oneHost.Name()
}

// Rounds returns the maximum number of rounds for the given host count.
func (ls *LocalSearch) Rounds(hosts int) int {
	return int(math.Ceil(float64(hosts) * math.Log(1/ls.epsilon) / ls.approxRatio))
}

// Maximize packs as many guests of the instance as it can on at most
// hosts hosts. Guests which do not fit are left out. Empty hosts are
// dropped from the result.
func (ls *LocalSearch) Maximize(ctx context.Context, inst packing.Instance, k int) (*packing.Packing, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: host count %d", packing.ErrInvalidParameter, k)
	}
	if err := packing.CheckFeasible(inst); err != nil {
		return nil, err
	}

	var (
		hosts  = make([]*packing.Host, k)
		owner  = make(map[packing.GuestID]int)
		rounds = 0
		limit  = ls.Rounds(k)
	)

	for i := range hosts {
		hosts[i] = packing.NewHost(inst.Capacity())
	}
	for _, g := range inst.Guests() {
		for i, h := range hosts {
			if h.Accommodates(g) {
				h.AddGuest(g)
				owner[g.ID()] = i
				break
			}
		}
	}

	log.Debug("%s: %d/%d guests placed initially on %d hosts, at most %d rounds",
		ls.Name(), len(owner), len(inst.Guests()), k, limit)

	for rounds < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx, candidate, err := ls.mostImproving(inst, hosts, owner)
		if err != nil {
			return nil, err
		}
		rounds++

		if candidate == nil {
			break
		}

		for _, g := range hosts[idx].Guests() {
			delete(owner, g.ID())
		}
		for _, g := range candidate.Guests() {
			if i, ok := owner[g.ID()]; ok && i != idx {
				hosts[i].RemoveGuest(g)
			}
			owner[g.ID()] = idx
		}
		hosts[idx] = candidate

		log.Debug("%s: round %d replaced host #%d, %d guests placed", ls.Name(),
			rounds, idx, len(owner))
	}

	if ls.observer != nil {
		ls.observer(rounds)
	}

	p := packing.NewPacking(packing.DropEmptyHosts(hosts))
	if log.DebugEnabled() {
		p.Dump(ls.Name() + ": ")
	}

	return p, nil
}

// mostImproving returns the host which a one-host maximizer can improve
// the most, with its replacement, or a nil candidate if no host improves.
func (ls *LocalSearch) mostImproving(inst packing.Instance, hosts []*packing.Host, owner map[packing.GuestID]int) (int, *packing.Host, error) {
	var (
		bestIdx         = -1
		bestCandidate   *packing.Host
		bestImprovement = 0
	)

	for i, h := range hosts {
		profits := make(Profits, len(owner))
		for id, o := range owner {
			if o != i {
				profits[id] = 0
			}
		}

		candidate, err := ls.oneHost.Maximize(inst, profits)
		if err != nil {
			return -1, nil, fmt.Errorf("%s: %w", ls.Name(), err)
		}
		if candidate.IsOverfull() {
			return -1, nil, fmt.Errorf("%w: %s returned overfull host %s",
				packing.ErrInvalidPacking, ls.oneHost.Name(), candidate)
		}

		for _, g := range candidate.Guests() {
			if profits.Of(g) == 0 {
				candidate.RemoveGuest(g)
			}
		}

		if improvement := candidate.GuestCount() - h.GuestCount(); improvement > bestImprovement {
			bestIdx, bestCandidate, bestImprovement = i, candidate, improvement
		}
	}

	return bestIdx, bestCandidate, nil
}
