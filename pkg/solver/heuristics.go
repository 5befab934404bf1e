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
	"math"

	"github.com/smich42/vmpacking/pkg/packing"
)

// Proceeder packs guests onto a partial list of hosts, opening hosts of
// the given capacity as needed, and returns the extended list. Every guest
// must fit on an empty host.
type Proceeder func(capacity int, guests []*packing.Guest, hosts []*packing.Host) []*packing.Host

// SolveByNextFit packs the instance by Next Fit.
func SolveByNextFit(inst packing.Instance, opts ...Option) (*packing.Packing, error) {
	return solveBy("next fit", inst, ProceedByNextFit, opts...)
}

// SolveByFirstFit packs the instance by First Fit.
func SolveByFirstFit(inst packing.Instance, opts ...Option) (*packing.Packing, error) {
	return solveBy("first fit", inst, ProceedByFirstFit, opts...)
}

// SolveByBestFusion packs the instance by Best Fusion.
func SolveByBestFusion(inst packing.Instance, opts ...Option) (*packing.Packing, error) {
	return solveBy("best fusion", inst, ProceedByBestFusion, opts...)
}

// SolveByOverloadAndRemove packs the instance by Overload-and-Remove.
func SolveByOverloadAndRemove(inst packing.Instance, opts ...Option) (*packing.Packing, error) {
	return solveBy("overload-and-remove", inst, ProceedByOverloadAndRemove, opts...)
}

// SolveByOpportunityAwareEfficiency packs the instance by Opportunity-Aware
// Efficiency.
func SolveByOpportunityAwareEfficiency(inst packing.Instance, opts ...Option) (*packing.Packing, error) {
	return solveBy("opportunity-aware efficiency", inst, ProceedByOpportunityAwareEfficiency, opts...)
}

func solveBy(name string, inst packing.Instance, proceed Proceeder, opts ...Option) (*packing.Packing, error) {
	o := newOptions(opts...)

	if err := packing.CheckFeasible(inst); err != nil {
		return nil, err
	}

	p := packing.NewPacking(proceed(inst.Capacity(), inst.Guests(), nil))
	p.DropEmptyHosts()
	if o.decant {
		p.Decant()
	}

	if log.DebugEnabled() {
		p.Dump(name + ": ")
	}

	return p, nil
}

// ProceedByNextFit puts every guest on the last host if it fits there and
// on a new host otherwise.
func ProceedByNextFit(capacity int, guests []*packing.Guest, hosts []*packing.Host) []*packing.Host {
	for _, g := range guests {
		if len(hosts) == 0 || !hosts[len(hosts)-1].Accommodates(g) {
			hosts = append(hosts, packing.NewHost(capacity))
		}
		hosts[len(hosts)-1].AddGuest(g)
	}
	return hosts
}

// ProceedByFirstFit puts every guest on the first host it fits on, or on
// a new host.
func ProceedByFirstFit(capacity int, guests []*packing.Guest, hosts []*packing.Host) []*packing.Host {
	for _, g := range guests {
		var dst *packing.Host
		for _, h := range hosts {
			if h.Accommodates(g) {
				dst = h
				break
			}
		}
		if dst == nil {
			dst = packing.NewHost(capacity)
			hosts = append(hosts, dst)
		}
		dst.AddGuest(g)
	}
	return hosts
}

// ProceedByBestFusion puts every guest on the fitting host where the pages
// it adds have the least relative size, with page frequencies taken over
// all the guests being packed. Ties go to the earlier host.
func ProceedByBestFusion(capacity int, guests []*packing.Guest, hosts []*packing.Host) []*packing.Host {
	freq := packing.PageFrequencies(guests)

	for _, g := range guests {
		var (
			dst       *packing.Host
			bestScore = math.Inf(1)
		)
		for _, h := range hosts {
			if !h.Accommodates(g) {
				continue
			}
			if score := packing.RelSizeOnHost(g, h, freq); score < bestScore {
				dst, bestScore = h, score
			}
		}
		if dst == nil {
			dst = packing.NewHost(capacity)
			hosts = append(hosts, dst)
		}
		dst.AddGuest(g)
	}

	return hosts
}

// ProceedByOverloadAndRemove puts every guest on the host where the pages
// it adds have the least relative size, regardless of capacity, then
// evicts residents of an overfull host by increasing size to relative size
// ratio until it fits again. Evicted guests are queued for another host.
// A guest is tried on every host at most once.
func ProceedByOverloadAndRemove(capacity int, guests []*packing.Guest, hosts []*packing.Host) []*packing.Host {
	var (
		freq      = packing.PageFrequencies(guests)
		queue     = append([]*packing.Guest{}, guests...)
		attempted = make(map[packing.GuestID]map[*packing.Host]struct{})
	)

	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]

		tried, ok := attempted[g.ID()]
		if !ok {
			tried = make(map[*packing.Host]struct{})
			attempted[g.ID()] = tried
		}

		var (
			dst       *packing.Host
			bestScore = math.Inf(1)
		)
		for _, h := range hosts {
			if _, ok := tried[h]; ok {
				continue
			}
			if score := packing.RelSizeOnHost(g, h, freq); score < bestScore {
				dst, bestScore = h, score
			}
		}
		if dst == nil {
			dst = packing.NewHost(capacity)
			hosts = append(hosts, dst)
		}

		dst.AddGuest(g)
		tried[dst] = struct{}{}

		for dst.IsOverfull() && dst.GuestCount() > 1 {
			worst := leastSharing(dst)
			dst.RemoveGuest(worst)
			queue = append(queue, worst)
			log.Debug("overload-and-remove: evicted %s from %s", worst, dst)
		}
	}

	return packing.DropEmptyHosts(hosts)
}

// leastSharing returns the resident with the least size to relative size
// ratio on the host, the one least sharing pages with its co-residents.
func leastSharing(h *packing.Host) *packing.Guest {
	var (
		freq       = h.PageFrequencies()
		worst      *packing.Guest
		worstRatio = math.Inf(1)
	)
	for _, g := range h.Guests() {
		if ratio := packing.SizeRelRatio(g, freq); worst == nil || ratio < worstRatio {
			worst, worstRatio = g, ratio
		}
	}
	return worst
}

// ProceedByOpportunityAwareEfficiency repeatedly places the unplaced guest
// and fitting host pair of the highest opportunity-aware efficiency. If no
// pair fits, the largest unplaced guest opens a new host.
func ProceedByOpportunityAwareEfficiency(capacity int, guests []*packing.Guest, hosts []*packing.Host) []*packing.Host {
	unplaced := append([]*packing.Guest{}, guests...)

	for len(unplaced) > 0 {
		var (
			bestIdx   = -1
			dst       *packing.Host
			bestScore = -1.0
			largest   = 0
		)

		for i, g := range unplaced {
			if g.PageCount() > unplaced[largest].PageCount() {
				largest = i
			}
			for j, h := range hosts {
				if !h.Accommodates(g) {
					continue
				}
				if score := opportunityAwareEfficiency(g, j, hosts); score > bestScore {
					bestIdx, dst, bestScore = i, h, score
				}
			}
		}

		if bestIdx < 0 {
			bestIdx = largest
			dst = packing.NewHost(capacity)
			hosts = append(hosts, dst)
		}

		dst.AddGuest(unplaced[bestIdx])
		unplaced = append(unplaced[:bestIdx], unplaced[bestIdx+1:]...)
	}

	return hosts
}

// opportunityAwareEfficiency scores placing the guest on hosts[idx] by the
// pages it shares with that host plus the fewest pages any other host has
// which the guest lacks, normalized by the square root of the guest size.
func opportunityAwareEfficiency(g *packing.Guest, idx int, hosts []*packing.Host) float64 {
	var (
		shared = g.PagesOn(hosts[idx])
		other  = -1
	)
	for j, h := range hosts {
		if j == idx {
			continue
		}
		if n := h.PageCountNotOn(g); other < 0 || n < other {
			other = n
		}
	}
	if other < 0 {
		other = 0
	}

	return float64(shared+other) / math.Max(1, math.Sqrt(float64(g.PageCount())))
}
