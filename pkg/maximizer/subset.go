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
	"fmt"
	"sort"

	"github.com/smich42/vmpacking/pkg/packing"
)

// MaxSubsetSize is the largest supported initial subset size.
const MaxSubsetSize = 4

// SubsetEfficiency greedily fills a host with the most efficient subsets
// of guests. The efficiency of a subset is its total profit divided by one
// plus the number of pages it adds to the host. Subsets of SubsetSize
// guests are tried first. When none of them fits, smaller subsets are
// tried, and the smaller size is kept for the rest of the run.
type SubsetEfficiency struct {
	subsetSize int
}

var _ OneHost = &SubsetEfficiency{}

// NewSubsetEfficiency creates a subset efficiency maximizer with the
// given initial subset size.
func NewSubsetEfficiency(subsetSize int) (*SubsetEfficiency, error) {
	if subsetSize < 1 || subsetSize > MaxSubsetSize {
		return nil, fmt.Errorf("%w: subset size %d out of range [1, %d]",
			packing.ErrInvalidParameter, subsetSize, MaxSubsetSize)
	}
	return &SubsetEfficiency{subsetSize: subsetSize}, nil
}

// Name returns the name of the maximizer.
func (m *SubsetEfficiency) Name() string {
	return fmt.Sprintf("subset-efficiency(%d)", m.subsetSize)
}

// SubsetSize returns the initial subset size.
func (m *SubsetEfficiency) SubsetSize() int {
	return m.subsetSize
}

// Maximize fills a host with guests of positive profit.
func (m *SubsetEfficiency) Maximize(inst packing.Instance, profits Profits) (*packing.Host, error) {
	var (
		host     = packing.NewHost(inst.Capacity())
		unplaced = make([]*packing.Guest, 0, len(inst.Guests()))
	)

	for _, g := range inst.Guests() {
		if profits.Of(g) > 0 {
			unplaced = append(unplaced, g)
		}
	}
	sort.SliceStable(unplaced, func(i, j int) bool {
		return unplaced[i].ID() < unplaced[j].ID()
	})

	size := m.subsetSize
	for size > 0 {
		best := findMostEfficient(host, unplaced, size, profits)
		if best == nil {
			size--
			continue
		}

		picked := make(map[packing.GuestID]struct{}, len(best))
		for _, g := range best {
			host.AddGuest(g)
			picked[g.ID()] = struct{}{}
		}

		remaining := unplaced[:0]
		for _, g := range unplaced {
			if _, ok := picked[g.ID()]; !ok {
				remaining = append(remaining, g)
			}
		}
		unplaced = remaining

		if log.DebugEnabled() {
			log.Debug("subset efficiency: placed %v, %d guests left, subset size %d",
				packing.GuestIDs(best), len(unplaced), size)
		}
	}

	return host, nil
}

// findMostEfficient returns the fitting subset of the given size with the
// highest strictly positive efficiency, or nil if there is none.
func findMostEfficient(host *packing.Host, pool []*packing.Guest, size int, profits Profits) []*packing.Guest {
	var (
		best      []*packing.Guest
		bestScore float64
		subset    = make([]*packing.Guest, size)
	)

	forEachCombination(len(pool), size, func(idx []int) {
		for i, j := range idx {
			subset[i] = pool[j]
		}
		if !host.AccommodatesAll(subset) {
			return
		}

		added := host.PageCountWithAll(subset) - host.PageCount()
		score := float64(profits.Sum(subset)) / float64(1+added)
		if score > bestScore {
			bestScore = score
			best = append(best[:0], subset...)
		}
	})

	return best
}

// forEachCombination calls fn for every size-k combination of [0, n) in
// lexicographic order. The slice passed to fn is reused between calls.
func forEachCombination(n, k int, fn func([]int)) {
	if k <= 0 || k > n {
		return
	}

	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for {
		fn(idx)

		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
