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

package packing

import (
	"sort"
)

// Partitioner splits the guests of a host into groups which are moved
// between hosts as a unit.
type Partitioner func(guests []*Guest) [][]*Guest

// WholePartitioner keeps all guests in a single group.
func WholePartitioner(guests []*Guest) [][]*Guest {
	if len(guests) == 0 {
		return nil
	}
	return [][]*Guest{guests}
}

// SingletonPartitioner puts every guest in a group of its own.
func SingletonPartitioner(guests []*Guest) [][]*Guest {
	parts := make([][]*Guest, 0, len(guests))
	for _, g := range guests {
		parts = append(parts, []*Guest{g})
	}
	return parts
}

// ComponentPartitioner groups guests by the connected components of their
// share graph: two guests are connected if they have a page in common.
func ComponentPartitioner(guests []*Guest) [][]*Guest {
	var (
		parent = make([]int, len(guests))
		owner  = make(map[PageID]int)
	)

	for i := range parent {
		parent[i] = i
	}

	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i, g := range guests {
		for p := range g.pages {
			j, ok := owner[p]
			if !ok {
				owner[p] = i
				continue
			}
			if ri, rj := find(i), find(j); ri != rj {
				if ri < rj {
					parent[rj] = ri
				} else {
					parent[ri] = rj
				}
			}
		}
	}

	byRoot := make(map[int][]*Guest)
	for i, g := range guests {
		r := find(i)
		byRoot[r] = append(byRoot[r], g)
	}

	roots := make([]int, 0, len(byRoot))
	for r := range byRoot {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	parts := make([][]*Guest, 0, len(roots))
	for _, r := range roots {
		parts = append(parts, byRoot[r])
	}

	return parts
}

// DefaultPartitioners returns the partitioners used for decanting, from
// the coarsest to the finest.
func DefaultPartitioners() []Partitioner {
	return []Partitioner{
		WholePartitioner,
		ComponentPartitioner,
		SingletonPartitioner,
	}
}
