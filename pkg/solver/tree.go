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
	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/packing"
)

// bound is a lower bound on the pages and hosts a subtree needs.
type bound struct {
	size  int
	count int
}

// SolveByTree packs a tree instance greedily subtree by subtree. While
// the whole remaining tree needs more than one host, it packs the subtree
// needing the fewest hosts among those whose children all fit a single
// host, using the intermediate solver, and removes it from the tree.
func SolveByTree(inst *instance.TreeInstance, opts ...Option) (*packing.Packing, error) {
	o := newOptions(opts...)

	if err := packing.CheckFeasible(inst); err != nil {
		return nil, err
	}

	var (
		work  = inst.Clone()
		hosts []*packing.Host
	)

	for {
		bounds := lowerBounds(work)

		if bounds[instance.RootNode].count <= 1 {
			hosts = o.intermediate(work.Capacity(), work.Guests(), hosts)
			break
		}

		node := instance.NoNode
		for _, n := range work.Nodes() {
			b := bounds[n]
			if b.count <= 1 {
				continue
			}
			if node != instance.NoNode && b.count >= bounds[node].count {
				continue
			}
			if !childrenFitOneHost(work, n, bounds) {
				continue
			}
			node = n
		}

		if node == instance.NoNode {
			log.Panic("internal error: no subtree to pack in tree of %d guests",
				work.SubtreeGuestCount(instance.RootNode))
		}

		log.Debug("tree: packing subtree of node #%d, %d guests, bound %d hosts",
			node, work.SubtreeGuestCount(node), bounds[node].count)

		hosts = o.intermediate(work.Capacity(), work.SubtreeGuests(node), hosts)

		if node == instance.RootNode {
			break
		}
		if err := work.RemoveSubtree(node); err != nil {
			log.Panic("internal error: %v", err)
		}
	}

	p := packing.NewPacking(hosts)
	p.DropEmptyHosts()
	if o.decant {
		p.Decant()
	}

	if log.DebugEnabled() {
		p.Dump("tree: ")
	}

	return p, nil
}

func childrenFitOneHost(t *instance.TreeInstance, n instance.NodeID, bounds map[instance.NodeID]bound) bool {
	for _, c := range t.NodeChildren(n) {
		if bounds[c].count > 1 {
			return false
		}
	}
	return true
}

// lowerBounds returns the size and host count bounds of every node of the
// tree. A leaf needs its own pages on one host. An inner node with guests
// below it needs at least ⌈Σ child size / (capacity − own pages)⌉ hosts,
// each carrying its own pages.
func lowerBounds(t *instance.TreeInstance) map[instance.NodeID]bound {
	var (
		bounds   = make(map[instance.NodeID]bound)
		capacity = t.Capacity()
		visit    func(instance.NodeID) bound
	)

	visit = func(n instance.NodeID) bound {
		own := t.NodePages(n).Size()

		if t.IsLeaf(n) {
			b := bound{size: own, count: 1}
			bounds[n] = b
			return b
		}

		sum := 0
		for _, c := range t.NodeChildren(n) {
			sum += visit(c).size
		}

		count := 0
		if guests := t.SubtreeGuestCount(n); guests > 0 {
			if room := capacity - own; room > 0 {
				count = max(1, (sum+room-1)/room)
			} else {
				count = guests
			}
		}

		b := bound{size: sum + count*own, count: count}
		bounds[n] = b
		return b
	}

	visit(instance.RootNode)
	return bounds
}
