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
	"math"
	"sort"

	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/packing"
)

// ClusterTree maximizes the profit of a single host of a cluster tree
// instance by dynamic programming over node selections, bottom-up over
// the clusters. A node outside the root cluster can be selected only if
// at least one of its parents is selected. The page cost of a selection
// is the sum over clusters of the union of the selected nodes' pages.
type ClusterTree struct{}

var _ OneHost = &ClusterTree{}

// NewClusterTree creates a cluster tree maximizer.
func NewClusterTree() *ClusterTree {
	return &ClusterTree{}
}

// Name returns the name of the maximizer.
func (*ClusterTree) Name() string {
	return "cluster-tree"
}

const unreachable = math.MaxInt

// cost is the least page count found for a profit target, together with
// the leaf guests of the selection achieving it.
type cost struct {
	pages int
	sel   *selection
}

func (c cost) reachable() bool {
	return c.pages != unreachable
}

// selection is an immutable rope of selected guests. Combining two
// selections is constant time, flattening happens once at the end.
type selection struct {
	guests      []*packing.Guest
	left, right *selection
}

func join(a, b *selection) *selection {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &selection{left: a, right: b}
}

func (s *selection) flatten() []*packing.Guest {
	var (
		guests []*packing.Guest
		walk   func(*selection)
	)
	walk = func(s *selection) {
		if s == nil {
			return
		}
		guests = append(guests, s.guests...)
		walk(s.left)
		walk(s.right)
	}
	walk(s)
	return guests
}

// clusterTreeDP holds the state of a single maximization.
type clusterTreeDP struct {
	inst      *instance.ClusterTreeInstance
	profits   Profits
	capacity  int
	maxProfit int
	// tables[c][mask][p] is the least cost of selecting mask from cluster
	// c and anything accessible below it with a total profit of at least p.
	tables map[instance.ClusterID][][]cost
	// best[c][accessible] is the least cost per profit of any selection
	// from cluster c within the accessible node mask.
	best map[instance.ClusterID]map[uint64][]cost
}

// Maximize returns a host of the most profitable guests of a cluster tree
// instance.
func (m *ClusterTree) Maximize(inst packing.Instance, profits Profits) (*packing.Host, error) {
	ct, ok := inst.(*instance.ClusterTreeInstance)
	if !ok {
		return nil, fmt.Errorf("%w: cluster tree maximizer needs a cluster tree instance, got %T",
			packing.ErrUnsupportedInstance, inst)
	}

	dp := &clusterTreeDP{
		inst:      ct,
		profits:   profits,
		capacity:  ct.Capacity(),
		maxProfit: profits.Sum(ct.Guests()),
		tables:    make(map[instance.ClusterID][][]cost),
		best:      make(map[instance.ClusterID]map[uint64][]cost),
	}

	for _, c := range ct.ClusterOrder() {
		dp.solveCluster(c)
		for _, child := range ct.ClusterChildren(c) {
			delete(dp.tables, child)
			delete(dp.best, child)
		}
	}

	profit, guests := dp.answer()
	host := packing.NewHost(ct.Capacity())
	for _, g := range guests {
		host.AddGuest(g)
	}

	if host.IsOverfull() {
		m.evict(host, profits)
	}

	log.Debug("cluster tree: selected %d guests of profit %d, %d/%d pages",
		host.GuestCount(), profit, host.PageCount(), host.Capacity())

	return host, nil
}

// evict removes the least profitable guests until the host fits. This is
// needed when a leaf's guest pages are not covered by the selected nodes.
func (m *ClusterTree) evict(host *packing.Host, profits Profits) {
	guests := host.Guests()
	sort.SliceStable(guests, func(i, j int) bool {
		return profits.Of(guests[i]) < profits.Of(guests[j])
	})

	for _, g := range guests {
		if !host.IsOverfull() {
			break
		}
		log.Warn("cluster tree: evicting %s from overfull host %s", g, host)
		host.RemoveGuest(g)
	}
}

func (dp *clusterTreeDP) solveCluster(c instance.ClusterID) {
	nodes := dp.inst.ClusterNodes(c)
	if len(nodes) > instance.MaxClusterNodes {
		log.Panic("internal error: cluster #%d has %d nodes, more than %d",
			c, len(nodes), instance.MaxClusterNodes)
	}

	children := dp.inst.ClusterChildren(c)
	parentMasks := make([][]uint64, len(children))
	for j, child := range children {
		parentMasks[j] = dp.parentMasks(nodes, child)
	}

	table := make([][]cost, 1<<uint(len(nodes)))
	for mask := range table {
		row := dp.baseRow(nodes, uint64(mask))
		for j, child := range children {
			row = dp.foldChild(row, child, accessible(parentMasks[j], uint64(mask)))
		}
		table[mask] = row
	}

	dp.tables[c] = table
}

// baseRow returns the cost per profit target of selecting exactly the
// masked nodes of a cluster and nothing below it.
func (dp *clusterTreeDP) baseRow(nodes []instance.NodeID, mask uint64) []cost {
	var (
		pages  = packing.NewPageSet()
		profit int
		sel    *selection
	)

	for i, n := range nodes {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		pages.Add(dp.inst.NodePages(n).Members()...)
		if g := dp.inst.NodeGuest(n); g != nil {
			profit += dp.profits.Of(g)
			if sel == nil {
				sel = &selection{}
			}
			sel.guests = append(sel.guests, g)
		}
	}

	row := make([]cost, dp.maxProfit+1)
	for p := range row {
		if pages.Size() <= dp.capacity && profit >= p {
			row[p] = cost{pages: pages.Size(), sel: sel}
		} else {
			row[p] = cost{pages: unreachable}
		}
	}
	return row
}

// foldChild combines a row with the best selections of a child cluster
// within the accessible mask, splitting every profit target between them.
func (dp *clusterTreeDP) foldChild(row []cost, child instance.ClusterID, mask uint64) []cost {
	best := dp.bestOf(child, mask)
	next := make([]cost, len(row))
	copy(next, row)

	for p := range next {
		for split := 0; split <= p; split++ {
			prev, sub := row[p-split], best[split]
			if !prev.reachable() || !sub.reachable() {
				continue
			}
			total := prev.pages + sub.pages
			if total <= dp.capacity && total < next[p].pages {
				next[p] = cost{pages: total, sel: join(prev.sel, sub.sel)}
			}
		}
	}

	return next
}

// bestOf returns the least cost per profit of any selection from a solved
// cluster within the accessible mask.
func (dp *clusterTreeDP) bestOf(c instance.ClusterID, mask uint64) []cost {
	memo, ok := dp.best[c]
	if !ok {
		memo = make(map[uint64][]cost)
		dp.best[c] = memo
	}
	if best, ok := memo[mask]; ok {
		return best
	}

	table, ok := dp.tables[c]
	if !ok {
		log.Panic("internal error: cluster #%d not solved before its parent", c)
	}

	best := make([]cost, dp.maxProfit+1)
	for p := range best {
		best[p] = cost{pages: unreachable}
	}

	// visit every submask of the accessible mask, including the empty one
	for sub := mask; ; sub = (sub - 1) & mask {
		for p, e := range table[sub] {
			if e.pages < best[p].pages {
				best[p] = e
			}
		}
		if sub == 0 {
			break
		}
	}

	memo[mask] = best
	return best
}

// parentMasks returns for every node of the child cluster the mask of its
// parents among the given nodes.
func (dp *clusterTreeDP) parentMasks(nodes []instance.NodeID, child instance.ClusterID) []uint64 {
	index := make(map[instance.NodeID]uint, len(nodes))
	for i, n := range nodes {
		index[n] = uint(i)
	}

	childNodes := dp.inst.ClusterNodes(child)
	masks := make([]uint64, len(childNodes))
	for i, n := range childNodes {
		for _, p := range dp.inst.NodeParents(n) {
			if bit, ok := index[p]; ok {
				masks[i] |= 1 << bit
			}
		}
	}
	return masks
}

// accessible returns the mask of child nodes with a parent in the selection.
func accessible(parentMasks []uint64, selected uint64) uint64 {
	var mask uint64
	for i, parents := range parentMasks {
		if parents&selected != 0 {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// answer returns the highest reachable profit at the root cluster and the
// guests of its cheapest selection.
func (dp *clusterTreeDP) answer() (int, []*packing.Guest) {
	var (
		bestProfit = 0
		bestCost   = cost{pages: unreachable}
	)

	for mask, row := range dp.tables[instance.RootCluster] {
		for p := len(row) - 1; p >= bestProfit; p-- {
			c := row[p]
			if !c.reachable() || c.pages > dp.capacity {
				continue
			}
			if p > bestProfit || c.pages < bestCost.pages {
				bestProfit, bestCost = p, c
			}
			if log.DebugEnabled() && p > 0 {
				log.Debug("cluster tree: root mask %0*b reaches profit %d with %d pages",
					len(dp.inst.ClusterNodes(instance.RootCluster)), mask, p, c.pages)
			}
			break
		}
	}

	if !bestCost.reachable() {
		return 0, nil
	}

	guests := bestCost.sel.flatten()
	sort.Slice(guests, func(i, j int) bool {
		return guests[i].ID() < guests[j].ID()
	})
	return bestProfit, guests
}

