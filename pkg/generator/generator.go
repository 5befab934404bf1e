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
// Package generator creates random sample instances as documents the
// loader can read back. Generation is deterministic for a given seed.
package generator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"

	"sigs.k8s.io/yaml"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/packing"
)

// Document is a generated instance, keyed by the loader field names.
type Document map[string]interface{}

// JSON returns the indented JSON form of the document.
func (d Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// YAML returns the YAML form of the document.
func (d Document) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// Params controls the shape of generated instances.
type Params struct {
	// Guests is the number of guests.
	Guests int
	// Pages is the number of distinct pages to draw from.
	Pages int
	// MinDegree and MaxDegree bound the fan-out of inner tree nodes.
	MinDegree int
	MaxDegree int
	// ClusterNodes is the number of inner nodes per cluster.
	ClusterNodes int
	// MaxClusterDegree bounds the number of child clusters.
	MaxClusterDegree int
	// MaxNodePages bounds the pages owned by a cluster tree node.
	MaxNodePages int
}

const (
	// MaxClusterNodes bounds Params.ClusterNodes.
	MaxClusterNodes = 16
)

// DefaultParams returns the default generation parameters.
func DefaultParams() Params {
	return Params{
		Guests:           40,
		Pages:            40,
		MinDegree:        2,
		MaxDegree:        4,
		ClusterNodes:     2,
		MaxClusterDegree: 9,
		MaxNodePages:     5,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.Guests < 1:
		return fmt.Errorf("%w: need at least one guest, got %d", packing.ErrInvalidParameter, p.Guests)
	case p.Pages < 0:
		return fmt.Errorf("%w: negative page count %d", packing.ErrInvalidParameter, p.Pages)
	case p.MinDegree < 2 || p.MaxDegree < p.MinDegree:
		return fmt.Errorf("%w: invalid tree degree range [%d, %d]", packing.ErrInvalidParameter,
			p.MinDegree, p.MaxDegree)
	case p.ClusterNodes < 1 || p.ClusterNodes > MaxClusterNodes:
		return fmt.Errorf("%w: cluster node count %d out of range [1, %d]",
			packing.ErrInvalidParameter, p.ClusterNodes, MaxClusterNodes)
	case p.MaxClusterDegree < 2:
		return fmt.Errorf("%w: cluster degree %d below 2", packing.ErrInvalidParameter,
			p.MaxClusterDegree)
	case p.MaxNodePages < 0 || p.MaxNodePages > p.Pages:
		return fmt.Errorf("%w: node page bound %d out of range [0, %d]",
			packing.ErrInvalidParameter, p.MaxNodePages, p.Pages)
	}
	return nil
}

// Generator creates random instance documents.
type Generator struct {
	rng    *rand.Rand
	fields cfgapi.LoaderConfig
	nodeID int
}

// New creates a generator seeded with seed, writing documents with the
// field names of cfg. A nil cfg means the default field names.
func New(seed int64, cfg *cfgapi.LoaderConfig) *Generator {
	g := &Generator{
		rng: rand.New(rand.NewSource(seed)),
	}
	if cfg != nil {
		g.fields = *cfg
	}
	g.fields.SetDefaults()
	return g
}

// Generate creates an instance document of the given format.
func (g *Generator) Generate(format cfgapi.Format, p Params) (Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch format {
	case cfgapi.FormatGeneral:
		return g.general(p), nil
	case cfgapi.FormatTree:
		return g.tree(p), nil
	case cfgapi.FormatClusterTree:
		return g.clusterTree(p), nil
	}

	return nil, fmt.Errorf("%w: unknown instance format %q", packing.ErrInvalidParameter, format)
}

// General creates a flat instance.
func (g *Generator) General(p Params) (Document, error) {
	return g.Generate(cfgapi.FormatGeneral, p)
}

// Tree creates a tree instance.
func (g *Generator) Tree(p Params) (Document, error) {
	return g.Generate(cfgapi.FormatTree, p)
}

// ClusterTree creates a cluster tree instance.
func (g *Generator) ClusterTree(p Params) (Document, error) {
	return g.Generate(cfgapi.FormatClusterTree, p)
}

// guestPages hands every page to a random non-empty subset of the guests.
func (g *Generator) guestPages(pages, guests int) []packing.PageSet {
	result := make([]packing.PageSet, guests)
	for i := range result {
		result[i] = packing.NewPageSet()
	}
	for page := 0; page < pages; page++ {
		n := 1 + g.rng.Intn(guests)
		for _, i := range g.rng.Perm(guests)[:n] {
			result[i].Add(page)
		}
	}
	return result
}

func (g *Generator) general(p Params) Document {
	var (
		guestPages = g.guestPages(p.Pages, p.Guests)
		guests     = make([][]int, 0, len(guestPages))
	)
	for _, pages := range guestPages {
		guests = append(guests, sorted(pages))
	}
	return Document{
		g.fields.CapacityField: largest(guestPages),
		g.fields.GuestsField:   guests,
	}
}

func (g *Generator) tree(p Params) Document {
	var (
		unplaced  = g.guestPages(p.Pages, p.Guests)
		ancestors = make([]packing.PageSet, p.Guests)
		guests    = make([]int, p.Guests)
		capacity  = largest(unplaced)
	)
	for i := range guests {
		guests[i] = i
		ancestors[i] = packing.NewPageSet()
	}

	doc := g.treeNode(guests, unplaced, ancestors, p)
	doc[g.fields.CapacityField] = capacity

	return doc
}

// treeNode moves the pages common to all guests into a new node, then
// splits the guests randomly among its children.
func (g *Generator) treeNode(guests []int, unplaced, ancestors []packing.PageSet, p Params) Document {
	if len(guests) == 1 {
		i := guests[0]
		pages := unplaced[i].Clone()
		pages.Del(ancestors[i].Members()...)
		guestPages := ancestors[i].Clone()
		guestPages.Add(unplaced[i].Members()...)
		return Document{
			g.fields.PagesField:      sorted(pages),
			g.fields.GuestPagesField: sorted(guestPages),
		}
	}

	shared := unplaced[guests[0]].Clone()
	for _, i := range guests[1:] {
		for _, page := range shared.Members() {
			if !unplaced[i].Has(page) {
				shared.Del(page)
			}
		}
	}
	for _, i := range guests {
		ancestors[i].Add(shared.Members()...)
		unplaced[i].Del(shared.Members()...)
	}

	degree := min(len(guests), p.MinDegree+g.rng.Intn(p.MaxDegree-p.MinDegree+1))
	shuffled := append([]int{}, guests...)
	g.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	groups := make([][]int, degree)
	for i, guest := range shuffled {
		groups[i%degree] = append(groups[i%degree], guest)
	}

	children := make([]Document, 0, degree)
	for _, group := range groups {
		children = append(children, g.treeNode(group, unplaced, ancestors, p))
	}

	return Document{
		g.fields.PagesField:    sorted(shared),
		g.fields.ChildrenField: children,
	}
}

type genNode struct {
	id        int
	pages     packing.PageSet
	ancestors packing.PageSet
	parents   []int
}

func (g *Generator) clusterTree(p Params) Document {
	doc, capacity := g.cluster(p.Guests, p.ClusterNodes, p.MaxClusterDegree, nil, p)
	doc[g.fields.CapacityField] = capacity
	return doc
}

// cluster creates a cluster subtree holding the given number of guests,
// returning it with the largest guest size in it.
func (g *Generator) cluster(guests, nodeCount, degree int, parents []*genNode, p Params) (Document, int) {
	degree = min(guests, degree)

	if guests == 1 {
		n := g.node(parents, g.rng.Intn(p.MaxNodePages+1), p.Pages)
		guestPages := n.pages.Clone()
		guestPages.Add(n.ancestors.Members()...)
		leaf := g.nodeDocument(n)
		leaf[g.fields.GuestPagesField] = sorted(guestPages)
		return Document{
			g.fields.NodesField:           []Document{leaf},
			g.fields.ClusterChildrenField: []Document{},
		}, guestPages.Size()
	}

	var (
		nodes    = make([]*genNode, 0, nodeCount)
		docs     = make([]Document, 0, nodeCount)
		children = make([]Document, 0, degree)
		capacity = 0
	)
	for i := 0; i < nodeCount; i++ {
		n := g.node(parents, g.rng.Intn(p.MaxNodePages+1), p.Pages)
		nodes = append(nodes, n)
		docs = append(docs, g.nodeDocument(n))
	}

	for i := 0; i < degree; i++ {
		count := guests / degree
		if i < guests%degree {
			count++
		}
		child, size := g.cluster(count, min(count, nodeCount), min(count, degree), nodes, p)
		children = append(children, child)
		capacity = max(capacity, size)
	}

	return Document{
		g.fields.NodesField:           docs,
		g.fields.ClusterChildrenField: children,
	}, capacity
}

// node creates a node of target fresh pages under as many of the parents
// as leave enough pages unused by their ancestry. If no parent selection
// does, the node takes all pages left by the most permissive one.
func (g *Generator) node(parents []*genNode, target, pageCount int) *genNode {
	g.nodeID++
	n := &genNode{
		id:        g.nodeID,
		ancestors: packing.NewPageSet(),
	}

	if len(parents) == 0 {
		n.pages = packing.NewPageSet(g.sample(allPages(pageCount), target)...)
		return n
	}

	var (
		best     []packing.PageID
		bestAnc  packing.PageSet
		bestPIDs []int
		found    bool
	)
	for k := len(parents); k >= 1 && !found; k-- {
		combinations(len(parents), k, func(idx []int) bool {
			inherited := packing.NewPageSet()
			ids := make([]int, 0, len(idx))
			for _, i := range idx {
				inherited.Add(parents[i].pages.Members()...)
				inherited.Add(parents[i].ancestors.Members()...)
				ids = append(ids, parents[i].id)
			}

			var available []packing.PageID
			for page := 0; page < pageCount; page++ {
				if !inherited.Has(page) {
					available = append(available, page)
				}
			}

			if target > len(available) {
				if bestAnc == nil || len(available) > len(best) {
					best, bestAnc, bestPIDs = available, inherited, ids
				}
				return true
			}

			n.pages = packing.NewPageSet(g.sample(available, target)...)
			n.ancestors = inherited
			n.parents = ids
			found = true
			return false
		})
	}

	if !found {
		n.pages = packing.NewPageSet(best...)
		n.ancestors = bestAnc
		n.parents = bestPIDs
	}

	return n
}

func (g *Generator) nodeDocument(n *genNode) Document {
	parents := append([]int{}, n.parents...)
	return Document{
		g.fields.NodeIDField:      n.id,
		g.fields.NodePagesField:   sorted(n.pages),
		g.fields.NodeParentsField: parents,
	}
}

func (g *Generator) sample(from []packing.PageID, n int) []packing.PageID {
	picked := make([]packing.PageID, 0, n)
	for _, i := range g.rng.Perm(len(from))[:n] {
		picked = append(picked, from[i])
	}
	return picked
}

// combinations calls fn with every k-subset of [0, n) in lexicographic
// order until fn returns false.
func combinations(n, k int, fn func([]int) bool) {
	idx := make([]int, k)
	var rec func(start, depth int) bool
	rec = func(start, depth int) bool {
		if depth == k {
			return fn(idx)
		}
		for i := start; i <= n-(k-depth); i++ {
			idx[depth] = i
			if !rec(i+1, depth+1) {
				return false
			}
		}
		return true
	}
	rec(0, 0)
}

func allPages(n int) []packing.PageID {
	pages := make([]packing.PageID, n)
	for i := range pages {
		pages[i] = i
	}
	return pages
}

func largest(sets []packing.PageSet) int {
	size := 0
	for _, s := range sets {
		size = max(size, s.Size())
	}
	return size
}

func sorted(pages packing.PageSet) []int {
	members := pages.Members()
	result := make([]int, 0, len(members))
	for _, p := range members {
		result = append(result, p)
	}
	sort.Ints(result)
	return result
}
