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

package instance

import (
	"fmt"
	"sort"

	"github.com/smich42/vmpacking/pkg/packing"
)

// NodeID identifies a node of a tree or cluster tree instance.
type NodeID int

const (
	// RootNode is the root of every tree instance.
	RootNode NodeID = 0
	// NoNode is the parent of the root node.
	NoNode NodeID = -1
)

// TreeInstance is a rooted tree of sharing scopes. Every node owns a set
// of pages contributed to all its descendants and leaves carry guests.
// Every node caches the guests of its subtree.
type TreeInstance struct {
	capacity int
	nodes    []*treeNode
	guests   []*packing.Guest
}

type treeNode struct {
	parent   NodeID
	children []NodeID
	pages    packing.PageSet
	guest    *packing.Guest
	subtree  map[packing.GuestID]*packing.Guest
	removed  bool
}

var _ packing.Instance = &TreeInstance{}

// NewTreeInstance creates a tree instance with a root of the given pages.
func NewTreeInstance(capacity int, rootPages packing.PageSet) *TreeInstance {
	return &TreeInstance{
		capacity: capacity,
		nodes:    []*treeNode{newTreeNode(NoNode, rootPages, nil)},
	}
}

func newTreeNode(parent NodeID, pages packing.PageSet, guest *packing.Guest) *treeNode {
	if pages == nil {
		pages = packing.NewPageSet()
	}
	return &treeNode{
		parent:  parent,
		pages:   pages.Clone(),
		guest:   guest,
		subtree: make(map[packing.GuestID]*packing.Guest),
	}
}

// AddInner adds an inner node of the given pages under the parent.
func (t *TreeInstance) AddInner(parent NodeID, pages packing.PageSet) (NodeID, error) {
	if err := t.checkParent(parent); err != nil {
		return NoNode, err
	}
	return t.addNode(newTreeNode(parent, pages, nil)), nil
}

// AddLeaf adds a leaf node of the given pages under the parent, carrying
// a guest of the given guest pages. If guestPages is nil the guest needs
// the pages of the leaf and all its ancestors.
func (t *TreeInstance) AddLeaf(parent NodeID, pages, guestPages packing.PageSet) (NodeID, error) {
	if err := t.checkParent(parent); err != nil {
		return NoNode, err
	}

	if guestPages == nil {
		guestPages = packing.NewPageSet()
		if pages != nil {
			guestPages.Add(pages.Members()...)
		}
		for n := parent; n != NoNode; n = t.nodes[n].parent {
			guestPages.Add(t.nodes[n].pages.Members()...)
		}
	}

	g := packing.NewGuest(packing.GuestID(len(t.guests)), guestPages)
	t.guests = append(t.guests, g)

	id := t.addNode(newTreeNode(parent, pages, g))
	for n := id; n != NoNode; n = t.nodes[n].parent {
		t.nodes[n].subtree[g.ID()] = g
	}

	return id, nil
}

func (t *TreeInstance) addNode(node *treeNode) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node)
	t.nodes[node.parent].children = append(t.nodes[node.parent].children, id)
	return id
}

func (t *TreeInstance) checkParent(parent NodeID) error {
	if !t.valid(parent) {
		return fmt.Errorf("%w: unknown parent node #%d", ErrInvalidNode, parent)
	}
	if t.nodes[parent].guest != nil {
		return fmt.Errorf("%w: parent node #%d is a leaf", ErrInvalidNode, parent)
	}
	return nil
}

func (t *TreeInstance) valid(n NodeID) bool {
	return n >= 0 && int(n) < len(t.nodes) && !t.nodes[n].removed
}

func (t *TreeInstance) node(n NodeID) *treeNode {
	if !t.valid(n) {
		log.Panic("internal error: invalid tree node #%d", n)
	}
	return t.nodes[n]
}

// Capacity returns the page capacity of every host.
func (t *TreeInstance) Capacity() int {
	return t.capacity
}

// Guests returns the guests remaining in the tree, ordered by id.
func (t *TreeInstance) Guests() []*packing.Guest {
	return t.SubtreeGuests(RootNode)
}

// SubtreeGuests returns the guests in the subtree of the node, ordered by id.
func (t *TreeInstance) SubtreeGuests(n NodeID) []*packing.Guest {
	subtree := t.node(n).subtree
	guests := make([]*packing.Guest, 0, len(subtree))
	for _, g := range subtree {
		guests = append(guests, g)
	}
	sort.Slice(guests, func(i, j int) bool {
		return guests[i].ID() < guests[j].ID()
	})
	return guests
}

// SubtreeGuestCount returns the number of guests in the subtree of the node.
func (t *TreeInstance) SubtreeGuestCount(n NodeID) int {
	return len(t.node(n).subtree)
}

// NodeParent returns the parent of the node, NoNode for the root.
func (t *TreeInstance) NodeParent(n NodeID) NodeID {
	return t.node(n).parent
}

// NodeChildren returns the children of the node.
func (t *TreeInstance) NodeChildren(n NodeID) []NodeID {
	return t.node(n).children
}

// NodePages returns the own pages of the node.
func (t *TreeInstance) NodePages(n NodeID) packing.PageSet {
	return t.node(n).pages
}

// NodeGuest returns the guest of a leaf node, or nil.
func (t *TreeInstance) NodeGuest(n NodeID) *packing.Guest {
	return t.node(n).guest
}

// IsLeaf returns true if the node carries a guest.
func (t *TreeInstance) IsLeaf(n NodeID) bool {
	return t.node(n).guest != nil
}

// Nodes returns the nodes remaining in the tree in depth-first pre-order.
func (t *TreeInstance) Nodes() []NodeID {
	var (
		nodes []NodeID
		visit func(NodeID)
	)
	visit = func(n NodeID) {
		nodes = append(nodes, n)
		for _, c := range t.nodes[n].children {
			visit(c)
		}
	}
	visit(RootNode)
	return nodes
}

// NodeCount returns the number of nodes remaining in the tree.
func (t *TreeInstance) NodeCount() int {
	return len(t.Nodes())
}

// RemoveSubtree removes the node and its descendants, purging their guests
// from the caches of all ancestors. Removing the root removes all of its
// descendants but keeps the root itself.
func (t *TreeInstance) RemoveSubtree(n NodeID) error {
	if !t.valid(n) {
		return fmt.Errorf("%w: unknown node #%d", ErrInvalidNode, n)
	}

	if n == RootNode {
		for _, c := range append([]NodeID{}, t.nodes[RootNode].children...) {
			if err := t.RemoveSubtree(c); err != nil {
				return err
			}
		}
		return nil
	}

	node := t.nodes[n]
	for a := node.parent; a != NoNode; a = t.nodes[a].parent {
		for id := range node.subtree {
			delete(t.nodes[a].subtree, id)
		}
	}

	parent := t.nodes[node.parent]
	for i, c := range parent.children {
		if c == n {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}

	var mark func(NodeID)
	mark = func(m NodeID) {
		t.nodes[m].removed = true
		for _, c := range t.nodes[m].children {
			mark(c)
		}
	}
	mark(n)

	return nil
}

// Clone returns a working copy of the tree sharing the read-only guests.
func (t *TreeInstance) Clone() *TreeInstance {
	c := &TreeInstance{
		capacity: t.capacity,
		nodes:    make([]*treeNode, len(t.nodes)),
		guests:   t.guests,
	}
	for i, n := range t.nodes {
		cn := *n
		cn.children = append([]NodeID{}, n.children...)
		cn.subtree = make(map[packing.GuestID]*packing.Guest, len(n.subtree))
		for id, g := range n.subtree {
			cn.subtree[id] = g
		}
		c.nodes[i] = &cn
	}
	return c
}
