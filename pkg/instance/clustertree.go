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

	"github.com/smich42/vmpacking/pkg/packing"
)

// ClusterID identifies a cluster of a cluster tree instance.
type ClusterID int

const (
	// RootCluster is the root of every cluster tree instance.
	RootCluster ClusterID = 0
	// NoCluster is the parent of the root cluster.
	NoCluster ClusterID = -1
	// MaxClusterNodes is the largest number of nodes in a single cluster,
	// so that any selection of them fits in a 64-bit mask.
	MaxClusterNodes = 63
)

// ClusterTreeInstance is a tree of clusters of nodes. Every node owns a
// set of pages. Nodes outside the root cluster have one or more parent
// nodes in the parent cluster, so the nodes form a DAG. Leaf nodes carry
// guests.
type ClusterTreeInstance struct {
	capacity int
	clusters []*cluster
	nodes    []*clusterNode
	guests   []*packing.Guest
}

type cluster struct {
	parent   ClusterID
	children []ClusterID
	nodes    []NodeID
}

type clusterNode struct {
	cluster ClusterID
	parents []NodeID
	pages   packing.PageSet
	guest   *packing.Guest
}

var _ packing.Instance = &ClusterTreeInstance{}

// NewClusterTreeInstance creates a cluster tree with an empty root cluster.
func NewClusterTreeInstance(capacity int) *ClusterTreeInstance {
	return &ClusterTreeInstance{
		capacity: capacity,
		clusters: []*cluster{{parent: NoCluster}},
	}
}

// AddCluster adds an empty cluster under the parent cluster.
func (t *ClusterTreeInstance) AddCluster(parent ClusterID) (ClusterID, error) {
	if !t.validCluster(parent) {
		return NoCluster, fmt.Errorf("%w: unknown parent cluster #%d", ErrInvalidCluster, parent)
	}
	id := ClusterID(len(t.clusters))
	t.clusters = append(t.clusters, &cluster{parent: parent})
	t.clusters[parent].children = append(t.clusters[parent].children, id)
	return id, nil
}

// AddInner adds an inner node of the given pages to the cluster.
func (t *ClusterTreeInstance) AddInner(c ClusterID, parents []NodeID, pages packing.PageSet) (NodeID, error) {
	if err := t.checkNode(c, parents); err != nil {
		return NoNode, err
	}
	return t.addNode(c, parents, pages, nil), nil
}

// AddLeaf adds a leaf node of the given pages to the cluster, carrying a
// guest of the given guest pages. If guestPages is nil the guest needs the
// pages of the leaf and all its ancestors.
func (t *ClusterTreeInstance) AddLeaf(c ClusterID, parents []NodeID, pages, guestPages packing.PageSet) (NodeID, error) {
	if err := t.checkNode(c, parents); err != nil {
		return NoNode, err
	}

	if guestPages == nil {
		guestPages = packing.NewPageSet()
		if pages != nil {
			guestPages.Add(pages.Members()...)
		}
		for _, a := range t.ancestors(parents) {
			guestPages.Add(t.nodes[a].pages.Members()...)
		}
	}

	g := packing.NewGuest(packing.GuestID(len(t.guests)), guestPages)
	t.guests = append(t.guests, g)

	return t.addNode(c, parents, pages, g), nil
}

func (t *ClusterTreeInstance) addNode(c ClusterID, parents []NodeID, pages packing.PageSet, g *packing.Guest) NodeID {
	if pages == nil {
		pages = packing.NewPageSet()
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &clusterNode{
		cluster: c,
		parents: append([]NodeID{}, parents...),
		pages:   pages.Clone(),
		guest:   g,
	})
	t.clusters[c].nodes = append(t.clusters[c].nodes, id)
	return id
}

func (t *ClusterTreeInstance) checkNode(c ClusterID, parents []NodeID) error {
	if !t.validCluster(c) {
		return fmt.Errorf("%w: unknown cluster #%d", ErrInvalidCluster, c)
	}
	if len(t.clusters[c].nodes) >= MaxClusterNodes {
		return fmt.Errorf("%w: cluster #%d already has %d nodes", ErrTooManyNodes, c,
			MaxClusterNodes)
	}

	parentCluster := t.clusters[c].parent
	if parentCluster == NoCluster {
		if len(parents) > 0 {
			return fmt.Errorf("%w: node in root cluster with parents", ErrInvalidNode)
		}
		return nil
	}

	if len(parents) == 0 {
		return fmt.Errorf("%w: node in cluster #%d without parents", ErrInvalidNode, c)
	}
	for _, p := range parents {
		if !t.validNode(p) {
			return fmt.Errorf("%w: unknown parent node #%d", ErrInvalidNode, p)
		}
		if t.nodes[p].cluster != parentCluster {
			return fmt.Errorf("%w: parent node #%d not in parent cluster #%d",
				ErrInvalidNode, p, parentCluster)
		}
		if t.nodes[p].guest != nil {
			return fmt.Errorf("%w: parent node #%d is a leaf", ErrInvalidNode, p)
		}
	}

	return nil
}

func (t *ClusterTreeInstance) validCluster(c ClusterID) bool {
	return c >= 0 && int(c) < len(t.clusters)
}

func (t *ClusterTreeInstance) validNode(n NodeID) bool {
	return n >= 0 && int(n) < len(t.nodes)
}

// ancestors returns the given nodes and all their ancestors.
func (t *ClusterTreeInstance) ancestors(nodes []NodeID) []NodeID {
	var (
		seen   = make(map[NodeID]struct{})
		result []NodeID
		queue  = append([]NodeID{}, nodes...)
	)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
		queue = append(queue, t.nodes[n].parents...)
	}
	return result
}

// Capacity returns the page capacity of every host.
func (t *ClusterTreeInstance) Capacity() int {
	return t.capacity
}

// Guests returns the guests of the instance, ordered by id.
func (t *ClusterTreeInstance) Guests() []*packing.Guest {
	return t.guests
}

// ClusterCount returns the number of clusters.
func (t *ClusterTreeInstance) ClusterCount() int {
	return len(t.clusters)
}

// ClusterParent returns the parent of the cluster, NoCluster for the root.
func (t *ClusterTreeInstance) ClusterParent(c ClusterID) ClusterID {
	return t.clusters[c].parent
}

// ClusterChildren returns the child clusters of the cluster.
func (t *ClusterTreeInstance) ClusterChildren(c ClusterID) []ClusterID {
	return t.clusters[c].children
}

// ClusterNodes returns the nodes of the cluster in insertion order.
func (t *ClusterTreeInstance) ClusterNodes(c ClusterID) []NodeID {
	return t.clusters[c].nodes
}

// NodeCount returns the number of nodes.
func (t *ClusterTreeInstance) NodeCount() int {
	return len(t.nodes)
}

// NodeCluster returns the cluster of the node.
func (t *ClusterTreeInstance) NodeCluster(n NodeID) ClusterID {
	return t.nodes[n].cluster
}

// NodeParents returns the parent nodes of the node.
func (t *ClusterTreeInstance) NodeParents(n NodeID) []NodeID {
	return t.nodes[n].parents
}

// NodePages returns the own pages of the node.
func (t *ClusterTreeInstance) NodePages(n NodeID) packing.PageSet {
	return t.nodes[n].pages
}

// NodeGuest returns the guest of a leaf node, or nil.
func (t *ClusterTreeInstance) NodeGuest(n NodeID) *packing.Guest {
	return t.nodes[n].guest
}

// IsLeaf returns true if the node carries a guest.
func (t *ClusterTreeInstance) IsLeaf(n NodeID) bool {
	return t.nodes[n].guest != nil
}

// Leaves returns all leaf nodes in insertion order.
func (t *ClusterTreeInstance) Leaves() []NodeID {
	var leaves []NodeID
	for id, n := range t.nodes {
		if n.guest != nil {
			leaves = append(leaves, NodeID(id))
		}
	}
	return leaves
}

// ClusterOrder returns the clusters in bottom-up order: every cluster
// comes after all of its child clusters. Clusters become ready in the
// order their last child is resolved.
func (t *ClusterTreeInstance) ClusterOrder() []ClusterID {
	var (
		pending = make([]int, len(t.clusters))
		ready   []ClusterID
		order   = make([]ClusterID, 0, len(t.clusters))
	)

	for id, c := range t.clusters {
		pending[id] = len(c.children)
		if pending[id] == 0 {
			ready = append(ready, ClusterID(id))
		}
	}

	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		order = append(order, c)
		if p := t.clusters[c].parent; p != NoCluster {
			if pending[p]--; pending[p] == 0 {
				ready = append(ready, p)
			}
		}
	}

	return order
}
