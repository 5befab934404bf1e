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
// Package loader reads packing instances from JSON or YAML documents.
//
// A document holds a single instance object or an array of them. The
// keys looked up in instance objects are taken from the loader
// configuration, so files produced by other tools can be read without
// conversion. The supported shapes, with default keys, are:
//
//	general:      {"capacity": n, "guests": [[pages...], ...]}
//	tree:         {"capacity": n, "pages": [...], "children": [node...]}
//	cluster-tree: {"capacity": n, "nodes": [node...], "cluster_children": [cluster...]}
//
// Tree nodes carry "pages" and either "children" or "guest_pages". A
// childless tree node without "guest_pages" is a leaf whose guest needs
// the pages along its root path. Cluster tree nodes carry "node_id",
// "node_pages", "node_parents" and, for leaves, "guest_pages".
package loader

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/packing"
)

var (
	// ErrInvalidInput is returned for malformed instance documents.
	ErrInvalidInput = fmt.Errorf("vmpack: invalid instance input")
)

// Loader reads instances of one format.
type Loader struct {
	cfg cfgapi.LoaderConfig
}

// New creates a loader for the given configuration. A nil configuration
// means the defaults.
func New(cfg *cfgapi.LoaderConfig) (*Loader, error) {
	l := &Loader{}
	if cfg != nil {
		l.cfg = *cfg
	}
	l.cfg.SetDefaults()

	if err := l.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return l, nil
}

// Format returns the instance format of the loader.
func (l *Loader) Format() cfgapi.Format {
	return l.cfg.Format
}

// Parse reads the instances of a JSON or YAML document.
func (l *Loader) Parse(data []byte) ([]packing.Instance, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var objects []interface{}
	switch v := doc.(type) {
	case []interface{}:
		objects = v
	case map[string]interface{}:
		objects = []interface{}{v}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: expected object or array, got %T", ErrInvalidInput, doc)
	}

	instances := make([]packing.Instance, 0, len(objects))
	for i, o := range objects {
		obj, ok := o.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: instance #%d: expected object, got %T",
				ErrInvalidInput, i, o)
		}
		inst, err := l.parseInstance(obj)
		if err != nil {
			return nil, fmt.Errorf("instance #%d: %w", i, err)
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

// LoadFile reads the instances of a single file.
func (l *Loader) LoadFile(path string) ([]packing.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}

	instances, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Debug("loaded %d %s instances from %s", len(instances), l.cfg.Format, path)

	return instances, nil
}

// LoadDir reads the instances of every JSON or YAML file in the directory,
// in lexical file order, stopping after limit instances. A non-positive
// limit means no limit.
func (l *Loader) LoadDir(dir string, limit int) ([]packing.Instance, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read instance directory: %w", err)
	}

	var instances []packing.Instance
	for _, e := range entries {
		if e.IsDir() || !IsInstanceFile(e.Name()) {
			continue
		}

		loaded, err := l.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}

		if limit > 0 && len(instances)+len(loaded) >= limit {
			instances = append(instances, loaded[:limit-len(instances)]...)
			break
		}
		instances = append(instances, loaded...)
	}

	log.Info("loaded %d %s instances from %s", len(instances), l.cfg.Format, dir)

	return instances, nil
}

// IsInstanceFile returns true if the file name has a JSON or YAML extension.
func IsInstanceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func (l *Loader) parseInstance(obj map[string]interface{}) (packing.Instance, error) {
	capacity, err := l.capacity(obj)
	if err != nil {
		return nil, err
	}

	switch l.cfg.Format {
	case cfgapi.FormatGeneral:
		return l.parseGeneral(capacity, obj)
	case cfgapi.FormatTree:
		return l.parseTree(capacity, obj)
	case cfgapi.FormatClusterTree:
		return l.parseClusterTree(capacity, obj)
	}

	return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidInput, l.cfg.Format)
}

func (l *Loader) capacity(obj map[string]interface{}) (int, error) {
	v, ok := obj[l.cfg.CapacityField]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidInput, l.cfg.CapacityField)
	}
	capacity, err := toInt(l.cfg.CapacityField, v)
	if err != nil {
		return 0, err
	}
	if capacity < 0 {
		return 0, fmt.Errorf("%w: negative %q %d", ErrInvalidInput, l.cfg.CapacityField, capacity)
	}
	return capacity, nil
}

func (l *Loader) parseGeneral(capacity int, obj map[string]interface{}) (packing.Instance, error) {
	guests, err := toList(l.cfg.GuestsField, obj[l.cfg.GuestsField])
	if err != nil {
		return nil, err
	}

	inst := instance.NewGeneralInstance(capacity)
	for i, g := range guests {
		pages, err := toPages(fmt.Sprintf("%s[%d]", l.cfg.GuestsField, i), g)
		if err != nil {
			return nil, err
		}
		inst.AddGuest(pages)
	}

	return inst, nil
}

func (l *Loader) parseTree(capacity int, obj map[string]interface{}) (packing.Instance, error) {
	rootPages, err := toPages(l.cfg.PagesField, obj[l.cfg.PagesField])
	if err != nil {
		return nil, err
	}

	// a single-guest tree may be written as a bare leaf
	if guestPages, ok, err := l.guestPages(obj); err != nil {
		return nil, err
	} else if ok {
		tree := instance.NewTreeInstance(capacity, nil)
		if _, err := tree.AddLeaf(instance.RootNode, rootPages, guestPages); err != nil {
			return nil, err
		}
		return tree, nil
	}

	tree := instance.NewTreeInstance(capacity, rootPages)
	if err := l.parseTreeChildren(tree, instance.RootNode, obj); err != nil {
		return nil, err
	}

	return tree, nil
}

func (l *Loader) parseTreeChildren(tree *instance.TreeInstance, parent instance.NodeID, obj map[string]interface{}) error {
	children, err := toList(l.cfg.ChildrenField, obj[l.cfg.ChildrenField])
	if err != nil {
		return err
	}

	for i, c := range children {
		child, ok := c.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: %s[%d]: expected object, got %T", ErrInvalidInput,
				l.cfg.ChildrenField, i, c)
		}

		pages, err := toPages(l.cfg.PagesField, child[l.cfg.PagesField])
		if err != nil {
			return err
		}
		guestPages, isLeaf, err := l.guestPages(child)
		if err != nil {
			return err
		}
		_, hasChildren := child[l.cfg.ChildrenField]

		switch {
		case isLeaf && hasChildren:
			return fmt.Errorf("%w: leaf with %q", instance.ErrInvalidNode, l.cfg.ChildrenField)
		case isLeaf:
			if _, err := tree.AddLeaf(parent, pages, guestPages); err != nil {
				return err
			}
		case !hasChildren:
			if _, err := tree.AddLeaf(parent, pages, nil); err != nil {
				return err
			}
		default:
			n, err := tree.AddInner(parent, pages)
			if err != nil {
				return err
			}
			if err := l.parseTreeChildren(tree, n, child); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l *Loader) parseClusterTree(capacity int, obj map[string]interface{}) (packing.Instance, error) {
	var (
		ct    = instance.NewClusterTreeInstance(capacity)
		nodes = make(map[int]instance.NodeID)
	)

	if err := l.parseCluster(ct, instance.RootCluster, obj, nodes); err != nil {
		return nil, err
	}

	return ct, nil
}

func (l *Loader) parseCluster(ct *instance.ClusterTreeInstance, c instance.ClusterID, obj map[string]interface{}, ids map[int]instance.NodeID) error {
	nodes, err := toList(l.cfg.NodesField, obj[l.cfg.NodesField])
	if err != nil {
		return err
	}

	for i, n := range nodes {
		node, ok := n.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: %s[%d]: expected object, got %T", ErrInvalidInput,
				l.cfg.NodesField, i, n)
		}
		if err := l.parseClusterNode(ct, c, node, ids); err != nil {
			return err
		}
	}

	children, err := toList(l.cfg.ClusterChildrenField, obj[l.cfg.ClusterChildrenField])
	if err != nil {
		return err
	}

	for i, ch := range children {
		child, ok := ch.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: %s[%d]: expected object, got %T", ErrInvalidInput,
				l.cfg.ClusterChildrenField, i, ch)
		}
		cc, err := ct.AddCluster(c)
		if err != nil {
			return err
		}
		if err := l.parseCluster(ct, cc, child, ids); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) parseClusterNode(ct *instance.ClusterTreeInstance, c instance.ClusterID, node map[string]interface{}, ids map[int]instance.NodeID) error {
	v, ok := node[l.cfg.NodeIDField]
	if !ok {
		return fmt.Errorf("%w: node without %q", ErrInvalidInput, l.cfg.NodeIDField)
	}
	id, err := toInt(l.cfg.NodeIDField, v)
	if err != nil {
		return err
	}
	if _, ok := ids[id]; ok {
		return fmt.Errorf("%w: duplicate %s %d", instance.ErrInvalidNode, l.cfg.NodeIDField, id)
	}

	pages, err := toPages(l.cfg.NodePagesField, node[l.cfg.NodePagesField])
	if err != nil {
		return err
	}

	parentIDs, err := toList(l.cfg.NodeParentsField, node[l.cfg.NodeParentsField])
	if err != nil {
		return err
	}
	parents := make([]instance.NodeID, 0, len(parentIDs))
	for _, p := range parentIDs {
		pid, err := toInt(l.cfg.NodeParentsField, p)
		if err != nil {
			return err
		}
		parent, ok := ids[pid]
		if !ok {
			return fmt.Errorf("%w: node %d has unknown parent %d", instance.ErrInvalidNode, id, pid)
		}
		parents = append(parents, parent)
	}

	guestPages, isLeaf, err := l.guestPages(node)
	if err != nil {
		return err
	}

	var n instance.NodeID
	if isLeaf {
		n, err = ct.AddLeaf(c, parents, pages, guestPages)
	} else {
		n, err = ct.AddInner(c, parents, pages)
	}
	if err != nil {
		return fmt.Errorf("node %d: %w", id, err)
	}

	ids[id] = n

	return nil
}

// guestPages returns the guest pages of a node and whether it has any.
func (l *Loader) guestPages(obj map[string]interface{}) (packing.PageSet, bool, error) {
	v, ok := obj[l.cfg.GuestPagesField]
	if !ok || v == nil {
		return nil, false, nil
	}
	pages, err := toPages(l.cfg.GuestPagesField, v)
	if err != nil {
		return nil, false, err
	}
	return pages, true, nil
}

func toInt(field string, v interface{}) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %q: expected number, got %T", ErrInvalidInput, field, v)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q: %v is not an integer", ErrInvalidInput, field, f)
	}
	return int(f), nil
}

func toList(field string, v interface{}) ([]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q: expected array, got %T", ErrInvalidInput, field, v)
	}
	return list, nil
}

func toPages(field string, v interface{}) (packing.PageSet, error) {
	list, err := toList(field, v)
	if err != nil {
		return nil, err
	}
	pages := packing.NewPageSet()
	for _, p := range list {
		id, err := toInt(field, p)
		if err != nil {
			return nil, err
		}
		pages.Add(id)
	}
	return pages, nil
}
