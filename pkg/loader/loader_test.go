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
package loader_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/instance"
	. "github.com/smich42/vmpacking/pkg/loader"
	"github.com/smich42/vmpacking/pkg/packing"
)

func newLoader(t *testing.T, format cfgapi.Format) *Loader {
	l, err := New(&cfgapi.LoaderConfig{Format: format})
	require.NoError(t, err)
	return l
}

func guestPages(inst packing.Instance) [][]packing.PageID {
	var pages [][]packing.PageID
	for _, g := range inst.Guests() {
		pages = append(pages, g.Pages().SortedMembers())
	}
	return pages
}

func TestNew(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	require.Equal(t, cfgapi.FormatGeneral, l.Format())

	_, err = New(&cfgapi.LoaderConfig{Format: "graph"})
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseGeneral(t *testing.T) {
	l := newLoader(t, cfgapi.FormatGeneral)

	instances, err := l.Parse([]byte(`{"capacity": 4, "guests": [[1, 2], [2, 3, 3], []]}`))
	require.NoError(t, err)
	require.Equal(t, 1, len(instances))
	require.Equal(t, 4, instances[0].Capacity())
	require.Equal(t, 3, len(instances[0].Guests()))
	require.Equal(t, [][]packing.PageID{{1, 2}, {2, 3}}, guestPages(instances[0])[:2])
	require.Equal(t, 0, instances[0].Guests()[2].PageCount())

	instances, err = l.Parse([]byte("- {capacity: 1, guests: [[1]]}\n- {capacity: 2, guests: []}\n"))
	require.NoError(t, err)
	require.Equal(t, 2, len(instances))
	require.Equal(t, 1, instances[0].Capacity())
	require.Equal(t, 2, instances[1].Capacity())
	require.Empty(t, instances[1].Guests())

	instances, err = l.Parse(nil)
	require.NoError(t, err)
	require.Empty(t, instances)
}

func TestParseCustomFields(t *testing.T) {
	l, err := New(&cfgapi.LoaderConfig{
		Format:        cfgapi.FormatGeneral,
		CapacityField: "memory",
		GuestsField:   "vms",
	})
	require.NoError(t, err)

	instances, err := l.Parse([]byte(`{"memory": 3, "vms": [[7, 8, 9]]}`))
	require.NoError(t, err)
	require.Equal(t, 3, instances[0].Capacity())
	require.Equal(t, [][]packing.PageID{{7, 8, 9}}, guestPages(instances[0]))

	_, err = l.Parse([]byte(`{"capacity": 3, "guests": [[7, 8, 9]]}`))
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestParseTree(t *testing.T) {
	l := newLoader(t, cfgapi.FormatTree)

	instances, err := l.Parse([]byte(`{
    "capacity": 5,
    "pages": [1],
    "children": [
      {"pages": [2], "children": [
        {"pages": [3], "guest_pages": [1, 2, 3, 9]},
        {"pages": [4]}
      ]},
      {"pages": [5], "guest_pages": [1, 5]}
    ]
  }`))
	require.NoError(t, err)
	require.Equal(t, 1, len(instances))

	tree, ok := instances[0].(*instance.TreeInstance)
	require.True(t, ok)
	require.Equal(t, 5, tree.Capacity())
	require.Equal(t, 5, tree.NodeCount())
	require.Equal(t, [][]packing.PageID{{1, 2, 3, 9}, {1, 2, 4}, {1, 5}}, guestPages(tree))

	instances, err = l.Parse([]byte(`{"capacity": 2, "pages": [1, 2], "guest_pages": [1, 2]}`))
	require.NoError(t, err)
	require.Equal(t, [][]packing.PageID{{1, 2}}, guestPages(instances[0]))
}

func TestParseClusterTree(t *testing.T) {
	l := newLoader(t, cfgapi.FormatClusterTree)

	instances, err := l.Parse([]byte(`{
    "capacity": 4,
    "nodes": [{"node_id": 10, "node_pages": [1], "node_parents": []}],
    "cluster_children": [
      {
        "nodes": [
          {"node_id": 11, "node_pages": [2], "node_parents": [10], "guest_pages": [1, 2]},
          {"node_id": 12, "node_pages": [3], "node_parents": [10]}
        ],
        "cluster_children": [
          {"nodes": [{"node_id": 13, "node_pages": [4], "node_parents": [12], "guest_pages": [1, 3, 4]}]}
        ]
      }
    ]
  }`))
	require.NoError(t, err)

	ct, ok := instances[0].(*instance.ClusterTreeInstance)
	require.True(t, ok)
	require.Equal(t, 3, ct.ClusterCount())
	require.Equal(t, 4, ct.NodeCount())
	require.Equal(t, [][]packing.PageID{{1, 2}, {1, 3, 4}}, guestPages(ct))

	leaves := ct.Leaves()
	require.Equal(t, 2, len(leaves))
	if diff := cmp.Diff([]instance.NodeID{2}, ct.NodeParents(leaves[1])); diff != "" {
		t.Errorf("unexpected parents of the deepest leaf (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	type testCase struct {
		name   string
		format cfgapi.Format
		input  string
		err    error
	}

	for _, tc := range []*testCase{
		{
			name:   "scalar document",
			format: cfgapi.FormatGeneral,
			input:  `3`,
			err:    ErrInvalidInput,
		},
		{
			name:   "scalar instance",
			format: cfgapi.FormatGeneral,
			input:  `[1]`,
			err:    ErrInvalidInput,
		},
		{
			name:   "missing capacity",
			format: cfgapi.FormatGeneral,
			input:  `{"guests": []}`,
			err:    ErrInvalidInput,
		},
		{
			name:   "negative capacity",
			format: cfgapi.FormatGeneral,
			input:  `{"capacity": -1}`,
			err:    ErrInvalidInput,
		},
		{
			name:   "fractional page",
			format: cfgapi.FormatGeneral,
			input:  `{"capacity": 2, "guests": [[1.5]]}`,
			err:    ErrInvalidInput,
		},
		{
			name:   "string page",
			format: cfgapi.FormatGeneral,
			input:  `{"capacity": 2, "guests": [["a"]]}`,
			err:    ErrInvalidInput,
		},
		{
			name:   "guests not a list",
			format: cfgapi.FormatGeneral,
			input:  `{"capacity": 2, "guests": {"a": 1}}`,
			err:    ErrInvalidInput,
		},
		{
			name:   "malformed",
			format: cfgapi.FormatGeneral,
			input:  `{"capacity": `,
			err:    ErrInvalidInput,
		},
		{
			name:   "leaf with children",
			format: cfgapi.FormatTree,
			input:  `{"capacity": 2, "children": [{"pages": [1], "guest_pages": [1], "children": []}]}`,
			err:    instance.ErrInvalidNode,
		},
		{
			name:   "tree child not an object",
			format: cfgapi.FormatTree,
			input:  `{"capacity": 2, "children": [1]}`,
			err:    ErrInvalidInput,
		},
		{
			name:   "unknown parent",
			format: cfgapi.FormatClusterTree,
			input: `{"capacity": 2, "cluster_children": [
        {"nodes": [{"node_id": 1, "node_pages": [], "node_parents": [7]}]}]}`,
			err: instance.ErrInvalidNode,
		},
		{
			name:   "duplicate node id",
			format: cfgapi.FormatClusterTree,
			input: `{"capacity": 2, "nodes": [
        {"node_id": 1, "node_pages": [], "node_parents": []},
        {"node_id": 1, "node_pages": [], "node_parents": []}]}`,
			err: instance.ErrInvalidNode,
		},
		{
			name:   "root node with parents",
			format: cfgapi.FormatClusterTree,
			input: `{"capacity": 2, "nodes": [
        {"node_id": 1, "node_pages": [], "node_parents": []},
        {"node_id": 2, "node_pages": [], "node_parents": [1]}]}`,
			err: instance.ErrInvalidNode,
		},
		{
			name:   "missing node id",
			format: cfgapi.FormatClusterTree,
			input:  `{"capacity": 2, "nodes": [{"node_pages": [1]}]}`,
			err:    ErrInvalidInput,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newLoader(t, tc.format).Parse([]byte(tc.input))
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.err), "unexpected error %v", err)
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `[{"capacity": 2, "guests": [[1]]}, {"capacity": 3, "guests": [[2]]}]`)
	writeFile(t, dir, "a.yaml", "capacity: 1\nguests:\n- [1]\n")
	writeFile(t, dir, "c.txt", `not an instance`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.json"), 0o755))

	l := newLoader(t, cfgapi.FormatGeneral)

	capacities := func(instances []packing.Instance) []int {
		var result []int
		for _, inst := range instances {
			result = append(result, inst.Capacity())
		}
		return result
	}

	instances, err := l.LoadDir(dir, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, capacities(instances))

	instances, err = l.LoadDir(dir, 2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, capacities(instances))

	instances, err = l.LoadDir(dir, 1)
	require.NoError(t, err)
	require.Equal(t, []int{1}, capacities(instances))

	_, err = l.LoadDir(filepath.Join(dir, "missing"), 0)
	require.Error(t, err)

	writeFile(t, dir, "e.json", `{"capacity": "big"}`)
	_, err = l.LoadDir(dir, 0)
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestIsInstanceFile(t *testing.T) {
	for name, expected := range map[string]bool{
		"a.json":  true,
		"a.yaml":  true,
		"a.YML":   true,
		"a.txt":   false,
		"json":    false,
		"a.json~": false,
	} {
		require.Equal(t, expected, IsInstanceFile(name), name)
	}
}
