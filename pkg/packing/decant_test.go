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

package packing_test

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	. "github.com/smich42/vmpacking/pkg/packing"
)

func TestPartitioners(t *testing.T) {
	inst := newTestInstance(10,
		[]PageID{1, 2}, []PageID{2, 3}, []PageID{4}, []PageID{5, 4}, []PageID{6})
	g := inst.Guests()

	type testCase struct {
		name        string
		partitioner Partitioner
		result      [][]GuestID
	}

	for _, tc := range []*testCase{
		{
			name:        "whole",
			partitioner: WholePartitioner,
			result:      [][]GuestID{{0, 1, 2, 3, 4}},
		},
		{
			name:        "components",
			partitioner: ComponentPartitioner,
			result:      [][]GuestID{{0, 1}, {2, 3}, {4}},
		},
		{
			name:        "singletons",
			partitioner: SingletonPartitioner,
			result:      [][]GuestID{{0}, {1}, {2}, {3}, {4}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var result [][]GuestID
			for _, part := range tc.partitioner(g) {
				result = append(result, GuestIDs(part))
			}
			if diff := cmp.Diff(tc.result, result); diff != "" {
				t.Errorf("unexpected partitions (-want +got):\n%s", diff)
			}
		})
	}

	require.Nil(t, WholePartitioner(nil))
	require.Empty(t, ComponentPartitioner(nil))
}

func TestComponentPartitionerTransitivity(t *testing.T) {
	inst := newTestInstance(10,
		[]PageID{1}, []PageID{7}, []PageID{1, 2}, []PageID{3, 7}, []PageID{2, 3})

	parts := ComponentPartitioner(inst.Guests())
	require.Equal(t, 1, len(parts), "chain 0-2-4-3-1 is one component")
	require.Equal(t, 5, len(parts[0]))
}

func TestDecant(t *testing.T) {
	inst := newTestInstance(4, []PageID{1, 2}, []PageID{2, 3}, []PageID{5, 6})
	g := inst.Guests()

	p := NewPacking([]*Host{
		NewHostWithGuests(4, g[0]),
		NewHostWithGuests(4, g[1]),
		NewHostWithGuests(4, g[2]),
	})
	p.Decant()

	require.Equal(t, 2, p.HostCount())
	require.Equal(t, []*Guest{g[0], g[1]}, p.Hosts()[0].Guests())
	require.Equal(t, []*Guest{g[2]}, p.Hosts()[1].Guests())
	require.Equal(t, StatusOK, p.ValidateForInstance(inst))
}

func TestDecantSplitsByComponents(t *testing.T) {
	inst := newTestInstance(4,
		[]PageID{1, 2}, []PageID{3}, []PageID{4, 5}, []PageID{5, 6})
	g := inst.Guests()

	// the later host cannot move wholesale, but its first component fits
	hosts := Decant([]*Host{
		NewHostWithGuests(4, g[0]),
		NewHostWithGuests(4, g[1], g[2], g[3]),
	})

	require.Equal(t, 2, len(hosts))
	require.Equal(t, []*Guest{g[0], g[1]}, hosts[0].Guests())
	require.Equal(t, []*Guest{g[2], g[3]}, hosts[1].Guests())
}

func TestDecantProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		var (
			capacity = 6 + rnd.Intn(6)
			pages    [][]PageID
		)
		for i := 0; i < 30; i++ {
			var (
				p []PageID
				n = 1 + rnd.Intn(capacity)
			)
			for j := 0; j < n; j++ {
				p = append(p, PageID(rnd.Intn(20)))
			}
			pages = append(pages, p)
		}

		inst := newTestInstance(capacity, pages...)
		var hosts []*Host
		for _, g := range inst.Guests() {
			hosts = append(hosts, NewHostWithGuests(capacity, g))
		}

		p := NewPacking(hosts)
		require.Equal(t, StatusOK, p.ValidateForInstance(inst))
		hostsBefore, guestsBefore := p.HostCount(), p.GuestCount()

		p.Decant()

		require.LessOrEqual(t, p.HostCount(), hostsBefore)
		require.Equal(t, guestsBefore, p.GuestCount())
		require.Equal(t, StatusOK, p.ValidateForInstance(inst))
		for _, h := range p.Hosts() {
			require.False(t, h.IsOverfull())
		}
	}
}
