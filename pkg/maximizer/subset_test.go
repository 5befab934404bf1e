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

package maximizer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smich42/vmpacking/pkg/instance"
	. "github.com/smich42/vmpacking/pkg/maximizer"
	"github.com/smich42/vmpacking/pkg/packing"
)

func pages(ids ...int) packing.PageSet {
	return packing.NewPageSet(ids...)
}

func TestNewSubsetEfficiency(t *testing.T) {
	for _, size := range []int{0, -1, MaxSubsetSize + 1} {
		_, err := NewSubsetEfficiency(size)
		require.True(t, errors.Is(err, packing.ErrInvalidParameter), "size %d", size)
	}

	m, err := NewSubsetEfficiency(2)
	require.NoError(t, err)
	require.Equal(t, 2, m.SubsetSize())
	require.Equal(t, "subset-efficiency(2)", m.Name())
}

func TestProfits(t *testing.T) {
	g := packing.NewGuest(0, pages(1))
	h := packing.NewGuest(1, pages(2))
	k := packing.NewGuest(2, pages(3))

	profits := Profits{1: 3, 2: -4}
	require.Equal(t, 1, profits.Of(g))
	require.Equal(t, 3, profits.Of(h))
	require.Equal(t, 0, profits.Of(k))
	require.Equal(t, 4, profits.Sum([]*packing.Guest{g, h, k}))
	require.Equal(t, 1, Profits(nil).Of(g))
}

func TestSubsetEfficiency(t *testing.T) {
	type testCase struct {
		name       string
		capacity   int
		guests     []packing.PageSet
		profits    Profits
		subsetSize int
		expected   []packing.GuestID
		pageCount  int
	}

	for _, tc := range []*testCase{
		{
			name:     "prefers sharing guests",
			capacity: 3,
			guests: []packing.PageSet{
				pages(1, 2, 3),
				pages(4),
				pages(4, 5),
				pages(5),
			},
			subsetSize: 1,
			expected:   []packing.GuestID{1, 2, 3},
			pageCount:  2,
		},
		{
			name:     "skips guests without profit",
			capacity: 3,
			guests: []packing.PageSet{
				pages(1, 2, 3),
				pages(4),
				pages(4, 5),
				pages(5),
			},
			profits:    Profits{1: 0},
			subsetSize: 1,
			expected:   []packing.GuestID{2, 3},
			pageCount:  2,
		},
		{
			name:     "pairs first",
			capacity: 2,
			guests: []packing.PageSet{
				pages(1),
				pages(2),
				pages(1, 2),
			},
			subsetSize: 2,
			expected:   []packing.GuestID{0, 1, 2},
			pageCount:  2,
		},
		{
			name:     "shrinks subset size",
			capacity: 2,
			guests: []packing.PageSet{
				pages(1, 2),
				pages(3),
			},
			subsetSize: 2,
			expected:   []packing.GuestID{1},
			pageCount:  1,
		},
		{
			name:       "empty instance",
			capacity:   2,
			subsetSize: 3,
			expected:   []packing.GuestID{},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewSubsetEfficiency(tc.subsetSize)
			require.NoError(t, err)

			inst := instance.NewGeneralInstance(tc.capacity, tc.guests...)
			host, err := m.Maximize(inst, tc.profits)
			require.NoError(t, err)
			require.False(t, host.IsOverfull())
			require.Equal(t, tc.expected, packing.GuestIDs(host.Guests()))
			require.Equal(t, tc.pageCount, host.PageCount())
		})
	}
}

func TestOneHostFunc(t *testing.T) {
	called := false
	f := OneHostFunc(func(inst packing.Instance, _ Profits) (*packing.Host, error) {
		called = true
		return packing.NewHost(inst.Capacity()), nil
	})

	host, err := f.Maximize(instance.NewGeneralInstance(3), nil)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, 3, host.Capacity())
	require.Equal(t, "func", f.Name())
}
