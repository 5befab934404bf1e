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

package solver_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smich42/vmpacking/pkg/instance"
	"github.com/smich42/vmpacking/pkg/packing"
	. "github.com/smich42/vmpacking/pkg/solver"
)

func pages(ids ...int) packing.PageSet {
	return packing.NewPageSet(ids...)
}

type heuristicFn func(packing.Instance, ...Option) (*packing.Packing, error)

var heuristics = map[string]heuristicFn{
	"next fit":                     SolveByNextFit,
	"first fit":                    SolveByFirstFit,
	"best fusion":                  SolveByBestFusion,
	"overload-and-remove":          SolveByOverloadAndRemove,
	"opportunity-aware efficiency": SolveByOpportunityAwareEfficiency,
}

func hostGuestIDs(p *packing.Packing) [][]packing.GuestID {
	var ids [][]packing.GuestID
	for _, h := range p.Hosts() {
		ids = append(ids, packing.GuestIDs(h.Guests()))
	}
	return ids
}

// scenario has a 2-host optimum: {1},{1},{6,8} on one host and {3,5}
// riding along with {2,3,5,8} on the other.
func scenario() *instance.GeneralInstance {
	return instance.NewGeneralInstance(4,
		pages(1),
		pages(2, 3, 5, 8),
		pages(1),
		pages(3, 5),
		pages(6, 8),
	)
}

func TestHeuristicsScenario(t *testing.T) {
	inst := scenario()

	nf, err := SolveByNextFit(inst)
	require.NoError(t, err)
	bf, err := SolveByBestFusion(inst)
	require.NoError(t, err)

	require.LessOrEqual(t, bf.HostCount(), nf.HostCount())
	require.Equal(t, 2, bf.HostCount())

	for name, solve := range heuristics {
		for _, decant := range []bool{true, false} {
			p, err := solve(inst, WithDecanting(decant))
			require.NoError(t, err, name)
			require.Equal(t, packing.StatusOK, p.ValidateForInstance(inst), name)
			require.NoError(t, p.Verify(inst), name)
			require.GreaterOrEqual(t, p.HostCount(), 2, name)
		}
	}
}

func TestNextFit(t *testing.T) {
	inst := scenario()

	p, err := SolveByNextFit(inst, WithoutDecanting())
	require.NoError(t, err)
	require.Equal(t, [][]packing.GuestID{{0}, {1}, {2, 3}, {4}}, hostGuestIDs(p))

	p, err = SolveByNextFit(inst)
	require.NoError(t, err)
	require.Equal(t, [][]packing.GuestID{{0, 2, 3}, {1}, {4}}, hostGuestIDs(p))
}

func TestFirstFit(t *testing.T) {
	p, err := SolveByFirstFit(scenario(), WithoutDecanting())
	require.NoError(t, err)
	require.Equal(t, [][]packing.GuestID{{0, 2, 3}, {1}, {4}}, hostGuestIDs(p))
}

func TestBestFusion(t *testing.T) {
	p, err := SolveByBestFusion(scenario(), WithoutDecanting())
	require.NoError(t, err)
	require.Equal(t, [][]packing.GuestID{{0, 2, 4}, {1, 3}}, hostGuestIDs(p))
}

func TestSharedSinglePage(t *testing.T) {
	inst := instance.NewGeneralInstance(1, pages(5), pages(5))

	for name, solve := range heuristics {
		p, err := solve(inst, WithoutDecanting())
		require.NoError(t, err, name)
		require.Equal(t, 1, p.HostCount(), name)
		require.Equal(t, 2, p.GuestCount(), name)
	}
}

func TestOversizedGuest(t *testing.T) {
	inst := instance.NewGeneralInstance(2, pages(1), pages(1, 2, 3))

	for name, solve := range heuristics {
		_, err := solve(inst)
		require.True(t, errors.Is(err, packing.ErrInfeasible), name)
		require.True(t, errors.Is(err, packing.ErrGuestTooLarge), name)
	}
}

func TestEmptyInstance(t *testing.T) {
	inst := instance.NewGeneralInstance(3)

	for name, solve := range heuristics {
		p, err := solve(inst)
		require.NoError(t, err, name)
		require.Equal(t, 0, p.HostCount(), name)
		require.Equal(t, packing.StatusOK, p.ValidateForInstance(inst), name)
	}
}

func TestOverloadAndRemoveEvicts(t *testing.T) {
	// {1,2} lands with {1,3} by sharing page 1, overloading the host
	inst := instance.NewGeneralInstance(3,
		pages(1, 3),
		pages(3, 4),
		pages(1, 2),
	)

	p, err := SolveByOverloadAndRemove(inst, WithoutDecanting())
	require.NoError(t, err)
	require.Equal(t, packing.StatusOK, p.ValidateForInstance(inst))
	require.Equal(t, 2, p.HostCount())
}

func TestProceedExtendsHosts(t *testing.T) {
	var (
		g0 = packing.NewGuest(0, pages(1, 2))
		g1 = packing.NewGuest(1, pages(2, 3))
		g2 = packing.NewGuest(2, pages(7))
	)

	type testCase struct {
		name    string
		proceed Proceeder
	}

	for _, tc := range []*testCase{
		{name: "next fit", proceed: ProceedByNextFit},
		{name: "first fit", proceed: ProceedByFirstFit},
		{name: "best fusion", proceed: ProceedByBestFusion},
		{name: "overload-and-remove", proceed: ProceedByOverloadAndRemove},
		{name: "opportunity-aware efficiency", proceed: ProceedByOpportunityAwareEfficiency},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hosts := []*packing.Host{packing.NewHostWithGuests(3, g0)}
			hosts = tc.proceed(3, []*packing.Guest{g1, g2}, hosts)

			require.Equal(t, 2, len(hosts))
			require.True(t, hosts[0].HasGuest(g0))
			require.True(t, hosts[0].HasGuest(g1))
			require.True(t, hosts[1].HasGuest(g2))
		})
	}
}
