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

// Package maximizer implements profit maximizers for a single host and
// for a fixed number of hosts. A one-host maximizer picks a capacity
// feasible set of guests of maximal profit for a single host. The local
// search lifts any one-host maximizer into an n-host maximizer by
// repeatedly replacing the contents of the most improvable host.
package maximizer

import (
	"context"

	"github.com/smich42/vmpacking/pkg/packing"
)

// Profits assigns an integer profit to guests. Guests without an entry
// have profit 1. Negative profits count as 0.
type Profits map[packing.GuestID]int

// Of returns the profit of the guest.
func (p Profits) Of(g *packing.Guest) int {
	v, ok := p[g.ID()]
	switch {
	case !ok:
		return 1
	case v < 0:
		return 0
	}
	return v
}

// Sum returns the total profit of the guests.
func (p Profits) Sum(guests []*packing.Guest) int {
	sum := 0
	for _, g := range guests {
		sum += p.Of(g)
	}
	return sum
}

// OneHost maximizes the profit of guests placed on a single host of the
// instance capacity.
type OneHost interface {
	// Name returns the name of the maximizer.
	Name() string
	// Maximize returns a host of guests of the instance with maximal profit.
	Maximize(inst packing.Instance, profits Profits) (*packing.Host, error)
}

// NHost maximizes the number of guests placed on a fixed number of hosts.
type NHost interface {
	// Name returns the name of the maximizer.
	Name() string
	// Maximize returns a packing of at most hosts non-empty hosts.
	Maximize(ctx context.Context, inst packing.Instance, hosts int) (*packing.Packing, error)
}

// OneHostFunc adapts a function to a OneHost maximizer.
type OneHostFunc func(inst packing.Instance, profits Profits) (*packing.Host, error)

// Name returns the name of the maximizer.
func (OneHostFunc) Name() string {
	return "func"
}

// Maximize calls the function.
func (f OneHostFunc) Maximize(inst packing.Instance, profits Profits) (*packing.Host, error) {
	return f(inst, profits)
}
