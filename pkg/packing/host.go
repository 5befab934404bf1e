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

package packing

import (
	"fmt"
	"sort"
	"strings"
)

// Host is a machine of fixed page capacity with a set of resident guests.
// It tracks for every resident page the number of resident guests which
// need it. A host may be transiently overfull while a solver rearranges
// guests.
type Host struct {
	capacity int
	freq     map[PageID]int
	guests   map[GuestID]*Guest
}

// NewHost creates an empty host of the given capacity.
func NewHost(capacity int) *Host {
	return &Host{
		capacity: capacity,
		freq:     make(map[PageID]int),
		guests:   make(map[GuestID]*Guest),
	}
}

// NewHostWithGuests creates a host of the given capacity with the given
// resident guests.
func NewHostWithGuests(capacity int, guests ...*Guest) *Host {
	h := NewHost(capacity)
	for _, g := range guests {
		h.AddGuest(g)
	}
	return h
}

// Capacity returns the page capacity of the host.
func (h *Host) Capacity() int {
	return h.capacity
}

// PageCount returns the number of distinct pages on the host.
func (h *Host) PageCount() int {
	return len(h.freq)
}

// GuestCount returns the number of resident guests.
func (h *Host) GuestCount() int {
	return len(h.guests)
}

// IsEmpty returns true if the host has no guests.
func (h *Host) IsEmpty() bool {
	return len(h.guests) == 0
}

// IsOverfull returns true if the host has more pages than capacity.
func (h *Host) IsOverfull() bool {
	return len(h.freq) > h.capacity
}

// HasGuest returns true if the guest is resident on the host.
func (h *Host) HasGuest(g *Guest) bool {
	_, ok := h.guests[g.id]
	return ok
}

// HasPage returns true if the page is present on the host.
func (h *Host) HasPage(p PageID) bool {
	return h.freq[p] > 0
}

// Guests returns the resident guests ordered by id.
func (h *Host) Guests() []*Guest {
	guests := make([]*Guest, 0, len(h.guests))
	for _, g := range h.guests {
		guests = append(guests, g)
	}
	sort.Slice(guests, func(i, j int) bool {
		return guests[i].id < guests[j].id
	})
	return guests
}

// Pages returns the set of pages present on the host.
func (h *Host) Pages() PageSet {
	pages := NewPageSet()
	for p := range h.freq {
		pages.Add(p)
	}
	return pages
}

// PageFrequencies returns a copy of the page frequencies of the host.
func (h *Host) PageFrequencies() map[PageID]int {
	freq := make(map[PageID]int, len(h.freq))
	for p, n := range h.freq {
		freq[p] = n
	}
	return freq
}

// PageCountWith returns the number of pages the host would have with
// the guest added.
func (h *Host) PageCountWith(g *Guest) int {
	if h.HasGuest(g) {
		return len(h.freq)
	}
	return len(h.freq) + g.PageCount() - g.PagesOn(h)
}

// PageCountNotOn returns the number of host pages the guest does not need.
func (h *Host) PageCountNotOn(g *Guest) int {
	return len(h.freq) - g.PagesOn(h)
}

// NewPagesOf returns the number of pages the guest would add to the host.
func (h *Host) NewPagesOf(g *Guest) int {
	return g.PageCount() - g.PagesOn(h)
}

// Accommodates returns true if the guest fits on the host.
func (h *Host) Accommodates(g *Guest) bool {
	return h.PageCountWith(g) <= h.capacity
}

// AccommodatesAll returns true if all the given guests fit on the host
// together.
func (h *Host) AccommodatesAll(guests []*Guest) bool {
	return h.PageCountWithAll(guests) <= h.capacity
}

// PageCountWithAll returns the number of pages the host would have with
// all the given guests added.
func (h *Host) PageCountWithAll(guests []*Guest) int {
	added := NewPageSet()
	for _, g := range guests {
		if h.HasGuest(g) {
			continue
		}
		for p := range g.pages {
			if !h.HasPage(p) {
				added.Add(p)
			}
		}
	}
	return len(h.freq) + added.Size()
}

// AddGuest adds the guest to the host, returning true if the host is
// now overfull. Adding a resident guest is an internal error.
func (h *Host) AddGuest(g *Guest) bool {
	if h.HasGuest(g) {
		log.Panic("internal error: %s already on host %s", g, h)
	}

	h.guests[g.id] = g
	for p := range g.pages {
		h.freq[p]++
	}

	return h.IsOverfull()
}

// RemoveGuest removes the guest from the host, returning true if the host
// is still overfull. Removing a non-resident guest is an internal error.
func (h *Host) RemoveGuest(g *Guest) bool {
	if !h.HasGuest(g) {
		log.Panic("internal error: %s not on host %s", g, h)
	}

	delete(h.guests, g.id)
	for p := range g.pages {
		if n := h.freq[p]; n > 1 {
			h.freq[p] = n - 1
		} else {
			delete(h.freq, p)
		}
	}

	return h.IsOverfull()
}

// Clear removes all guests from the host.
func (h *Host) Clear() {
	h.freq = make(map[PageID]int)
	h.guests = make(map[GuestID]*Guest)
}

// Clone returns a copy of the host sharing the guests.
func (h *Host) Clone() *Host {
	c := NewHost(h.capacity)
	for id, g := range h.guests {
		c.guests[id] = g
	}
	for p, n := range h.freq {
		c.freq[p] = n
	}
	return c
}

// String returns a string representation of the host.
func (h *Host) String() string {
	ids := make([]string, 0, len(h.guests))
	for _, g := range h.Guests() {
		ids = append(ids, fmt.Sprintf("%d", g.id))
	}
	return fmt.Sprintf("host{pages %d/%d, guests [%s]}", len(h.freq), h.capacity,
		strings.Join(ids, ","))
}
