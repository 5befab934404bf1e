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

	idset "github.com/intel/goresctrl/pkg/utils"
)

// PageID identifies a memory page. Equal ids on different guests denote
// the same, shareable page.
type PageID = idset.ID

// PageSet is a set of pages.
type PageSet = idset.IDSet

// NewPageSet creates a page set of the given pages.
func NewPageSet(pages ...PageID) PageSet {
	return idset.NewIDSet(pages...)
}

// GuestID identifies a guest within the instance which owns it.
type GuestID int

// Guest is an immutable virtual machine, described by the pages it needs.
// Guests with identical page sets are still distinct guests.
type Guest struct {
	id    GuestID
	pages PageSet
}

// NewGuest creates a guest with the given id and pages. The page set is
// copied.
func NewGuest(id GuestID, pages PageSet) *Guest {
	if pages == nil {
		pages = NewPageSet()
	}
	return &Guest{
		id:    id,
		pages: pages.Clone(),
	}
}

// ID returns the id of the guest.
func (g *Guest) ID() GuestID {
	return g.id
}

// Pages returns the pages of the guest. The set must not be modified.
func (g *Guest) Pages() PageSet {
	return g.pages
}

// PageCount returns the number of pages of the guest.
func (g *Guest) PageCount() int {
	return g.pages.Size()
}

// HasPage returns true if the guest needs the given page.
func (g *Guest) HasPage(p PageID) bool {
	return g.pages.Has(p)
}

// PagesOn returns the number of pages of the guest already present on the host.
func (g *Guest) PagesOn(h *Host) int {
	count := 0
	for p := range g.pages {
		if h.HasPage(p) {
			count++
		}
	}
	return count
}

// SharedPages returns the number of pages the two guests have in common.
func (g *Guest) SharedPages(o *Guest) int {
	a, b := g.pages, o.pages
	if a.Size() > b.Size() {
		a, b = b, a
	}
	count := 0
	for p := range a {
		if b.Has(p) {
			count++
		}
	}
	return count
}

// String returns a string representation of the guest.
func (g *Guest) String() string {
	return fmt.Sprintf("guest #%d{%s}", g.id, g.pages.String())
}

// GuestIDs returns the ids of the given guests.
func GuestIDs(guests []*Guest) []GuestID {
	ids := make([]GuestID, 0, len(guests))
	for _, g := range guests {
		ids = append(ids, g.id)
	}
	return ids
}
