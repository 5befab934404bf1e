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
	"math"
)

// PageFrequencies returns for every page the number of the given guests
// which need it.
func PageFrequencies(guests []*Guest) map[PageID]int {
	freq := make(map[PageID]int)
	for _, g := range guests {
		for p := range g.pages {
			freq[p]++
		}
	}
	return freq
}

// RelSize returns the relative size of the guest: every page counts as the
// inverse of its frequency, so widely shared pages weigh little.
func RelSize(g *Guest, freq map[PageID]int) float64 {
	return RelSizeOf(g.pages, freq)
}

// RelSizeOf returns the relative size of the given pages.
func RelSizeOf(pages PageSet, freq map[PageID]int) float64 {
	size := 0.0
	for p := range pages {
		if n := freq[p]; n > 0 {
			size += 1.0 / float64(n)
		} else {
			size += 1.0
		}
	}
	return size
}

// RelSizeOnHost returns the relative size of the pages the guest would
// newly add to the host.
func RelSizeOnHost(g *Guest, h *Host, freq map[PageID]int) float64 {
	size := 0.0
	for p := range g.pages {
		if h.HasPage(p) {
			continue
		}
		if n := freq[p]; n > 0 {
			size += 1.0 / float64(n)
		} else {
			size += 1.0
		}
	}
	return size
}

// SizeRelRatio returns the ratio of the size of the guest to its relative
// size. Guests made of rarely shared pages have a ratio close to 1.
func SizeRelRatio(g *Guest, freq map[PageID]int) float64 {
	rel := RelSize(g, freq)
	if rel == 0 {
		return math.Inf(1)
	}
	return float64(g.PageCount()) / rel
}
