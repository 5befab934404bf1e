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
)

// Instance is a packing problem: a host capacity and the guests to place.
type Instance interface {
	// Capacity returns the page capacity of every host.
	Capacity() int
	// Guests returns the guests of the instance, ordered by id.
	Guests() []*Guest
}

// CheckFeasible returns an error if any guest of the instance alone
// exceeds the host capacity.
func CheckFeasible(inst Instance) error {
	return CheckGuestsFit(inst.Capacity(), inst.Guests())
}

// CheckGuestsFit returns an error if any of the guests alone exceeds the
// given capacity.
func CheckGuestsFit(capacity int, guests []*Guest) error {
	if capacity < 0 {
		return fmt.Errorf("%w: negative capacity %d", ErrInvalidParameter, capacity)
	}
	for _, g := range guests {
		if g.PageCount() > capacity {
			return fmt.Errorf("%w: %w: %s has %d pages, capacity %d",
				ErrInfeasible, ErrGuestTooLarge, g, g.PageCount(), capacity)
		}
	}
	return nil
}

// InstanceStats summarizes an instance.
type InstanceStats struct {
	Capacity      int
	Guests        int
	DistinctPages int
	TotalPages    int
	MaxGuestPages int
	SharedPages   int
}

// Stats computes summary statistics of the instance.
func Stats(inst Instance) *InstanceStats {
	guests := inst.Guests()
	freq := PageFrequencies(guests)

	s := &InstanceStats{
		Capacity:      inst.Capacity(),
		Guests:        len(guests),
		DistinctPages: len(freq),
	}
	for _, g := range guests {
		s.TotalPages += g.PageCount()
		if g.PageCount() > s.MaxGuestPages {
			s.MaxGuestPages = g.PageCount()
		}
	}
	for _, n := range freq {
		if n > 1 {
			s.SharedPages++
		}
	}

	return s
}

// String returns a string representation of the statistics.
func (s *InstanceStats) String() string {
	return fmt.Sprintf("capacity %d, %d guests, %d distinct pages (%d shared), "+
		"%d total pages, largest guest %d pages", s.Capacity, s.Guests, s.DistinctPages,
		s.SharedPages, s.TotalPages, s.MaxGuestPages)
}
