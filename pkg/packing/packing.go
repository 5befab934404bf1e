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
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Status is the outcome of validating a packing against an instance.
type Status int

const (
	// StatusOK means every guest is placed exactly once and no host is
	// empty or overfull.
	StatusOK Status = iota
	// StatusHostOverfull means some host exceeds its capacity.
	StatusHostOverfull
	// StatusHostEmpty means some host has no guests.
	StatusHostEmpty
	// StatusPartial means some guest of the instance is not placed.
	StatusPartial
	// StatusDuplicateGuest means some guest is placed more than once.
	StatusDuplicateGuest
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusHostOverfull:
		return "host-overfull"
	case StatusHostEmpty:
		return "host-empty"
	case StatusPartial:
		return "partial"
	case StatusDuplicateGuest:
		return "duplicate-guest"
	}
	return fmt.Sprintf("<invalid status %d>", int(s))
}

// Packing is an ordered list of hosts, the outcome of a solver.
type Packing struct {
	hosts []*Host
}

// NewPacking creates a packing of the given hosts.
func NewPacking(hosts []*Host) *Packing {
	return &Packing{hosts: hosts}
}

// Hosts returns the hosts of the packing.
func (p *Packing) Hosts() []*Host {
	return p.hosts
}

// HostCount returns the number of hosts in the packing.
func (p *Packing) HostCount() int {
	return len(p.hosts)
}

// GuestCount returns the number of placed guests, counting duplicates.
func (p *Packing) GuestCount() int {
	count := 0
	for _, h := range p.hosts {
		count += h.GuestCount()
	}
	return count
}

// PageCount returns the total number of pages over all hosts.
func (p *Packing) PageCount() int {
	count := 0
	for _, h := range p.hosts {
		count += h.PageCount()
	}
	return count
}

// ValidateForInstance checks the packing against the instance, returning
// the first problem found.
func (p *Packing) ValidateForInstance(inst Instance) Status {
	placed := make(map[GuestID]struct{})
	for _, h := range p.hosts {
		if h.IsEmpty() {
			return StatusHostEmpty
		}
		if h.IsOverfull() {
			return StatusHostOverfull
		}
		for id := range h.guests {
			if _, ok := placed[id]; ok {
				return StatusDuplicateGuest
			}
			placed[id] = struct{}{}
		}
	}

	for _, g := range inst.Guests() {
		if _, ok := placed[g.id]; !ok {
			return StatusPartial
		}
	}

	return StatusOK
}

// Verify checks the packing against the instance, reporting every
// problem found.
func (p *Packing) Verify(inst Instance) error {
	var (
		errs   *multierror.Error
		placed = make(map[GuestID]int)
	)

	for i, h := range p.hosts {
		if h.IsEmpty() {
			errs = multierror.Append(errs, fmt.Errorf("%w: host #%d is empty",
				ErrInvalidPacking, i))
		}
		if h.IsOverfull() {
			errs = multierror.Append(errs, fmt.Errorf("%w: host #%d has %d pages, capacity %d",
				ErrInvalidPacking, i, h.PageCount(), h.Capacity()))
		}
		for _, g := range h.Guests() {
			if prev, ok := placed[g.id]; ok {
				errs = multierror.Append(errs, fmt.Errorf("%w: %s on both host #%d and #%d",
					ErrInvalidPacking, g, prev, i))
				continue
			}
			placed[g.id] = i
		}
	}

	for _, g := range inst.Guests() {
		if _, ok := placed[g.id]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s not placed",
				ErrInvalidPacking, g))
		}
	}

	return errs.ErrorOrNil()
}

// DropEmptyHosts removes all hosts without guests.
func (p *Packing) DropEmptyHosts() {
	p.hosts = DropEmptyHosts(p.hosts)
}

// DropEmptyHosts returns the given hosts without the empty ones.
func DropEmptyHosts(hosts []*Host) []*Host {
	kept := hosts[:0]
	for _, h := range hosts {
		if !h.IsEmpty() {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(hosts); i++ {
		hosts[i] = nil
	}
	return kept
}

// String returns a short description of the packing.
func (p *Packing) String() string {
	return fmt.Sprintf("packing{%d hosts, %d guests}", p.HostCount(), p.GuestCount())
}

// Dump logs the packing host by host if debugging is enabled.
func (p *Packing) Dump(prefix string) {
	if !log.DebugEnabled() {
		return
	}
	lines := []string{fmt.Sprintf("%s%s:", prefix, p)}
	for i, h := range p.hosts {
		lines = append(lines, fmt.Sprintf("%s  #%d: %s", prefix, i, h))
	}
	log.Debug("%s", strings.Join(lines, "\n"))
}
