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

// Decant consolidates the packing by moving guests from later hosts into
// earlier ones where they fit, dropping hosts which become empty.
func (p *Packing) Decant() {
	before := len(p.hosts)
	p.hosts = Decant(p.hosts)
	if len(p.hosts) != before {
		log.Debug("decanting reduced %d hosts to %d", before, len(p.hosts))
	}
}

// Decant moves groups of guests from later hosts into earlier ones where
// the whole group fits, trying the given partitioners in order, or the
// default ones if none are given. Empty hosts are dropped. Decanting never
// overfills a host and never adds hosts.
func Decant(hosts []*Host, partitioners ...Partitioner) []*Host {
	if len(partitioners) == 0 {
		partitioners = DefaultPartitioners()
	}

	for i := 0; i < len(hosts); i++ {
		dst := hosts[i]
		for j := i + 1; j < len(hosts); j++ {
			src := hosts[j]
			for _, partition := range partitioners {
				if src.IsEmpty() {
					break
				}
				for _, part := range partition(src.Guests()) {
					if !dst.AccommodatesAll(part) {
						continue
					}
					for _, g := range part {
						src.RemoveGuest(g)
						dst.AddGuest(g)
					}
				}
			}
		}
	}

	return DropEmptyHosts(hosts)
}
