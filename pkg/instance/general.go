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

package instance

import (
	"github.com/smich42/vmpacking/pkg/packing"
)

// GeneralInstance is a flat list of guests with no sharing structure
// beyond page identity.
type GeneralInstance struct {
	capacity int
	guests   []*packing.Guest
}

var _ packing.Instance = &GeneralInstance{}

// NewGeneralInstance creates an instance with one guest per page set,
// numbered in order.
func NewGeneralInstance(capacity int, pages ...packing.PageSet) *GeneralInstance {
	inst := &GeneralInstance{
		capacity: capacity,
		guests:   make([]*packing.Guest, 0, len(pages)),
	}
	for _, p := range pages {
		inst.AddGuest(p)
	}
	return inst
}

// AddGuest adds a guest with the given pages, returning it.
func (i *GeneralInstance) AddGuest(pages packing.PageSet) *packing.Guest {
	g := packing.NewGuest(packing.GuestID(len(i.guests)), pages)
	i.guests = append(i.guests, g)
	return g
}

// Capacity returns the page capacity of every host.
func (i *GeneralInstance) Capacity() int {
	return i.capacity
}

// Guests returns the guests of the instance.
func (i *GeneralInstance) Guests() []*packing.Guest {
	return i.guests
}
