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

import "fmt"

var (
	ErrInfeasible          = fmt.Errorf("vmpack: infeasible instance")
	ErrGuestTooLarge       = fmt.Errorf("vmpack: guest exceeds host capacity")
	ErrInvalidParameter    = fmt.Errorf("vmpack: invalid parameter")
	ErrUnsupportedInstance = fmt.Errorf("vmpack: unsupported instance")
	ErrInvalidPacking      = fmt.Errorf("vmpack: invalid packing")
)
