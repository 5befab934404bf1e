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

// Package metrics wraps prometheus collectors into named groups which can
// be enabled by glob, prefixed by group and namespace, and optionally
// polled. Polled collectors report the values cached during the last Poll,
// which suits snapshots taken once per solver batch.
//
// Usage:
//
//	metrics.MustRegister("solver", collector, metrics.WithGroup("solver"))
//
//	g, err := metrics.NewGatherer(
//	    metrics.WithNamespace("vmpack"),
//	    metrics.WithMetrics([]string{"solver"}, nil),
//	)
//	if err != nil {
//	    return err
//	}
//	g.Poll()
//	err = g.WriteText(os.Stdout)
package metrics
