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

package solver

import (
	"github.com/smich42/vmpacking/pkg/maximizer"
)

// Option is an option for solvers.
type Option func(*options)

type options struct {
	decant         bool
	unlimitedHosts bool
	intermediate   Proceeder
	localSearch    []maximizer.LocalSearchOption
	collector      *Collector
}

func newOptions(opts ...Option) *options {
	o := &options{
		decant:       true,
		intermediate: ProceedByFirstFit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithoutDecanting disables decanting of solver and maximizer outputs.
func WithoutDecanting() Option {
	return func(o *options) {
		o.decant = false
	}
}

// WithDecanting enables or disables decanting.
func WithDecanting(enabled bool) Option {
	return func(o *options) {
		o.decant = enabled
	}
}

// WithUnlimitedHosts runs the n-host maximizer of SolveByMaximizer once
// with one host per guest instead of searching for the least sufficient
// host count.
func WithUnlimitedHosts() Option {
	return func(o *options) {
		o.unlimitedHosts = true
	}
}

// WithIntermediate sets the solver SolveByTree packs subtrees with.
func WithIntermediate(p Proceeder) Option {
	return func(o *options) {
		if p != nil {
			o.intermediate = p
		}
	}
}

// WithLocalSearchOptions passes options to the local search of the
// local maximizing solvers.
func WithLocalSearchOptions(opts ...maximizer.LocalSearchOption) Option {
	return func(o *options) {
		o.localSearch = append(o.localSearch, opts...)
	}
}

// WithCollector sets the metrics collector solvers created by New report to.
func WithCollector(c *Collector) Option {
	return func(o *options) {
		o.collector = c
	}
}
