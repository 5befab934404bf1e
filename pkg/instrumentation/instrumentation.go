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

package instrumentation

import (
	"fmt"
	"sync"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1/instrumentation"
	"github.com/smich42/vmpacking/pkg/instrumentation/tracing"
	logger "github.com/smich42/vmpacking/pkg/log"
	"github.com/smich42/vmpacking/pkg/metrics"
)

const (
	// ServiceName is our service name in external tracing services.
	ServiceName = "vmpack"
	// MetricsNamespace prefixes all namespaced metrics.
	MetricsNamespace = "vmpack"
)

var (
	lock     sync.Mutex
	gatherer *metrics.Gatherer
	log      = logger.NewLogger("instrumentation")
)

// Start tracing and metrics collection for the given configuration,
// using the default metrics registry.
func Start(cfg *cfgapi.Config) (*metrics.Gatherer, error) {
	return StartWithRegistry(cfg, metrics.Default())
}

// StartWithRegistry starts tracing and metrics collection, gathering
// metrics from the given registry.
func StartWithRegistry(cfg *cfgapi.Config, r *metrics.Registry) (*metrics.Gatherer, error) {
	lock.Lock()
	defer lock.Unlock()

	stop()

	if cfg == nil {
		cfg = &cfgapi.Config{}
	}

	log.Debug("starting instrumentation...")

	if err := tracing.Start(
		tracing.WithServiceName(ServiceName),
		tracing.WithCollectorEndpoint(cfg.TracingCollector),
		tracing.WithSamplingRatio(cfg.SamplingRatio()),
	); err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	g, err := r.NewGatherer(
		metrics.WithNamespace(MetricsNamespace),
		metrics.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Polled),
	)
	if err != nil {
		tracing.Stop()
		return nil, fmt.Errorf("failed to start metrics: %w", err)
	}

	gatherer = g

	return g, nil
}

// Gatherer returns the active metrics gatherer, or nil.
func Gatherer() *metrics.Gatherer {
	lock.Lock()
	defer lock.Unlock()
	return gatherer
}

// Stop instrumentation, flushing any pending traces.
func Stop() {
	lock.Lock()
	defer lock.Unlock()
	stop()
}

func stop() {
	tracing.Stop()
	gatherer = nil
}
