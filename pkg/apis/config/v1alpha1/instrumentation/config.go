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

	"github.com/smich42/vmpacking/pkg/apis/config/v1alpha1/metrics"
)

// Config provides runtime configuration for instrumentation.
type Config struct {
	// SamplingRatePerMillion is the number of samples to collect per million spans.
	// +optional
	// +kubebuilder:example=100000
	SamplingRatePerMillion int `json:"samplingRatePerMillion,omitempty"`
	// TracingCollector defines the external endpoint for tracing data collection.
	// Endpoints are specified as full URLs, or as plain URL schemes which then
	// imply scheme-specific defaults. The supported schemes and their default
	// URLs are:
	//   - otlp-http, http: localhost:4318
	//   - otlp-grpc, grpc: localhost:4317
	// +optional
	// +kubebuilder:example="otlp-http://localhost:4318"
	TracingCollector string `json:"tracingCollector,omitempty"`
	// Metrics defines which metrics to collect.
	// +kubebuilder:default={"enabled": {"solver"}}
	Metrics metrics.Config `json:"metrics,omitempty"`
}

// SamplingRatio returns the configured sampling rate as a ratio.
func (c *Config) SamplingRatio() float64 {
	return float64(c.SamplingRatePerMillion) / 1000000.0
}

// SetDefaults fills in unset instrumentation configuration with defaults.
func (c *Config) SetDefaults() {
	if len(c.Metrics.Enabled) == 0 && len(c.Metrics.Polled) == 0 {
		c.Metrics.Enabled = []string{"solver"}
	}
}

// Validate checks the instrumentation configuration.
func (c *Config) Validate() error {
	if c.SamplingRatePerMillion < 0 || c.SamplingRatePerMillion > 1000000 {
		return fmt.Errorf("sampling rate %d out of range [0, 1000000]", c.SamplingRatePerMillion)
	}
	return nil
}
