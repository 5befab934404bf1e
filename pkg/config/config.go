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

package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	logger "github.com/smich42/vmpacking/pkg/log"
)

var (
	log = logger.Get("config")
)

// Default returns a configuration with all defaults filled in.
func Default() *cfgapi.Config {
	cfg := &cfgapi.Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads, defaults and validates the configuration in the given file.
// An empty path yields the default configuration.
func Load(path string) (*cfgapi.Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info("loaded configuration from %s", path)

	return cfg, nil
}

// Parse parses, defaults and validates the given YAML or JSON configuration.
func Parse(data []byte) (*cfgapi.Config, error) {
	cfg := &cfgapi.Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if log.DebugEnabled() {
		dump, _ := yaml.Marshal(cfg)
		log.Debug("effective configuration:\n%s", string(dump))
	}

	return cfg, nil
}
