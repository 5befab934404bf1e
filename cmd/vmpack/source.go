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
package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/loader"
	"github.com/smich42/vmpacking/pkg/packing"
)

// source selects the instances a command works on.
type source struct {
	format string
	dir    string
	limit  int
}

func (s *source) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&s.format, "format", "f", "", "instance format: general, tree or cluster-tree")
	fs.StringVarP(&s.dir, "dir", "d", "", "directory of JSON or YAML instance files")
	fs.IntVarP(&s.limit, "max", "m", 0, "maximum number of instances to load, 0 for no limit")
}

type namedInstance struct {
	name string
	inst packing.Instance
}

// instances reads the instances of the directory and the given files, in that
// order, up to the instance limit.
func (s *source) instances(cfg *cfgapi.Config, files []string) ([]*namedInstance, error) {
	if s.dir == "" && len(files) == 0 {
		return nil, fmt.Errorf("no instances given, use --dir or pass instance files")
	}

	if s.format != "" {
		cfg.Loader.Format = cfgapi.Format(s.format)
	}

	l, err := loader.New(&cfg.Loader)
	if err != nil {
		return nil, err
	}

	var result []*namedInstance
	full := func() bool {
		return s.limit > 0 && len(result) >= s.limit
	}
	add := func(name string, instances []packing.Instance) {
		for i, inst := range instances {
			if full() {
				return
			}
			result = append(result, &namedInstance{
				name: fmt.Sprintf("%s[%d]", name, i),
				inst: inst,
			})
		}
	}

	if s.dir != "" {
		instances, err := l.LoadDir(s.dir, s.limit)
		if err != nil {
			return nil, err
		}
		add(filepath.Clean(s.dir), instances)
	}

	for _, f := range files {
		if full() {
			break
		}
		instances, err := l.LoadFile(f)
		if err != nil {
			return nil, err
		}
		add(f, instances)
	}

	log.Debug("loaded %d %s instances", len(result), l.Format())

	return result, nil
}
