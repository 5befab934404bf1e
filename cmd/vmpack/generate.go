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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/generator"
)

type generateOptions struct {
	*globalOptions
	params generator.Params
	seed   int64
	count  int
	output string
}

func newGenerateCommand(g *globalOptions) *cobra.Command {
	o := &generateOptions{
		globalOptions: g,
		params:        generator.DefaultParams(),
		seed:          10,
		count:         1,
		output:        "json",
	}

	cmd := &cobra.Command{
		Use:       "generate {general|tree|cluster-tree}",
		Short:     "Print random sample instances",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"general", "tree", "cluster-tree"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.OutOrStdout(), cfgapi.Format(args[0]))
		},
	}

	fs := cmd.Flags()
	fs.Int64Var(&o.seed, "seed", o.seed, "random seed")
	fs.IntVarP(&o.count, "count", "n", o.count, "number of instances, more than one yields an array")
	fs.StringVarP(&o.output, "output", "o", o.output, "output format: json or yaml")
	fs.IntVar(&o.params.Guests, "guests", o.params.Guests, "number of guests")
	fs.IntVar(&o.params.Pages, "pages", o.params.Pages, "number of distinct pages")
	fs.IntVar(&o.params.MinDegree, "min-degree", o.params.MinDegree, "minimum tree node fan-out")
	fs.IntVar(&o.params.MaxDegree, "max-degree", o.params.MaxDegree, "maximum tree node fan-out")
	fs.IntVar(&o.params.ClusterNodes, "cluster-nodes", o.params.ClusterNodes,
		"inner nodes per cluster")
	fs.IntVar(&o.params.MaxClusterDegree, "max-cluster-degree", o.params.MaxClusterDegree,
		"maximum number of child clusters")
	fs.IntVar(&o.params.MaxNodePages, "max-node-pages", o.params.MaxNodePages,
		"maximum pages owned by a cluster tree node")

	return cmd
}

func (o *generateOptions) run(out io.Writer, format cfgapi.Format) error {
	cfg, err := o.globalOptions.load()
	if err != nil {
		return err
	}

	if o.count < 1 {
		return fmt.Errorf("invalid instance count %d", o.count)
	}

	g := generator.New(o.seed, &cfg.Loader)
	docs := make([]generator.Document, 0, o.count)
	for i := 0; i < o.count; i++ {
		doc, err := g.Generate(format, o.params)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	var data []byte
	switch {
	case o.output == "json" && o.count == 1:
		data, err = docs[0].JSON()
	case o.output == "json":
		data, err = json.MarshalIndent(docs, "", "  ")
	case o.output == "yaml" && o.count == 1:
		data, err = docs[0].YAML()
	case o.output == "yaml":
		data, err = yaml.Marshal(docs)
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal instances: %w", err)
	}

	if _, err := out.Write(data); err != nil {
		return err
	}
	if o.output == "json" {
		_, err = fmt.Fprintln(out)
	}

	return err
}
