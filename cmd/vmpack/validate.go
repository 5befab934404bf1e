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
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smich42/vmpacking/pkg/packing"
)

type validateOptions struct {
	*globalOptions
	source
}

func newValidateCommand(g *globalOptions) *cobra.Command {
	o := &validateOptions{globalOptions: g}

	cmd := &cobra.Command{
		Use:   "validate [flags] [FILE...]",
		Short: "Load instances and report their statistics",
		Long: `Load instances and report their statistics, failing if any instance
cannot be read or has a guest larger than the host capacity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.OutOrStdout(), args)
		},
	}

	o.source.addFlags(cmd.Flags())

	return cmd
}

func (o *validateOptions) run(out io.Writer, files []string) error {
	cfg, err := o.globalOptions.load()
	if err != nil {
		return err
	}

	instances, err := o.source.instances(cfg, files)
	if err != nil {
		return err
	}

	var (
		good       = color.New(color.FgGreen).SprintFunc()
		bad        = color.New(color.FgRed).SprintFunc()
		infeasible = 0
	)

	for _, ni := range instances {
		if err := packing.CheckFeasible(ni.inst); err != nil {
			infeasible++
			fmt.Fprintf(out, "%s: %s: %v\n", ni.name, bad("infeasible"), err)
			continue
		}
		fmt.Fprintf(out, "%s: %s: %s\n", ni.name, good("ok"), packing.Stats(ni.inst))
	}

	if infeasible > 0 {
		return fmt.Errorf("%d of %d instances infeasible", infeasible, len(instances))
	}

	return nil
}
