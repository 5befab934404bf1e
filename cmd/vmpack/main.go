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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgapi "github.com/smich42/vmpacking/pkg/apis/config/v1alpha1"
	"github.com/smich42/vmpacking/pkg/config"
	logger "github.com/smich42/vmpacking/pkg/log"
	"github.com/smich42/vmpacking/pkg/version"
)

var (
	log = logger.Get("vmpack")
)

// globalOptions are shared by all subcommands.
type globalOptions struct {
	configFile string
	debug      []string
	logSource  bool
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configFile, "config", "c", "", "configuration file (YAML or JSON)")
	fs.StringSliceVar(&o.debug, "debug", nil,
		"enable debug logging for sources, for instance 'solver,maximizer' or 'all'")
	fs.BoolVar(&o.logSource, "log-source", false, "prefix log messages with their source")
}

// load reads the configuration and applies the logging flags to it.
func (o *globalOptions) load() (*cfgapi.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}

	if len(o.debug) > 0 {
		cfg.Log.Debug = append(cfg.Log.Debug, strings.Join(o.debug, ","))
	}
	if o.logSource {
		cfg.Log.LogSource = true
	}

	if err := logger.Configure(&cfg.Log); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "vmpack",
		Short: "Pack virtual machines onto hosts, exploiting memory page sharing",
		Long: `vmpack places guests, each needing a set of memory pages, onto as few
hosts of fixed page capacity as possible. Pages shared by guests on the
same host are stored once.`,
		Version:       fmt.Sprintf("%s (build %s)", version.Version, version.Build),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newSolveCommand(opts),
		newGenerateCommand(opts),
		newValidateCommand(opts),
	)

	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.SetSlogLogger("vmpack")

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
