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

package v1alpha1

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/smich42/vmpacking/pkg/apis/config/v1alpha1/instrumentation"
	"github.com/smich42/vmpacking/pkg/apis/config/v1alpha1/log"
)

// Algorithm names a packing algorithm.
type Algorithm string

const (
	NextFit                    Algorithm = "next-fit"
	FirstFit                   Algorithm = "first-fit"
	BestFusion                 Algorithm = "best-fusion"
	OverloadAndRemove          Algorithm = "overload-and-remove"
	OpportunityAwareEfficiency Algorithm = "opportunity-aware-efficiency"
	Tree                       Algorithm = "tree"
	LocalSubsetEfficiency      Algorithm = "local-subset-efficiency"
	LocalClusterTree           Algorithm = "local-cluster-tree"
)

// Algorithms returns all known algorithms in their canonical order.
func Algorithms() []Algorithm {
	return []Algorithm{
		NextFit,
		FirstFit,
		BestFusion,
		OverloadAndRemove,
		OpportunityAwareEfficiency,
		Tree,
		LocalSubsetEfficiency,
		LocalClusterTree,
	}
}

// IsValid returns true if the algorithm is known.
func (a Algorithm) IsValid() bool {
	for _, known := range Algorithms() {
		if a == known {
			return true
		}
	}
	return false
}

// Format names an instance input format.
type Format string

const (
	FormatGeneral     Format = "general"
	FormatTree        Format = "tree"
	FormatClusterTree Format = "cluster-tree"
)

const (
	// DefaultSubsetSize is the default initial subset size for subset efficiency.
	DefaultSubsetSize = 1
	// DefaultEpsilon is the default local search slack.
	DefaultEpsilon = 0.1
	// DefaultApproxRatio is the default one-host maximizer approximation ratio.
	DefaultApproxRatio = 1.0
	// MaxSubsetSize is the largest accepted initial subset size.
	MaxSubsetSize = 4
)

// Config is the top-level configuration of vmpack.
type Config struct {
	// +optional
	Log log.Config `json:"log,omitempty"`
	// +optional
	Solver SolverConfig `json:"solver,omitempty"`
	// +optional
	Loader LoaderConfig `json:"loader,omitempty"`
	// +optional
	Instrumentation instrumentation.Config `json:"instrumentation,omitempty"`
}

// SolverConfig configures the packing algorithms.
type SolverConfig struct {
	// Algorithms lists the algorithms to run.
	// +optional
	// +kubebuilder:example={"best-fusion","local-subset-efficiency"}
	Algorithms []Algorithm `json:"algorithms,omitempty"`
	// SubsetSize is the initial subset size of the subset efficiency maximizer.
	// +optional
	// +kubebuilder:default=1
	SubsetSize int `json:"subsetSize,omitempty"`
	// Epsilon is the local search slack. Smaller values mean more rounds.
	// +optional
	// +kubebuilder:default=0.1
	Epsilon float64 `json:"epsilon,omitempty"`
	// ApproxRatio is the assumed approximation ratio of the one-host maximizer.
	// +optional
	// +kubebuilder:default=1.0
	ApproxRatio float64 `json:"approxRatio,omitempty"`
	// DisableDecanting turns off the consolidating post-pass.
	// +optional
	DisableDecanting bool `json:"disableDecanting,omitempty"`
	// UnlimitedHosts runs maximizers once with one host per guest instead of
	// searching for the smallest sufficient host count.
	// +optional
	UnlimitedHosts bool `json:"unlimitedHosts,omitempty"`
}

// LoaderConfig configures instance loading. Field names select the keys
// looked up in instance files.
type LoaderConfig struct {
	// +optional
	// +kubebuilder:default="general"
	Format Format `json:"format,omitempty"`
	// +optional
	CapacityField string `json:"capacityField,omitempty"`
	// +optional
	GuestsField string `json:"guestsField,omitempty"`
	// +optional
	PagesField string `json:"pagesField,omitempty"`
	// +optional
	ChildrenField string `json:"childrenField,omitempty"`
	// +optional
	GuestPagesField string `json:"guestPagesField,omitempty"`
	// +optional
	NodesField string `json:"nodesField,omitempty"`
	// +optional
	NodeIDField string `json:"nodeIdField,omitempty"`
	// +optional
	NodeParentsField string `json:"nodeParentsField,omitempty"`
	// +optional
	NodePagesField string `json:"nodePagesField,omitempty"`
	// +optional
	ClusterChildrenField string `json:"clusterChildrenField,omitempty"`
}

// SetDefaults fills in unset configuration with defaults.
func (c *Config) SetDefaults() {
	c.Solver.SetDefaults()
	c.Loader.SetDefaults()
	c.Instrumentation.SetDefaults()
}

// Validate checks the configuration, reporting all problems found.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if err := c.Solver.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := c.Loader.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := c.Instrumentation.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// SetDefaults fills in unset solver configuration with defaults.
func (c *SolverConfig) SetDefaults() {
	if len(c.Algorithms) == 0 {
		c.Algorithms = []Algorithm{BestFusion}
	}
	if c.SubsetSize == 0 {
		c.SubsetSize = DefaultSubsetSize
	}
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.ApproxRatio == 0 {
		c.ApproxRatio = DefaultApproxRatio
	}
}

// Validate checks the solver configuration.
func (c *SolverConfig) Validate() error {
	var errs *multierror.Error
	for _, a := range c.Algorithms {
		if !a.IsValid() {
			errs = multierror.Append(errs, fmt.Errorf("unknown algorithm %q", a))
		}
	}
	if c.SubsetSize < 1 || c.SubsetSize > MaxSubsetSize {
		errs = multierror.Append(errs, fmt.Errorf("subset size %d out of range [1, %d]",
			c.SubsetSize, MaxSubsetSize))
	}
	if c.Epsilon <= 0 || c.Epsilon >= 1 {
		errs = multierror.Append(errs, fmt.Errorf("epsilon %g out of range (0, 1)", c.Epsilon))
	}
	if c.ApproxRatio <= 0 || c.ApproxRatio > 1 {
		errs = multierror.Append(errs, fmt.Errorf("approximation ratio %g out of range (0, 1]",
			c.ApproxRatio))
	}
	return errs.ErrorOrNil()
}

// SetDefaults fills in unset loader configuration with defaults.
func (c *LoaderConfig) SetDefaults() {
	setDefault := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	if c.Format == "" {
		c.Format = FormatGeneral
	}
	setDefault(&c.CapacityField, "capacity")
	setDefault(&c.GuestsField, "guests")
	setDefault(&c.PagesField, "pages")
	setDefault(&c.ChildrenField, "children")
	setDefault(&c.GuestPagesField, "guest_pages")
	setDefault(&c.NodesField, "nodes")
	setDefault(&c.NodeIDField, "node_id")
	setDefault(&c.NodeParentsField, "node_parents")
	setDefault(&c.NodePagesField, "node_pages")
	setDefault(&c.ClusterChildrenField, "cluster_children")
}

// Validate checks the loader configuration.
func (c *LoaderConfig) Validate() error {
	switch c.Format {
	case FormatGeneral, FormatTree, FormatClusterTree:
		return nil
	}
	return fmt.Errorf("unknown instance format %q", c.Format)
}
