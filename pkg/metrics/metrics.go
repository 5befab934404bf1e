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

package metrics

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	model "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	logger "github.com/smich42/vmpacking/pkg/log"
)

var (
	log  = logger.Get("metrics")
	clog = logger.Get("collector")
)

type (
	// State is the configuration of a collector or a group of collectors.
	State int

	// Collector is a registered prometheus.Collector.
	Collector struct {
		collector prometheus.Collector
		name      string
		group     string
		State
		lastpoll []prometheus.Metric
	}

	// CollectorOption is an option for a Collector.
	CollectorOption func(*Collector)
)

const (
	// Enabled marks a collector as enabled.
	Enabled State = (1 << iota)
	// Polled marks a collector as polled. Polled collectors report the
	// metrics cached during the last explicit Poll.
	Polled
	// NamespacePrefix prefixes the metrics of a collector with the gatherer namespace.
	NamespacePrefix
	// SubsystemPrefix prefixes the metrics of a collector with its group name.
	SubsystemPrefix

	// DefaultName is the name of the default group.
	DefaultName = "default"
)

// WithoutNamespace disables namespace prefixing for a collector.
func WithoutNamespace() CollectorOption {
	return func(c *Collector) {
		c.State &^= NamespacePrefix
	}
}

// WithoutSubsystem disables group prefixing for a collector.
func WithoutSubsystem() CollectorOption {
	return func(c *Collector) {
		c.State &^= SubsystemPrefix
	}
}

// WithPolled marks a collector polled.
func WithPolled() CollectorOption {
	return func(c *Collector) {
		c.State |= Polled
	}
}

func (s State) IsEnabled() bool      { return s&Enabled != 0 }
func (s State) IsPolled() bool       { return s&Polled != 0 }
func (s State) NeedsNamespace() bool { return s&NamespacePrefix != 0 }
func (s State) NeedsSubsystem() bool { return s&SubsystemPrefix != 0 }

// String returns a string representation of the state.
func (s State) String() string {
	flags := []string{"disabled"}
	if s.IsEnabled() {
		flags[0] = "enabled"
	}
	if s.IsPolled() {
		flags = append(flags, "polled")
	}
	if s.NeedsNamespace() {
		flags = append(flags, "namespace-prefixed")
	}
	if s.NeedsSubsystem() {
		flags = append(flags, "subsystem-prefixed")
	}
	return strings.Join(flags, ",")
}

// NewCollector wraps the given prometheus collector.
func NewCollector(name string, collector prometheus.Collector, options ...CollectorOption) *Collector {
	c := &Collector{
		name:      name,
		collector: collector,
		State:     Enabled | NamespacePrefix | SubsystemPrefix,
	}

	for _, o := range options {
		o(c)
	}

	return c
}

// Name returns the fully qualified name of the collector.
func (c *Collector) Name() string {
	return c.group + "/" + c.name
}

// Matches returns true if the collector matches the given glob.
func (c *Collector) Matches(glob string) bool {
	for _, name := range []string{c.group, c.name, c.Name()} {
		if glob == name {
			return true
		}
		ok, err := path.Match(glob, name)
		if err != nil {
			log.Warn("invalid glob pattern %q: %v", glob, err)
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.collector.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	switch {
	case !c.IsEnabled():
		return
	case !c.IsPolled():
		clog.Debug("collecting %q", c.Name())
		c.collector.Collect(ch)
	default:
		clog.Debug("collecting (polled) %q", c.Name())
		for _, m := range c.lastpoll {
			ch <- m
		}
	}
}

// Poll refreshes the cached metrics of an enabled polled collector.
func (c *Collector) Poll() {
	if !c.IsEnabled() || !c.IsPolled() {
		return
	}

	clog.Debug("polling %q", c.Name())

	ch := make(chan prometheus.Metric, 32)
	go func() {
		c.collector.Collect(ch)
		close(ch)
	}()

	polled := make([]prometheus.Metric, 0, 16)
	for m := range ch {
		polled = append(polled, m)
	}

	c.lastpoll = polled
}

// Enable enables or disables the collector.
func (c *Collector) Enable(state bool) {
	if state {
		c.State |= Enabled
	} else {
		c.State &^= Enabled
	}
}

// Polled marks the collector polled or non-polled.
func (c *Collector) Polled(state bool) {
	if state {
		c.State |= Polled
	} else {
		c.State &^= Polled
	}
}

// Group is a named collection of collectors.
type Group struct {
	name       string
	collectors []*Collector
}

func newGroup(name string) *Group {
	return &Group{name: name}
}

// Describe implements prometheus.Collector.
func (g *Group) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range g.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (g *Group) Collect(ch chan<- prometheus.Metric) {
	clog.Debug("collecting group %s", g.name)
	for _, c := range g.collectors {
		c.Collect(ch)
	}
}

func (g *Group) poll() {
	if !g.state().IsPolled() {
		return
	}
	clog.Debug("polling group %s", g.name)
	for _, c := range g.collectors {
		c.Poll()
	}
}

func (g *Group) state() State {
	var state State
	for _, c := range g.collectors {
		state |= c.State
	}
	return state
}

func (g *Group) add(c *Collector) {
	c.group = g.name
	g.collectors = append(g.collectors, c)
	log.Debug("registered collector %q", c.Name())
}

func (g *Group) register(plain, ns prometheus.Registerer) error {
	var (
		plainGrp = prefixedRegisterer(g.name, plain)
		nsGrp    = prefixedRegisterer(g.name, ns)
	)

	for _, c := range g.collectors {
		reg := plain
		switch {
		case c.NeedsNamespace() && c.NeedsSubsystem():
			reg = nsGrp
		case c.NeedsNamespace():
			reg = ns
		case c.NeedsSubsystem():
			reg = plainGrp
		}
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("metrics: failed to register collector %q: %w", c.Name(), err)
		}
	}

	return nil
}

func (g *Group) configure(enabled, polled []string, match map[string]struct{}) State {
	state := State(0)
	for _, c := range g.collectors {
		c.Enable(false)
		for _, glob := range enabled {
			if c.Matches(glob) {
				match[glob] = struct{}{}
				c.Enable(true)
			}
		}
		for _, glob := range polled {
			if c.Matches(glob) {
				match[glob] = struct{}{}
				c.Enable(true)
				c.Polled(true)
			}
		}
		log.Debug("collector %q now %s", c.Name(), c.State)
		state |= c.State
	}
	return state
}

type (
	// Registry is a collection of groups.
	Registry struct {
		sync.Mutex
		groups map[string]*Group
	}

	// RegisterOptions are options for registering collectors.
	RegisterOptions struct {
		group string
		copts []CollectorOption
	}

	// RegisterOption is an option for registering collectors.
	RegisterOption func(*RegisterOptions)
)

// WithGroup registers a collector in the given group.
func WithGroup(name string) RegisterOption {
	return func(o *RegisterOptions) {
		if name == "" {
			name = DefaultName
		}
		o.group = name
	}
}

// WithCollectorOptions registers a collector with the given options.
func WithCollectorOptions(opts ...CollectorOption) RegisterOption {
	return func(o *RegisterOptions) {
		o.copts = append(o.copts, opts...)
	}
}

// NewRegistry creates a new registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]*Group),
	}
}

// Register registers a collector with the registry.
func (r *Registry) Register(name string, collector prometheus.Collector, opts ...RegisterOption) error {
	options := &RegisterOptions{group: DefaultName}
	for _, o := range opts {
		o(options)
	}

	r.Lock()
	defer r.Unlock()

	grp, ok := r.groups[options.group]
	if !ok {
		grp = newGroup(options.group)
		r.groups[grp.name] = grp
	}

	for _, c := range grp.collectors {
		if c.name == name {
			return fmt.Errorf("metrics: collector %q already registered", c.Name())
		}
	}

	grp.add(NewCollector(name, collector, options.copts...))

	return nil
}

// Configure enables the collectors matching any of the given globs. Any
// collector matching a glob in polled is also put in polled mode.
func (r *Registry) Configure(enabled, polled []string) (State, error) {
	log.Debug("configuring collectors enabled=[%s], polled=[%s]",
		strings.Join(enabled, ","), strings.Join(polled, ","))

	r.Lock()
	defer r.Unlock()

	var (
		match = make(map[string]struct{})
		state State
	)
	for _, name := range r.groupNames() {
		state |= r.groups[name].configure(enabled, polled, match)
	}

	unmatched := []string{}
	for _, glob := range append(append([]string{}, enabled...), polled...) {
		if _, ok := match[glob]; !ok {
			unmatched = append(unmatched, glob)
		}
	}

	if len(unmatched) > 0 {
		return state, fmt.Errorf("metrics: no collectors match globs %s",
			strings.Join(unmatched, ", "))
	}

	return state, nil
}

// Poll refreshes all enabled polled collectors.
func (r *Registry) Poll() {
	r.Lock()
	defer r.Unlock()
	for _, name := range r.groupNames() {
		r.groups[name].poll()
	}
}

// State returns the collective state of all collectors in the registry.
func (r *Registry) State() State {
	r.Lock()
	defer r.Unlock()
	var state State
	for _, g := range r.groups {
		state |= g.state()
	}
	return state
}

func (r *Registry) groupNames() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func prefixedRegisterer(prefix string, reg prometheus.Registerer) prometheus.Registerer {
	if prefix != "" {
		return prometheus.WrapRegistererWithPrefix(prefix+"_", reg)
	}
	return reg
}

type (
	// Gatherer is a prometheus.Gatherer for a Registry.
	Gatherer struct {
		*prometheus.Registry
		r         *Registry
		namespace string
		enabled   []string
		polled    []string
	}

	// GathererOption is an option for a Gatherer.
	GathererOption func(*Gatherer)
)

// WithNamespace sets the common namespace prefix of gathered metrics.
func WithNamespace(namespace string) GathererOption {
	return func(g *Gatherer) {
		g.namespace = namespace
	}
}

// WithMetrics sets the enabled and polled collector globs.
func WithMetrics(enabled, polled []string) GathererOption {
	return func(g *Gatherer) {
		g.enabled = enabled
		g.polled = polled
	}
}

// NewGatherer creates a gatherer for the registry.
func (r *Registry) NewGatherer(opts ...GathererOption) (*Gatherer, error) {
	g := &Gatherer{
		r:        r,
		Registry: prometheus.NewPedanticRegistry(),
	}

	for _, o := range opts {
		o(g)
	}

	if _, err := r.Configure(g.enabled, g.polled); err != nil {
		return nil, err
	}

	nsg := prefixedRegisterer(g.namespace, g.Registry)

	r.Lock()
	defer r.Unlock()
	for _, name := range r.groupNames() {
		if err := r.groups[name].register(g.Registry, nsg); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Poll refreshes all polled collectors of the underlying registry.
func (g *Gatherer) Poll() {
	g.r.Poll()
}

// Gather implements prometheus.Gatherer.
func (g *Gatherer) Gather() ([]*model.MetricFamily, error) {
	return g.Registry.Gather()
}

// WriteText gathers all metrics and writes them in the text exposition format.
func (g *Gatherer) WriteText(w io.Writer) error {
	return WriteText(w, g)
}

// WriteText gathers metrics and writes them in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("metrics: failed to gather: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

var (
	defaultRegistry = NewRegistry()
)

// Default returns the default registry.
func Default() *Registry {
	return defaultRegistry
}

// Register registers a collector with the default registry.
func Register(name string, collector prometheus.Collector, opts ...RegisterOption) error {
	return Default().Register(name, collector, opts...)
}

// MustRegister registers a collector with the default registry, panicking on error.
func MustRegister(name string, collector prometheus.Collector, opts ...RegisterOption) {
	if err := Register(name, collector, opts...); err != nil {
		panic(err)
	}
}

// NewGatherer creates a gatherer for the default registry.
func NewGatherer(opts ...GathererOption) (*Gatherer, error) {
	return Default().NewGatherer(opts...)
}
