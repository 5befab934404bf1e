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

package tracing

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	logger "github.com/smich42/vmpacking/pkg/log"
	"github.com/smich42/vmpacking/pkg/version"
)

// Option represents an option which can be applied to tracing.
type Option func(*tracing) error

type tracing struct {
	sync.RWMutex
	service   string
	endpoint  string
	sampling  float64
	processor sdktrace.SpanProcessor
	provider  *sdktrace.TracerProvider
}

var (
	log = logger.Get("tracing")
	trc = &tracing{
		service: filepath.Base(os.Args[0]),
	}
)

const (
	// timeout for flushing and shutting down the provider
	shutdownTimeout = 5 * time.Second
)

// WithCollectorEndpoint sets the collector endpoint to export spans to.
func WithCollectorEndpoint(endpoint string) Option {
	return func(t *tracing) error {
		t.endpoint = endpoint
		return nil
	}
}

// WithSamplingRatio sets the ratio of sampled traces.
func WithSamplingRatio(ratio float64) Option {
	return func(t *tracing) error {
		if ratio < 0.0 || ratio > 1.0 {
			return fmt.Errorf("invalid sampling ratio %f", ratio)
		}
		t.sampling = ratio
		return nil
	}
}

// WithServiceName sets the service name reported for tracing.
func WithServiceName(name string) Option {
	return func(t *tracing) error {
		t.service = name
		return nil
	}
}

// WithSpanProcessor sends spans to the given processor instead of a
// collector endpoint.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(t *tracing) error {
		t.processor = p
		return nil
	}
}

// Start tracing with the given options.
func Start(options ...Option) error {
	return trc.start(options...)
}

// Stop tracing, flushing any pending spans.
func Stop() {
	trc.shutdown()
}

// Enabled returns true if tracing is active.
func Enabled() bool {
	trc.RLock()
	defer trc.RUnlock()
	return trc.provider != nil
}

func (t *tracing) start(options ...Option) error {
	t.shutdown()

	t.Lock()
	defer t.Unlock()

	t.endpoint, t.processor = "", nil
	for _, opt := range options {
		if err := opt(t); err != nil {
			return fmt.Errorf("failed to set tracing option: %w", err)
		}
	}

	switch {
	case t.endpoint == "" && t.processor == nil:
		log.Debug("tracing disabled, no endpoint set")
		return nil
	case t.sampling == 0.0:
		log.Debug("tracing disabled, sampling ratio is 0.0")
		return nil
	}

	processor := t.processor
	if processor == nil {
		exporter, err := getExporter(t.endpoint)
		if err != nil {
			return fmt.Errorf("failed to start tracing exporter: %w", err)
		}
		processor = sdktrace.NewBatchSpanProcessor(exporter)
	}

	log.Info("starting tracing (sampling ratio %.6f)...", t.sampling)

	hostname, _ := os.Hostname()
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(t.service),
		semconv.HostName(hostname),
		semconv.ProcessPID(os.Getpid()),
		attribute.String("Version", version.Version),
		attribute.String("Build", version.Build),
	)

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(t.sampling)),
		),
	)

	otel.SetTracerProvider(t.provider)

	return nil
}

func (t *tracing) shutdown() {
	t.Lock()
	provider := t.provider
	t.provider = nil
	t.Unlock()

	if provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := provider.ForceFlush(ctx); err != nil {
		log.Error("failed to flush tracer provider: %v", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		log.Error("failed to shut down tracer provider: %v", err)
	}
}

func (t *tracing) tracer() *sdktrace.TracerProvider {
	t.RLock()
	defer t.RUnlock()
	return t.provider
}

func getExporter(endpoint string) (sdktrace.SpanExporter, error) {
	var (
		u   *url.URL
		err error
	)

	// A plain scheme selects the default OTLP endpoint of the exporter:
	//   - otlp-http, http: localhost:4318
	//   - otlp-grpc, grpc: localhost:4317
	switch endpoint {
	case "otlp-http", "http", "otlp-grpc", "grpc":
		u = &url.URL{Scheme: endpoint}
	default:
		u, err = url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid tracing endpoint %q: %w", endpoint, err)
		}
	}

	switch u.Scheme {
	case "otlp-http", "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if u.Host != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(u.Host))
		}
		return otlptracehttp.New(context.Background(), opts...)
	case "otlp-grpc", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if u.Host != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(u.Host))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	}

	return nil, fmt.Errorf("unsupported tracing endpoint %q", endpoint)
}
