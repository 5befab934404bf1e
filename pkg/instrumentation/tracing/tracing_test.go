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

package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/smich42/vmpacking/pkg/instrumentation/tracing"
)

func TestDisabledTracing(t *testing.T) {
	require.NoError(t, tracing.Start())
	defer tracing.Stop()

	require.False(t, tracing.Enabled())

	ctx, span := tracing.StartSpan(context.Background(), "noop")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.SetAttributes(tracing.Attribute("guests", 3))
	span.End(tracing.WithStatus(nil))
}

func TestRecordedSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	require.NoError(t, tracing.Start(
		tracing.WithSpanProcessor(recorder),
		tracing.WithSamplingRatio(1.0),
	))
	defer tracing.Stop()

	require.True(t, tracing.Enabled())

	ctx, parent := tracing.StartSpan(context.Background(), "parent",
		tracing.WithAttributes(tracing.Attribute("algorithm", "first-fit")))
	_, child := tracing.StartSpan(ctx, "child")
	child.End(tracing.WithStatus(errors.New("infeasible")))
	parent.End(tracing.WithStatus(nil))

	ended := recorder.Ended()
	require.Equal(t, 2, len(ended))
	require.Equal(t, "child", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	require.Equal(t, "parent", ended[1].Name())
	require.Equal(t, codes.Ok, ended[1].Status().Code)
	require.Contains(t, ended[1].Attributes(), attribute.String("algorithm", "first-fit"))
}

func TestInvalidOptions(t *testing.T) {
	require.Error(t, tracing.Start(tracing.WithSamplingRatio(1.5)))
	require.Error(t, tracing.Start(
		tracing.WithCollectorEndpoint("ftp://localhost:21"),
		tracing.WithSamplingRatio(1.0),
	))
	tracing.Stop()
}

func TestAttribute(t *testing.T) {
	type testCase struct {
		name   string
		value  interface{}
		result attribute.KeyValue
	}
	for _, tc := range []*testCase{
		{name: "nil", value: nil, result: attribute.String("nil", "<nil>")},
		{name: "int", value: 7, result: attribute.Int("int", 7)},
		{name: "bool", value: true, result: attribute.Bool("bool", true)},
		{name: "float", value: 0.5, result: attribute.Float64("float", 0.5)},
		{name: "other", value: []int{1, 2}, result: attribute.String("other", "[1 2]")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.result, tracing.Attribute(tc.name, tc.value))
		})
	}
}
