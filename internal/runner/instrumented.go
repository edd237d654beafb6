// Copyright 2019 Google LLC
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

package runner

import (
	"context"
	"time"

	"go.opencensus.io/tag"
	"go.opencensus.io/trace"
	"vizier.dev/pythia/internal/telemetry"
	"vizier.dev/pythia/pkg/pythia"
)

// InstrumentedPolicy records a span, a call count and a latency for every
// call to the wrapped policy.
type InstrumentedPolicy struct {
	Policy    pythia.Policy
	Algorithm string
}

var _ pythia.Policy = (*InstrumentedPolicy)(nil)

// Suggest implements pythia.Policy.
func (p *InstrumentedPolicy) Suggest(ctx context.Context, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
	ctx, span := trace.StartSpan(ctx, "pythia.Policy.Suggest")
	defer span.End()
	span.AddAttributes(
		trace.StringAttribute("algorithm", p.Algorithm),
		trace.StringAttribute("study", req.GUID),
		trace.Int64Attribute("count", int64(req.Count)),
	)

	start := time.Now()
	decision, err := p.Policy.Suggest(ctx, req)
	p.record(ctx, span, "suggest", start, err)
	if err == nil {
		telemetry.RecordNUnitMeasurement(ctx, suggestionsReturned, int64(len(decision.Suggestions)), tag.Upsert(keyAlgorithm, p.Algorithm))
	}
	return decision, err
}

// EarlyStop implements pythia.Policy.
func (p *InstrumentedPolicy) EarlyStop(ctx context.Context, req *pythia.EarlyStopRequest) (*pythia.EarlyStopDecisions, error) {
	ctx, span := trace.StartSpan(ctx, "pythia.Policy.EarlyStop")
	defer span.End()
	span.AddAttributes(
		trace.StringAttribute("algorithm", p.Algorithm),
		trace.StringAttribute("study", req.GUID),
		trace.Int64Attribute("trials", int64(len(req.TrialIDs))),
	)

	start := time.Now()
	decisions, err := p.Policy.EarlyStop(ctx, req)
	p.record(ctx, span, "early_stop", start, err)
	return decisions, err
}

// ShouldBeCached reports whether the wrapped policy should be cached.
func (p *InstrumentedPolicy) ShouldBeCached() bool {
	return pythia.ShouldBeCached(p.Policy)
}

func (p *InstrumentedPolicy) record(ctx context.Context, span *trace.Span, operation string, start time.Time, err error) {
	code := pythia.Code(err)
	if err != nil {
		span.SetStatus(trace.Status{Code: int32(code), Message: err.Error()})
	}
	telemetry.RecordUnitMeasurement(ctx, policyCalls,
		tag.Upsert(keyAlgorithm, p.Algorithm),
		tag.Upsert(keyOperation, operation),
		tag.Upsert(keyCode, code.String()))
	telemetry.RecordNUnitMeasurement(ctx, policyLatency, time.Since(start).Milliseconds(),
		tag.Upsert(keyAlgorithm, p.Algorithm),
		tag.Upsert(keyOperation, operation))
}
