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
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.uber.org/goleak"
	"google.golang.org/grpc/codes"
	"vizier.dev/pythia/examples/tutorial"
	"vizier.dev/pythia/internal/config"
	internalTesting "vizier.dev/pythia/internal/testing"
	utilTesting "vizier.dev/pythia/internal/util/testing"
	"vizier.dev/pythia/pkg/pythia"
	"vizier.dev/pythia/pkg/vz"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedPolicy answers the n-th Suggest call with next(n).
type scriptedPolicy struct {
	cacheable bool
	calls     int
	next      func(n int, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error)
}

func (p *scriptedPolicy) Suggest(ctx context.Context, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
	p.calls++
	return p.next(p.calls, req)
}

func (p *scriptedPolicy) EarlyStop(ctx context.Context, req *pythia.EarlyStopRequest) (*pythia.EarlyStopDecisions, error) {
	return nil, pythia.ErrEarlyStopUnimplemented
}

func (p *scriptedPolicy) ShouldBeCached() bool {
	return p.cacheable
}

func suggestN(n int, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
	d := &pythia.SuggestDecision{Metadata: vz.NewMetadataDelta()}
	for i := 0; i < req.Count; i++ {
		d.Suggestions = append(d.Suggestions, vz.TrialSuggestion{Parameters: vz.ParameterDict{"x": vz.FloatValue(0.5)}})
	}
	return d, nil
}

type countingFactory struct {
	builds   int
	policies []*scriptedPolicy
	newOne   func() *scriptedPolicy
}

func (f *countingFactory) factory(_ *vz.ProblemStatement, _ pythia.PolicySupporter) (pythia.Policy, error) {
	f.builds++
	p := f.newOne()
	f.policies = append(f.policies, p)
	return p, nil
}

func constantBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 4)
}

func newRunner(t *testing.T, algorithm string, sc *vz.StudyConfig) *Runner {
	r := pythia.NewRegistry()
	require.Nil(t, tutorial.Register(r))
	f, ok := r.Factory(algorithm)
	require.True(t, ok)
	return &Runner{
		Supporter:   pythia.NewInRamPolicySupporter(sc),
		Factory:     f,
		Algorithm:   algorithm,
		Evaluator:   tutorial.DemoEvaluator(internalTesting.ObjectiveName),
		Iterations:  3,
		BatchSize:   2,
		Parallelism: 2,
	}
}

func colors(trials []*vz.Trial) []string {
	var out []string
	for _, t := range trials {
		out = append(out, t.Parameters["color"].AsString())
	}
	return out
}

func TestRunCyclesCategoricalValues(t *testing.T) {
	for _, algorithm := range []string{tutorial.MyPolicyAlgorithm, tutorial.MyDesignerAlgorithm} {
		algorithm := algorithm
		t.Run(algorithm, func(t *testing.T) {
			require := require.New(t)
			r := newRunner(t, algorithm, internalTesting.CategoricalStudy(algorithm, "color", "a", "bb", "ccc"))

			report, err := r.Run(utilTesting.NewContext(t))
			require.Nil(err)
			require.Len(report.Trials, 6)
			require.Equal([]string{"a", "bb", "ccc", "a", "bb", "ccc"}, colors(report.Trials))
			for _, trial := range report.Trials {
				require.Equal(vz.StatusCompleted, trial.Status())
			}
			require.Len(report.Best, 3)
			require.Equal([]string{"ccc", "ccc", "bb"}, colors(report.Best))
		})
	}
}

func TestRunMarksFailedEvaluationsInfeasible(t *testing.T) {
	require := require.New(t)
	r := newRunner(t, tutorial.MyPolicyAlgorithm, internalTesting.CategoricalStudy(tutorial.MyPolicyAlgorithm, "color", "a", "bb"))
	r.Iterations = 1
	demo := r.Evaluator
	r.Evaluator = func(ctx context.Context, params vz.ParameterDict) (vz.Measurement, error) {
		if params["color"].AsString() == "bb" {
			return vz.Measurement{}, fmt.Errorf("bb cannot be measured")
		}
		return demo(ctx, params)
	}

	report, err := r.Run(utilTesting.NewContext(t))
	require.Nil(err)
	require.Len(report.Trials, 2)
	require.False(report.Trials[0].Infeasible())
	require.True(report.Trials[1].Infeasible())
	require.Equal("bb cannot be measured", report.Trials[1].InfeasibilityReason)
	require.Equal([]string{"a"}, colors(report.Best))
}

func TestRunPolicyCache(t *testing.T) {
	for _, cacheable := range []bool{true, false} {
		cacheable := cacheable
		t.Run(fmt.Sprintf("cacheable=%v", cacheable), func(t *testing.T) {
			require := require.New(t)
			cache, err := NewPolicyCache(2)
			require.Nil(err)
			f := &countingFactory{newOne: func() *scriptedPolicy {
				return &scriptedPolicy{cacheable: cacheable, next: suggestN}
			}}
			r := &Runner{
				Supporter:  pythia.NewInRamPolicySupporter(internalTesting.FloatStudy("scripted", "x", 0, 1)),
				Factory:    f.factory,
				Algorithm:  "scripted",
				Evaluator:  tutorial.DemoEvaluator(internalTesting.ObjectiveName),
				Iterations: 3,
				Cache:      cache,
			}

			report, err := r.Run(utilTesting.NewContext(t))
			require.Nil(err)
			require.Len(report.Trials, 3)
			if cacheable {
				require.Equal(1, f.builds)
				require.Equal(1, cache.Len())
				require.Equal(3, f.policies[0].calls)
			} else {
				require.Equal(3, f.builds)
				require.Equal(0, cache.Len())
			}
		})
	}
}

func TestRunRebuildsStalePolicy(t *testing.T) {
	require := require.New(t)
	cache, err := NewPolicyCache(2)
	require.Nil(err)
	f := &countingFactory{}
	f.newOne = func() *scriptedPolicy {
		first := f.builds == 1
		return &scriptedPolicy{cacheable: true, next: func(n int, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
			if first && n == 2 {
				return nil, pythia.NewCachedPolicyIsStaleError("study changed")
			}
			return suggestN(n, req)
		}}
	}
	r := &Runner{
		Supporter:  pythia.NewInRamPolicySupporter(internalTesting.FloatStudy("scripted", "x", 0, 1)),
		Factory:    f.factory,
		Algorithm:  "scripted",
		Evaluator:  tutorial.DemoEvaluator(internalTesting.ObjectiveName),
		Iterations: 3,
		Cache:      cache,
	}

	report, err := r.Run(utilTesting.NewContext(t))
	require.Nil(err)
	require.Len(report.Trials, 3)
	require.Equal(2, f.builds)
	require.Equal(2, f.policies[0].calls)
	require.Equal(2, f.policies[1].calls)
}

func TestRunStopsEarly(t *testing.T) {
	testCases := []struct {
		name string
		next func(n int, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error)
	}{
		{
			"inactivated",
			func(n int, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
				if n > 1 {
					return nil, pythia.NewInactivateStudyError("converged")
				}
				return suggestN(n, req)
			},
		},
		{
			"no suggestions",
			func(n int, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
				if n > 1 {
					return &pythia.SuggestDecision{}, nil
				}
				return suggestN(n, req)
			},
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require := require.New(t)
			p := &scriptedPolicy{cacheable: true, next: tc.next}
			cache, err := NewPolicyCache(1)
			require.Nil(err)
			r := &Runner{
				Supporter: pythia.NewInRamPolicySupporter(internalTesting.FloatStudy("scripted", "x", 0, 1)),
				Factory: func(*vz.ProblemStatement, pythia.PolicySupporter) (pythia.Policy, error) {
					return p, nil
				},
				Evaluator:  tutorial.DemoEvaluator(internalTesting.ObjectiveName),
				Iterations: 5,
				BatchSize:  2,
				Cache:      cache,
			}
			report, err := r.Run(utilTesting.NewContext(t))
			require.Nil(err)
			require.Len(report.Trials, 2)
			require.Equal(2, p.calls)
		})
	}
}

func TestRunFailsOnPolicyError(t *testing.T) {
	r := newRunner(t, tutorial.MyPolicyAlgorithm, internalTesting.FloatStudy(tutorial.MyPolicyAlgorithm, "x", 0, 1))
	_, err := r.Run(utilTesting.NewContext(t))
	require.NotNil(t, err)
	assert.Equal(t, codes.InvalidArgument, pythia.Code(err))
}

func TestRunCancelled(t *testing.T) {
	require := require.New(t)
	r := newRunner(t, tutorial.MyPolicyAlgorithm, internalTesting.CategoricalStudy(tutorial.MyPolicyAlgorithm, "color", "a"))
	ctx, cancel := context.WithCancel(utilTesting.NewContext(t))
	cancel()

	report, err := r.Run(ctx)
	require.Equal(context.Canceled, err)
	require.NotNil(report)
	require.Empty(report.Trials)
}

func TestRunDeadline(t *testing.T) {
	require := require.New(t)
	r := newRunner(t, tutorial.MyPolicyAlgorithm, internalTesting.CategoricalStudy(tutorial.MyPolicyAlgorithm, "color", "a"))
	r.Iterations = 100
	r.Deadline = 50 * time.Millisecond
	r.Evaluator = func(ctx context.Context, params vz.ParameterDict) (vz.Measurement, error) {
		<-ctx.Done()
		return vz.Measurement{}, ctx.Err()
	}

	report, err := r.Run(utilTesting.NewContext(t))
	require.Equal(context.DeadlineExceeded, err)
	require.Len(report.Trials, 2)
	require.Equal(vz.StatusActive, report.Trials[0].Status())
}

func TestRunNeedsDependencies(t *testing.T) {
	_, err := (&Runner{}).Run(utilTesting.NewContext(t))
	assert.Equal(t, codes.InvalidArgument, pythia.Code(err))
}

func TestNewFromConfig(t *testing.T) {
	require := require.New(t)
	cfg := config.NewMutable()
	s := pythia.NewInRamPolicySupporter(internalTesting.FloatStudy("scripted", "x", 0, 1))
	evaluate := tutorial.DemoEvaluator(internalTesting.ObjectiveName)

	r, err := NewFromConfig(cfg, s, suggestOnly, "scripted", evaluate)
	require.Nil(err)
	require.Equal(10, r.Iterations)
	require.Equal(1, r.BatchSize)
	require.Equal(4, r.Parallelism)
	require.NotNil(r.Cache)
	require.NotNil(r.NewBackOff)
	require.NotNil(r.NewBackOff())

	cfg.Set(config.RunnerPolicyCacheSize, 0)
	r, err = NewFromConfig(cfg, s, suggestOnly, "scripted", evaluate)
	require.Nil(err)
	require.Nil(r.Cache)
}

func suggestOnly(*vz.ProblemStatement, pythia.PolicySupporter) (pythia.Policy, error) {
	return &scriptedPolicy{next: suggestN}, nil
}

func TestInstrumentedPolicyRecordsCalls(t *testing.T) {
	require := require.New(t)
	p := &InstrumentedPolicy{Policy: &scriptedPolicy{next: suggestN}, Algorithm: "instrumented-test"}
	require.False(p.ShouldBeCached())

	s := pythia.NewInRamPolicySupporter(internalTesting.FloatStudy("instrumented-test", "x", 0, 1))
	_, err := s.SuggestTrials(utilTesting.NewContext(t), p, 2)
	require.Nil(err)
	_, err = p.EarlyStop(utilTesting.NewContext(t), &pythia.EarlyStopRequest{})
	require.Equal(codes.Unimplemented, pythia.Code(err))

	rows, err := view.RetrieveData("pythia/policy_calls")
	require.Nil(err)
	found := map[string]bool{}
	for _, row := range rows {
		tags := map[string]string{}
		for _, tag := range row.Tags {
			tags[tag.Key.Name()] = tag.Value
		}
		if tags["algorithm"] == "instrumented-test" {
			found[tags["operation"]+"/"+tags["code"]] = true
		}
	}
	require.Equal(map[string]bool{"suggest/OK": true, "early_stop/Unimplemented": true}, found)
}
