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

package pythia

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	internalTesting "vizier.dev/pythia/internal/testing"
	utilTesting "vizier.dev/pythia/internal/util/testing"
	"vizier.dev/pythia/pkg/vz"
)

// fixedPolicy suggests the same parameters and writes a study metadata key.
type fixedPolicy struct {
	params vz.ParameterDict
	cached bool
}

func (p *fixedPolicy) Suggest(ctx context.Context, req *SuggestRequest) (*SuggestDecision, error) {
	d := &SuggestDecision{Metadata: vz.NewMetadataDelta()}
	for i := 0; i < req.Count; i++ {
		d.Suggestions = append(d.Suggestions, vz.TrialSuggestion{Parameters: p.params.Clone()})
	}
	fixed := d.Metadata.Study().Ns("fixed")
	fixed.Set("calls", "1")
	return d, nil
}

func (p *fixedPolicy) EarlyStop(ctx context.Context, req *EarlyStopRequest) (*EarlyStopDecisions, error) {
	d := &EarlyStopDecisions{Metadata: vz.NewMetadataDelta()}
	for _, id := range req.TrialIDs {
		d.Decisions = append(d.Decisions, EarlyStopDecision{ID: id, ShouldStop: id%2 == 0, Reason: "even"})
	}
	return d, nil
}

func (p *fixedPolicy) ShouldBeCached() bool {
	return p.cached
}

func TestInRamSuggestTrials(t *testing.T) {
	require := require.New(t)
	ctx := utilTesting.NewContext(t)
	s := NewInRamPolicySupporter(internalTesting.CategoricalStudy("fixed", "color", "red", "blue"))
	require.NotEmpty(s.GUID())

	p := &fixedPolicy{params: vz.ParameterDict{"color": vz.StringValue("red")}}
	trials, err := s.SuggestTrials(ctx, p, 3)
	require.Nil(err)
	require.Len(trials, 3)
	for i, trial := range trials {
		require.Equal(int64(i+1), trial.ID)
		require.Equal(vz.StatusActive, trial.Status())
	}

	md := s.StudyMetadata()
	fixed := md.Ns("fixed")
	require.Equal("1", fixed.GetOr("calls", ""))
	require.Equal(int64(3), s.StudyDescriptor().MaxTrialID)
}

func TestInRamGetTrials(t *testing.T) {
	assert := assert.New(t)
	ctx := utilTesting.NewContext(t)
	s := NewInRamPolicySupporterWithGUID(internalTesting.FloatStudy("fixed", "x", 0, 10), "study")

	s.AddTrials(internalTesting.GenerateActiveTrials(4, vz.ParameterDict{"x": vz.FloatValue(1)})...)
	assert.Nil(s.CompleteTrial(2, vz.NewMeasurement(map[string]float64{internalTesting.ObjectiveName: 5})))
	assert.Nil(s.MarkInfeasible(3, ""))

	completed, err := s.GetTrials(ctx, "", vz.TrialFilter{Status: []vz.TrialStatus{vz.StatusCompleted}})
	assert.Nil(err)
	assert.Len(completed, 2)

	_, err = s.GetTrials(ctx, "other", vz.TrialFilter{})
	assert.Equal(codes.NotFound, Code(err))

	same, err := s.GetTrials(ctx, "study", vz.TrialFilter{IDs: []int64{1}})
	assert.Nil(err)
	same[0].Parameters["x"] = vz.FloatValue(9)
	again, _ := s.GetTrials(ctx, "", vz.TrialFilter{IDs: []int64{1}})
	assert.Equal(vz.FloatValue(1), again[0].Parameters["x"])

	assert.Equal(codes.NotFound, Code(s.CompleteTrial(10, vz.Measurement{})))
	assert.Equal(codes.FailedPrecondition, Code(s.CompleteTrial(2, vz.Measurement{})))
}

func TestInRamGetBestTrials(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	testCases := []struct {
		name  string
		goal  vz.Goal
		count int
		want  []int64
	}{
		// trials 2 and 3 tie on the objective and keep their id order.
		{"maximizeAll", vz.Maximize, 0, []int64{4, 2, 3, 1}},
		{"maximizeTop2", vz.Maximize, 2, []int64{4, 2}},
		{"minimize", vz.Minimize, 1, []int64{1}},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			study := internalTesting.FloatStudy("fixed", "a", 0, 10)
			study.MetricInformation[0].Goal = tc.goal
			s := NewInRamPolicySupporter(study)
			s.AddTrials(internalTesting.GenerateCompletedTrials(
				internalTesting.Property{Name: "a", Min: 0, Max: 2, Interval: 1},
				internalTesting.Property{Name: "b", Min: 0, Max: 2, Interval: 1},
			)...)
			s.AddTrials(&vz.Trial{Parameters: vz.ParameterDict{"a": vz.FloatValue(1)}})

			best, err := s.GetBestTrials(ctx, "", tc.count)
			require.Nil(t, err)
			var got []int64
			for _, trial := range best {
				got = append(got, trial.ID)
			}
			assert.Equal(t, tc.want, got)
		})
	}

	multi := internalTesting.FloatStudy("fixed", "a", 0, 1)
	multi.MetricInformation = append(multi.MetricInformation, vz.MetricInformation{Name: "cost", Goal: vz.Minimize})
	_, err := NewInRamPolicySupporter(multi).GetBestTrials(ctx, "", 1)
	assert.Equal(t, codes.FailedPrecondition, Code(err))
}

func TestInRamSendMetadata(t *testing.T) {
	assert := assert.New(t)
	ctx := utilTesting.NewContext(t)
	s := NewInRamPolicySupporter(internalTesting.FloatStudy("fixed", "x", 0, 1))
	s.AddTrials(&vz.Trial{})

	delta := vz.NewMetadataDelta()
	delta.Study().Set("study_key", "s")
	trialMd := delta.Trial(1)
	trialAlgo := trialMd.Ns("algo")
	trialAlgo.Set("trial_key", "t")
	assert.Nil(s.SendMetadata(ctx, delta))

	md := s.StudyMetadata()
	assert.Equal("s", md.GetOr("study_key", ""))
	trials := s.Trials()
	algo := trials[0].Metadata.Ns("algo")
	assert.Equal("t", algo.GetOr("trial_key", ""))

	bad := vz.NewMetadataDelta()
	bad.Study().Set("study_key", "changed")
	badTrial := bad.Trial(7)
	badTrial.Set("k", "v")
	assert.Equal(codes.NotFound, Code(s.SendMetadata(ctx, bad)))
	md = s.StudyMetadata()
	assert.Equal("s", md.GetOr("study_key", ""))
}

func TestInRamEarlyStopTrials(t *testing.T) {
	require := require.New(t)
	ctx := utilTesting.NewContext(t)
	s := NewInRamPolicySupporter(internalTesting.FloatStudy("fixed", "x", 0, 1))
	s.AddTrials(internalTesting.GenerateActiveTrials(3, nil)...)

	decisions, err := s.EarlyStopTrials(ctx, &fixedPolicy{}, []int64{1, 2, 3})
	require.Nil(err)
	require.Len(decisions.Decisions, 3)

	trials := s.Trials()
	require.Equal(vz.StatusActive, trials[0].Status())
	require.Equal(vz.StatusStopping, trials[1].Status())
	require.Equal("even", trials[1].StoppingReason)
}

func TestInRamCancellation(t *testing.T) {
	assert := assert.New(t)
	s := NewInRamPolicySupporter(internalTesting.FloatStudy("fixed", "x", 0, 1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	assert.Nil(s.CheckCancelled(ctx, "running"))
	remaining := s.TimeRemaining(ctx)
	assert.True(remaining > 59*time.Minute && remaining <= time.Hour)
	cancel()
	assert.Equal(codes.Canceled, Code(s.CheckCancelled(ctx, "running")))

	assert.True(s.TimeRemaining(context.Background()) > 24*time.Hour)
}

func TestShouldBeCached(t *testing.T) {
	assert.True(t, ShouldBeCached(&fixedPolicy{cached: true}))
	assert.False(t, ShouldBeCached(&fixedPolicy{}))
	assert.False(t, ShouldBeCached(struct{ Policy }{}))
}

// nilConfigSupporter answers GetStudyConfig without a config or an error.
type nilConfigSupporter struct {
	*InRamPolicySupporter
}

func (nilConfigSupporter) GetStudyConfig(ctx context.Context, guid string) (*vz.StudyConfig, error) {
	return nil, nil
}

func TestStudyConfig(t *testing.T) {
	require := require.New(t)
	ctx := utilTesting.NewContext(t)
	s := NewInRamPolicySupporter(internalTesting.FloatStudy("ANY", "x", 0, 1))

	given := internalTesting.FloatStudy("GIVEN", "y", 0, 1)
	sd := &StudyDescriptor{Config: given}
	config, err := StudyConfig(ctx, s, sd)
	require.Nil(err)
	require.Same(given, config)

	sd = &StudyDescriptor{GUID: s.GUID()}
	config, err = StudyConfig(ctx, s, sd)
	require.Nil(err)
	require.Equal("ANY", config.Algorithm)
	require.Same(config, sd.Config)

	_, err = StudyConfig(ctx, s, &StudyDescriptor{GUID: "missing"})
	require.NotNil(err)

	_, err = StudyConfig(ctx, nilConfigSupporter{s}, &StudyDescriptor{GUID: s.GUID()})
	require.Equal(codes.NotFound, Code(err))
}
