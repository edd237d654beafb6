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

// Package policies wraps designers into pythia policies.
package policies

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"vizier.dev/pythia/pkg/algorithms"
	"vizier.dev/pythia/pkg/pythia"
	"vizier.dev/pythia/pkg/vz"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "pythia",
		"component": "policies",
	})

	activeStatuses    = []vz.TrialStatus{vz.StatusActive, vz.StatusStopping}
	completedStatuses = []vz.TrialStatus{vz.StatusCompleted}
)

// DesignerPolicy runs a brand new designer on every request and feeds it the
// whole history of the study.
type DesignerPolicy struct {
	supporter pythia.PolicySupporter
	factory   algorithms.DesignerFactory
}

var _ pythia.Policy = (*DesignerPolicy)(nil)

// NewDesignerPolicy returns a policy that builds designers with factory.
func NewDesignerPolicy(supporter pythia.PolicySupporter, factory algorithms.DesignerFactory) *DesignerPolicy {
	return &DesignerPolicy{supporter: supporter, factory: factory}
}

// DesignerPolicyFactory registers a designer factory as an algorithm.
func DesignerPolicyFactory(factory algorithms.DesignerFactory) pythia.PolicyFactory {
	return func(_ *vz.ProblemStatement, supporter pythia.PolicySupporter) (pythia.Policy, error) {
		return NewDesignerPolicy(supporter, factory), nil
	}
}

// Suggest implements pythia.Policy.
func (p *DesignerPolicy) Suggest(ctx context.Context, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
	if err := p.supporter.CheckCancelled(ctx, "designer policy suggest"); err != nil {
		return nil, err
	}
	problem, err := problemOf(ctx, p.supporter, &req.StudyDescriptor)
	if err != nil {
		return nil, err
	}
	designer, err := p.factory(problem)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create designer")
	}

	completed, err := p.supporter.GetTrials(ctx, req.GUID, vz.TrialFilter{Status: completedStatuses})
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch completed trials")
	}
	suggestions, err := updateAndSuggest(ctx, p.supporter, designer, req, completed)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"study":       req.GUID,
		"completed":   len(completed),
		"suggestions": len(suggestions),
	}).Debug("designer policy suggested trials")
	return &pythia.SuggestDecision{Suggestions: suggestions, Metadata: vz.NewMetadataDelta()}, nil
}

// EarlyStop is not supported by designers.
func (p *DesignerPolicy) EarlyStop(ctx context.Context, req *pythia.EarlyStopRequest) (*pythia.EarlyStopDecisions, error) {
	return nil, pythia.ErrEarlyStopUnimplemented
}

// ShouldBeCached is false: the designer is rebuilt on every request.
func (p *DesignerPolicy) ShouldBeCached() bool {
	return false
}

func problemOf(ctx context.Context, supporter pythia.PolicySupporter, sd *pythia.StudyDescriptor) (*vz.ProblemStatement, error) {
	config, err := pythia.StudyConfig(ctx, supporter, sd)
	if err != nil {
		return nil, err
	}
	return config.Problem(), nil
}

// updateAndSuggest feeds completed and the currently active trials to
// designer and asks it for the requested number of suggestions.
func updateAndSuggest(ctx context.Context, supporter pythia.PolicySupporter, designer algorithms.Designer, req *pythia.SuggestRequest, completed []*vz.Trial) ([]vz.TrialSuggestion, error) {
	active, err := supporter.GetTrials(ctx, req.GUID, vz.TrialFilter{Status: activeStatuses})
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch active trials")
	}
	c, err := algorithms.NewCompletedTrials(completed)
	if err != nil {
		return nil, err
	}
	a, err := algorithms.NewActiveTrials(active)
	if err != nil {
		return nil, err
	}
	if err = designer.Update(ctx, c, a); err != nil {
		return nil, errors.Wrap(err, "designer update failed")
	}
	if err = supporter.CheckCancelled(ctx, "designer suggest"); err != nil {
		return nil, err
	}
	suggestions, err := designer.Suggest(ctx, req.Count)
	if err != nil {
		return nil, errors.Wrap(err, "designer suggest failed")
	}
	return suggestions, nil
}
