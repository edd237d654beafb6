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

package policies

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"vizier.dev/pythia/pkg/algorithms"
	"vizier.dev/pythia/pkg/pythia"
	"vizier.dev/pythia/pkg/vz"
)

const (
	// DefaultNsRoot is the study metadata namespace of designer policies.
	DefaultNsRoot = "designer_policy_v0"
	// DesignerNs holds the dumped designer below the root namespace.
	DesignerNs = "designer"
	// IncorporatedTrialsKey holds the ids of the completed trials the stored
	// designer has seen, as ranges like "1-4,7".
	IncorporatedTrialsKey = "incorporated_completed_trial_ids"
)

// Option configures a serializable designer policy.
type Option func(*statefulPolicy)

// WithNsRoot stores the designer state under ns instead of DefaultNsRoot.
func WithNsRoot(ns string) Option {
	return func(p *statefulPolicy) {
		p.nsRoot = ns
	}
}

// PartiallySerializableDesignerFactory creates designers that can Load state.
type PartiallySerializableDesignerFactory func(problem *vz.ProblemStatement) (algorithms.PartiallySerializableDesigner, error)

// SerializableDesignerFactory creates designers that a Recoverer can rebuild.
type SerializableDesignerFactory func(problem *vz.ProblemStatement) (algorithms.SerializableDesigner, error)

// statefulPolicy keeps the designer in study metadata between requests, so
// that each request only feeds the designer the completed trials it has not
// seen yet.
type statefulPolicy struct {
	supporter pythia.PolicySupporter
	nsRoot    string
	kind      string
	fresh     func(problem *vz.ProblemStatement) (algorithms.SerializableDesigner, error)
	restore   func(problem *vz.ProblemStatement, md vz.Metadata) (algorithms.SerializableDesigner, error)
}

func newStatefulPolicy(supporter pythia.PolicySupporter, kind string, opts []Option) *statefulPolicy {
	p := &statefulPolicy{supporter: supporter, nsRoot: DefaultNsRoot, kind: kind}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PartiallySerializableDesignerPolicy restores designers by creating one from
// the factory and loading the stored state into it.
type PartiallySerializableDesignerPolicy struct {
	*statefulPolicy
}

var _ pythia.Policy = (*PartiallySerializableDesignerPolicy)(nil)

// NewPartiallySerializableDesignerPolicy returns a policy backed by factory.
func NewPartiallySerializableDesignerPolicy(supporter pythia.PolicySupporter, factory PartiallySerializableDesignerFactory, opts ...Option) *PartiallySerializableDesignerPolicy {
	p := newStatefulPolicy(supporter, "partially_serializable", opts)
	p.fresh = func(problem *vz.ProblemStatement) (algorithms.SerializableDesigner, error) {
		return factory(problem)
	}
	p.restore = func(problem *vz.ProblemStatement, md vz.Metadata) (algorithms.SerializableDesigner, error) {
		d, err := factory(problem)
		if err != nil {
			return nil, errors.Wrap(err, "cannot create designer")
		}
		if err = d.Load(md); err != nil {
			return nil, err
		}
		return d, nil
	}
	return &PartiallySerializableDesignerPolicy{statefulPolicy: p}
}

// PartiallySerializableDesignerPolicyFactory registers factory as an algorithm.
func PartiallySerializableDesignerPolicyFactory(factory PartiallySerializableDesignerFactory, opts ...Option) pythia.PolicyFactory {
	return func(_ *vz.ProblemStatement, supporter pythia.PolicySupporter) (pythia.Policy, error) {
		return NewPartiallySerializableDesignerPolicy(supporter, factory, opts...), nil
	}
}

// SerializableDesignerPolicy restores designers through a Recoverer.
type SerializableDesignerPolicy struct {
	*statefulPolicy
}

var _ pythia.Policy = (*SerializableDesignerPolicy)(nil)

// NewSerializableDesignerPolicy returns a policy that creates designers with
// factory and rebuilds them with recoverer.
func NewSerializableDesignerPolicy(supporter pythia.PolicySupporter, factory SerializableDesignerFactory, recoverer algorithms.Recoverer, opts ...Option) *SerializableDesignerPolicy {
	p := newStatefulPolicy(supporter, "serializable", opts)
	p.fresh = func(problem *vz.ProblemStatement) (algorithms.SerializableDesigner, error) {
		return factory(problem)
	}
	p.restore = func(_ *vz.ProblemStatement, md vz.Metadata) (algorithms.SerializableDesigner, error) {
		return recoverer(md)
	}
	return &SerializableDesignerPolicy{statefulPolicy: p}
}

// SerializableDesignerPolicyFactory registers factory and recoverer as an algorithm.
func SerializableDesignerPolicyFactory(factory SerializableDesignerFactory, recoverer algorithms.Recoverer, opts ...Option) pythia.PolicyFactory {
	return func(_ *vz.ProblemStatement, supporter pythia.PolicySupporter) (pythia.Policy, error) {
		return NewSerializableDesignerPolicy(supporter, factory, recoverer, opts...), nil
	}
}

// Suggest implements pythia.Policy.
func (p *statefulPolicy) Suggest(ctx context.Context, req *pythia.SuggestRequest) (*pythia.SuggestDecision, error) {
	if err := p.supporter.CheckCancelled(ctx, p.kind+" designer policy suggest"); err != nil {
		return nil, err
	}
	problem, err := problemOf(ctx, p.supporter, &req.StudyDescriptor)
	if err != nil {
		return nil, err
	}

	designer, incorporated, err := p.restoreDesigner(problem, req.Config.Metadata)
	if err != nil {
		return nil, err
	}

	all, err := p.supporter.GetTrials(ctx, req.GUID, vz.TrialFilter{Status: completedStatuses})
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch completed trials")
	}
	// Trials may complete out of id order: only skip those already seen.
	var completed []*vz.Trial
	for _, t := range all {
		if !incorporated.has(t.ID) {
			completed = append(completed, t)
		}
	}
	suggestions, err := updateAndSuggest(ctx, p.supporter, designer, req, completed)
	if err != nil {
		return nil, err
	}
	for _, t := range completed {
		incorporated.add(t.ID)
	}

	dumped, err := designer.Dump()
	if err != nil {
		return nil, errors.Wrap(err, "cannot dump designer")
	}
	delta := vz.NewMetadataDelta()
	root := delta.Study().AbsNs(vz.Namespace{p.nsRoot})
	root.Set(IncorporatedTrialsKey, incorporated.String())
	state := root.Ns(DesignerNs)
	state.Attach(dumped)

	logger.WithFields(logrus.Fields{
		"study":        req.GUID,
		"policy":       p.kind,
		"newTrials":    len(completed),
		"incorporated": len(incorporated),
		"suggestions":  len(suggestions),
	}).Debug("designer policy suggested trials")
	return &pythia.SuggestDecision{Suggestions: suggestions, Metadata: delta}, nil
}

// restoreDesigner returns the stored designer and the trial ids it has seen,
// or a fresh designer and an empty set when nothing is stored.
func (p *statefulPolicy) restoreDesigner(problem *vz.ProblemStatement, md vz.Metadata) (algorithms.SerializableDesigner, trialIDSet, error) {
	root := md.AbsNs(vz.Namespace{p.nsRoot})
	state := root.Ns(DesignerNs)

	designer, err := p.restore(problem, state)
	if err != nil {
		if !algorithms.IsHarmlessDecodeError(err) {
			return nil, nil, errors.Wrap(err, "cannot restore designer")
		}
		logger.WithError(err).WithField("policy", p.kind).Debug("starting a fresh designer")
		designer, err = p.fresh(problem)
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create designer")
		}
		return designer, trialIDSet{}, nil
	}

	raw, ok := root.Get(IncorporatedTrialsKey)
	if !ok {
		return nil, nil, algorithms.NewDecodeError(nil, "designer state exists without %s", IncorporatedTrialsKey)
	}
	incorporated, err := parseTrialIDSet(raw)
	if err != nil {
		return nil, nil, algorithms.NewDecodeError(err, "%s is not a trial id set: %q", IncorporatedTrialsKey, raw)
	}
	return designer, incorporated, nil
}

// EarlyStop is not supported by designers.
func (p *statefulPolicy) EarlyStop(ctx context.Context, req *pythia.EarlyStopRequest) (*pythia.EarlyStopDecisions, error) {
	return nil, pythia.ErrEarlyStopUnimplemented
}

// ShouldBeCached is false: the designer lives in metadata, not in the policy.
func (p *statefulPolicy) ShouldBeCached() bool {
	return false
}
