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
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"vizier.dev/pythia/pkg/vz"
)

var (
	supporterLogger = logrus.WithFields(logrus.Fields{
		"app":       "pythia",
		"component": "pythia.inram_supporter",
	})
)

// InRamPolicySupporter keeps a single study in memory. It is meant for local
// runs and tests. Trials handed out are copies.
type InRamPolicySupporter struct {
	mu     sync.Mutex
	guid   string
	config *vz.StudyConfig
	trials []*vz.Trial
}

var _ PolicySupporter = (*InRamPolicySupporter)(nil)

// NewInRamPolicySupporter creates a supporter for config with a random study guid.
func NewInRamPolicySupporter(config *vz.StudyConfig) *InRamPolicySupporter {
	return NewInRamPolicySupporterWithGUID(config, xid.New().String())
}

// NewInRamPolicySupporterWithGUID creates a supporter for config with a fixed guid.
func NewInRamPolicySupporterWithGUID(config *vz.StudyConfig, guid string) *InRamPolicySupporter {
	return &InRamPolicySupporter{guid: guid, config: config}
}

// GUID identifies the study.
func (s *InRamPolicySupporter) GUID() string {
	return s.guid
}

// StudyDescriptor describes the current state of the study.
func (s *InRamPolicySupporter) StudyDescriptor() StudyDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptorLocked()
}

func (s *InRamPolicySupporter) descriptorLocked() StudyDescriptor {
	return StudyDescriptor{
		Config:     s.configLocked(),
		GUID:       s.guid,
		MaxTrialID: int64(len(s.trials)),
	}
}

func (s *InRamPolicySupporter) configLocked() *vz.StudyConfig {
	c := *s.config
	c.Metadata = s.config.Metadata.Clone()
	c.MetricInformation = append(vz.MetricsConfig(nil), s.config.MetricInformation...)
	return &c
}

func (s *InRamPolicySupporter) checkGUID(guid string) error {
	if guid != "" && guid != s.guid {
		return status.Errorf(codes.NotFound, "study %s does not exist", guid)
	}
	return nil
}

// GetStudyConfig returns a snapshot of the study config.
func (s *InRamPolicySupporter) GetStudyConfig(ctx context.Context, guid string) (*vz.StudyConfig, error) {
	if err := s.checkGUID(guid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configLocked(), nil
}

// StudyMetadata returns a copy of the study metadata.
func (s *InRamPolicySupporter) StudyMetadata() vz.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Metadata.Clone()
}

// GetTrials returns the trials matching filter, in id order.
func (s *InRamPolicySupporter) GetTrials(ctx context.Context, guid string, filter vz.TrialFilter) ([]*vz.Trial, error) {
	if err := s.checkGUID(guid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*vz.Trial
	for _, t := range s.trials {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Trials returns every trial of the study.
func (s *InRamPolicySupporter) Trials() []*vz.Trial {
	trials, _ := s.GetTrials(context.Background(), "", vz.TrialFilter{})
	return trials
}

// GetBestTrials ranks completed feasible trials by the single objective of
// the study. count <= 0 returns all of them.
func (s *InRamPolicySupporter) GetBestTrials(ctx context.Context, guid string, count int) ([]*vz.Trial, error) {
	if err := s.checkGUID(guid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, err := s.config.SingleObjective()
	if err != nil {
		return nil, err
	}
	var candidates []*vz.Trial
	for _, t := range s.trials {
		if t.Status() != vz.StatusCompleted || t.Infeasible() {
			continue
		}
		if _, ok := t.FinalMeasurement.Metrics[obj.Name]; !ok {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return obj.Better(candidates[i].FinalMeasurement.Metrics[obj.Name].Value, candidates[j].FinalMeasurement.Metrics[obj.Name].Value)
	})
	if count > 0 && len(candidates) > count {
		candidates = candidates[:count]
	}
	out := make([]*vz.Trial, 0, len(candidates))
	for _, t := range candidates {
		out = append(out, t.Clone())
	}
	return out, nil
}

// CheckCancelled returns a Canceled error once ctx is done.
func (s *InRamPolicySupporter) CheckCancelled(ctx context.Context, note string) error {
	if err := ctx.Err(); err != nil {
		return NewCancelComputeError("%s: %v", note, err)
	}
	return nil
}

// TimeRemaining is the time left until the deadline of ctx.
func (s *InRamPolicySupporter) TimeRemaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

// SendMetadata merges delta into the study and its trials. No change is
// applied if a trial of the delta does not exist.
func (s *InRamPolicySupporter) SendMetadata(ctx context.Context, delta vz.MetadataDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(delta)
}

func (s *InRamPolicySupporter) applyLocked(delta vz.MetadataDelta) error {
	for id := range delta.OnTrials {
		if id < 1 || id > int64(len(s.trials)) {
			return status.Errorf(codes.NotFound, "trial %d does not exist in study %s", id, s.guid)
		}
	}
	s.config.Metadata.Attach(delta.OnStudy)
	for id, md := range delta.OnTrials {
		s.trials[id-1].Metadata.Attach(md)
	}
	supporterLogger.WithFields(logrus.Fields{
		"study":  s.guid,
		"trials": len(delta.OnTrials),
	}).Debug("applied metadata delta")
	return nil
}

// AddTrials appends trials to the study, renumbering them after the last
// existing trial.
func (s *InRamPolicySupporter) AddTrials(trials ...*vz.Trial) []*vz.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*vz.Trial, 0, len(trials))
	for _, t := range trials {
		c := t.Clone()
		c.ID = int64(len(s.trials)) + 1
		if c.CreationTime.IsZero() {
			c.CreationTime = time.Now()
		}
		s.trials = append(s.trials, c)
		out = append(out, c.Clone())
	}
	return out
}

// AddSuggestions stores suggestions as new active trials.
func (s *InRamPolicySupporter) AddSuggestions(suggestions []vz.TrialSuggestion) []*vz.Trial {
	trials := make([]*vz.Trial, 0, len(suggestions))
	for i := range suggestions {
		trials = append(trials, suggestions[i].ToTrial(0))
	}
	return s.AddTrials(trials...)
}

// SuggestTrials runs a suggest request through p, stores the metadata it
// returns and adds its suggestions as active trials.
func (s *InRamPolicySupporter) SuggestTrials(ctx context.Context, p Policy, count int) ([]*vz.Trial, error) {
	req := &SuggestRequest{StudyDescriptor: s.StudyDescriptor(), Count: count}
	decision, err := p.Suggest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err = s.SendMetadata(ctx, decision.Metadata); err != nil {
		return nil, errors.Wrap(err, "cannot store policy metadata")
	}
	return s.AddSuggestions(decision.Suggestions), nil
}

// EarlyStopTrials runs an early stop request through p and marks the trials
// it decided to stop.
func (s *InRamPolicySupporter) EarlyStopTrials(ctx context.Context, p Policy, ids []int64) (*EarlyStopDecisions, error) {
	req := &EarlyStopRequest{StudyDescriptor: s.StudyDescriptor(), TrialIDs: ids}
	decisions, err := p.EarlyStop(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.applyLocked(decisions.Metadata); err != nil {
		return nil, errors.Wrap(err, "cannot store policy metadata")
	}
	for _, d := range decisions.Decisions {
		if !d.ShouldStop || d.ID < 1 || d.ID > int64(len(s.trials)) {
			continue
		}
		t := s.trials[d.ID-1]
		if t.Status() == vz.StatusCompleted {
			continue
		}
		t.StoppingReason = d.Reason
		if t.StoppingReason == "" {
			t.StoppingReason = "stopped by policy"
		}
	}
	return decisions, nil
}

// CompleteTrial records the final measurement of trial id.
func (s *InRamPolicySupporter) CompleteTrial(id int64, m vz.Measurement) error {
	return s.complete(id, m, "")
}

// MarkInfeasible completes trial id without a measurement.
func (s *InRamPolicySupporter) MarkInfeasible(id int64, reason string) error {
	if reason == "" {
		reason = "infeasible"
	}
	return s.complete(id, vz.Measurement{}, reason)
}

func (s *InRamPolicySupporter) complete(id int64, m vz.Measurement, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || id > int64(len(s.trials)) {
		return status.Errorf(codes.NotFound, "trial %d does not exist in study %s", id, s.guid)
	}
	return s.trials[id-1].Complete(m, reason)
}
