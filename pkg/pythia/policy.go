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

// Package pythia defines the Policy contract and the PolicySupporter through
// which a policy reads trials and writes metadata.
//
// A Policy is built for a single request and discarded afterwards, unless it
// explicitly opts into caching. Everything it knows about the study comes from
// the request and the supporter it was constructed with.
package pythia

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"vizier.dev/pythia/pkg/vz"
)

// StudyDescriptor identifies the study a request is about.
type StudyDescriptor struct {
	Config *vz.StudyConfig
	GUID   string
	// MaxTrialID is the largest trial id of the study at the time of the request.
	MaxTrialID int64
}

// SuggestRequest asks a policy for new trials.
type SuggestRequest struct {
	StudyDescriptor
	// Count is the number of suggestions wanted. Non positive values let the
	// policy decide.
	Count int
}

// SuggestDecision is the answer to a SuggestRequest.
type SuggestDecision struct {
	Suggestions []vz.TrialSuggestion
	Metadata    vz.MetadataDelta
}

// EarlyStopRequest asks a policy which of the given trials should stop.
type EarlyStopRequest struct {
	StudyDescriptor
	TrialIDs []int64
}

// EarlyStopDecision is the decision for one trial.
type EarlyStopDecision struct {
	ID         int64
	Reason     string
	ShouldStop bool
	Metadata   vz.Metadata
}

// EarlyStopDecisions is the answer to an EarlyStopRequest.
type EarlyStopDecisions struct {
	Decisions []EarlyStopDecision
	Metadata  vz.MetadataDelta
}

// Policy computes decisions for a study.
type Policy interface {
	Suggest(ctx context.Context, req *SuggestRequest) (*SuggestDecision, error)
	EarlyStop(ctx context.Context, req *EarlyStopRequest) (*EarlyStopDecisions, error)
}

// Cacheable is implemented by policies that may be reused across requests of
// the same study.
type Cacheable interface {
	ShouldBeCached() bool
}

// ShouldBeCached reports whether p asked to be cached.
func ShouldBeCached(p Policy) bool {
	if c, ok := p.(Cacheable); ok {
		return c.ShouldBeCached()
	}
	return false
}

// PolicySupporter gives a policy access to the study. An empty guid refers to
// the study the current request is about.
type PolicySupporter interface {
	GetStudyConfig(ctx context.Context, guid string) (*vz.StudyConfig, error)
	GetTrials(ctx context.Context, guid string, filter vz.TrialFilter) ([]*vz.Trial, error)
	// GetBestTrials returns up to count completed feasible trials, best first.
	GetBestTrials(ctx context.Context, guid string, count int) ([]*vz.Trial, error)
	// CheckCancelled returns a Canceled error once the computation should stop.
	CheckCancelled(ctx context.Context, note string) error
	TimeRemaining(ctx context.Context) time.Duration
	SendMetadata(ctx context.Context, delta vz.MetadataDelta) error
}

// StudyConfig returns the config carried by sd, fetching it through supporter
// when the request did not include one. The fetched config is stored in sd.
// A supporter returning no config yields a NotFound error.
func StudyConfig(ctx context.Context, supporter PolicySupporter, sd *StudyDescriptor) (*vz.StudyConfig, error) {
	if sd.Config != nil {
		return sd.Config, nil
	}
	config, err := supporter.GetStudyConfig(ctx, sd.GUID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch study config")
	}
	if config == nil {
		return nil, status.Errorf(codes.NotFound, "study %s has no config", sd.GUID)
	}
	sd.Config = config
	return config, nil
}
