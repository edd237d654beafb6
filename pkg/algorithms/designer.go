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

// Package algorithms defines the Designer abstraction: a session scoped
// algorithm that accumulates trial history and suggests new trials, without
// any knowledge of how trials are stored or served.
package algorithms

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"vizier.dev/pythia/pkg/vz"
)

// CompletedTrials are trials that finished since the last Update.
type CompletedTrials struct {
	Trials []*vz.Trial
}

// NewCompletedTrials checks that every trial is completed.
func NewCompletedTrials(trials []*vz.Trial) (CompletedTrials, error) {
	for _, t := range trials {
		if t.Status() != vz.StatusCompleted {
			return CompletedTrials{}, status.Errorf(codes.InvalidArgument, "trial %d is %v, expected COMPLETED", t.ID, t.Status())
		}
	}
	return CompletedTrials{Trials: trials}, nil
}

// ActiveTrials are all trials that are currently being evaluated.
type ActiveTrials struct {
	Trials []*vz.Trial
}

// NewActiveTrials checks that no trial is completed.
func NewActiveTrials(trials []*vz.Trial) (ActiveTrials, error) {
	for _, t := range trials {
		if t.Status() == vz.StatusCompleted {
			return ActiveTrials{}, status.Errorf(codes.InvalidArgument, "trial %d is COMPLETED, expected an active trial", t.ID)
		}
	}
	return ActiveTrials{Trials: trials}, nil
}

// Designer suggests trials and learns from completed ones.
//
// Update is called with the trials that completed since the previous call,
// and the full set of trials that are still active. A designer never sees the
// same completed trial twice.
//
// Suggest returns up to count suggestions; count <= 0 lets the designer pick
// how many. Returning fewer suggestions than requested is allowed.
type Designer interface {
	Update(ctx context.Context, completed CompletedTrials, allActive ActiveTrials) error
	Suggest(ctx context.Context, count int) ([]vz.TrialSuggestion, error)
}

// PartiallySerializableDesigner is a designer created by a factory whose
// state can be saved into and restored from metadata.
type PartiallySerializableDesigner interface {
	Designer
	Dump() (vz.Metadata, error)
	// Load restores the state written by Dump. It returns a
	// HarmlessDecodeError if md holds no state.
	Load(md vz.Metadata) error
}

// SerializableDesigner is a designer that can be fully reconstructed from
// the metadata returned by Dump, through a Recoverer.
type SerializableDesigner interface {
	Designer
	Dump() (vz.Metadata, error)
}

// Recoverer rebuilds a SerializableDesigner from the output of Dump. It
// returns a HarmlessDecodeError if md holds no state.
type Recoverer func(md vz.Metadata) (SerializableDesigner, error)

// DesignerFactory creates a designer for a problem.
type DesignerFactory func(problem *vz.ProblemStatement) (Designer, error)

// SuggestCount resolves the count argument of Suggest: non positive counts
// mean a single suggestion.
func SuggestCount(count int) int {
	if count <= 0 {
		return 1
	}
	return count
}
