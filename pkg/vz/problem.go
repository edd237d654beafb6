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

// Package vz defines the study, trial and metadata types shared by policies
// and designers.
package vz

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Goal is the optimization direction of a metric.
type Goal int

const (
	Maximize Goal = iota + 1
	Minimize
)

func (g Goal) String() string {
	switch g {
	case Maximize:
		return "MAXIMIZE"
	case Minimize:
		return "MINIMIZE"
	}
	return "GOAL_UNSPECIFIED"
}

// MetricInformation describes a metric reported by trials.
type MetricInformation struct {
	Name string
	Goal Goal
	// SafetyThreshold turns the metric into a safety constraint rather than an objective.
	SafetyThreshold *float64
	MinValue        *float64
	MaxValue        *float64
}

// IsSafety is true for safety constraint metrics.
func (mi MetricInformation) IsSafety() bool {
	return mi.SafetyThreshold != nil
}

// Better reports whether value a is strictly better than value b for this metric.
func (mi MetricInformation) Better(a, b float64) bool {
	if mi.Goal == Minimize {
		return a < b
	}
	return a > b
}

// MetricsConfig is the list of metrics of a study.
type MetricsConfig []MetricInformation

// Item returns the metric with the given name.
func (mc MetricsConfig) Item(name string) (MetricInformation, bool) {
	for _, mi := range mc {
		if mi.Name == name {
			return mi, true
		}
	}
	return MetricInformation{}, false
}

// Objectives returns the non safety metrics.
func (mc MetricsConfig) Objectives() MetricsConfig {
	var out MetricsConfig
	for _, mi := range mc {
		if !mi.IsSafety() {
			out = append(out, mi)
		}
	}
	return out
}

// ProblemStatement is what an algorithm needs to know about a study.
type ProblemStatement struct {
	SearchSpace       *SearchSpace
	MetricInformation MetricsConfig
	Metadata          Metadata
}

// NewProblemStatement returns a problem with an empty search space.
func NewProblemStatement() *ProblemStatement {
	return &ProblemStatement{SearchSpace: NewSearchSpace(), Metadata: NewMetadata()}
}

// Validate checks that the problem has metrics with goals and unique names.
func (p *ProblemStatement) Validate() error {
	if len(p.MetricInformation) == 0 {
		return status.Error(codes.InvalidArgument, "problem statement has no metrics")
	}
	seen := map[string]struct{}{}
	for _, mi := range p.MetricInformation {
		if mi.Name == "" {
			return status.Error(codes.InvalidArgument, "metric name is required")
		}
		if mi.Goal != Maximize && mi.Goal != Minimize {
			return status.Errorf(codes.InvalidArgument, "metric %s has no goal", mi.Name)
		}
		if _, ok := seen[mi.Name]; ok {
			return status.Errorf(codes.InvalidArgument, "metric %s is defined twice", mi.Name)
		}
		seen[mi.Name] = struct{}{}
	}
	return nil
}

// SingleObjective returns the only objective metric of the problem.
func (p *ProblemStatement) SingleObjective() (MetricInformation, error) {
	obj := p.MetricInformation.Objectives()
	if len(obj) != 1 {
		return MetricInformation{}, status.Errorf(codes.FailedPrecondition, "expected a single objective metric, got %d", len(obj))
	}
	return obj[0], nil
}

// StudyConfig is a problem statement with the algorithm that should solve it.
type StudyConfig struct {
	ProblemStatement
	Algorithm        string
	ObservationNoise string
}

// NewStudyConfig returns a study config with an empty search space.
func NewStudyConfig(algorithm string) *StudyConfig {
	return &StudyConfig{ProblemStatement: *NewProblemStatement(), Algorithm: algorithm}
}

// Problem returns the embedded problem statement.
func (sc *StudyConfig) Problem() *ProblemStatement {
	return &sc.ProblemStatement
}
