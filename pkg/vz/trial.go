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

package vz

import (
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TrialStatus is derived from the fields of a Trial.
type TrialStatus int

const (
	StatusUnknown TrialStatus = iota
	// StatusRequested trials were requested by a user but not yet assigned to a worker.
	StatusRequested
	StatusActive
	// StatusStopping trials were asked to stop early but have not completed.
	StatusStopping
	StatusCompleted
)

func (s TrialStatus) String() string {
	switch s {
	case StatusRequested:
		return "REQUESTED"
	case StatusActive:
		return "ACTIVE"
	case StatusStopping:
		return "STOPPING"
	case StatusCompleted:
		return "COMPLETED"
	}
	return "UNKNOWN"
}

// Metric is a single objective value with an optional standard deviation.
type Metric struct {
	Value float64 `json:"value"`
	Std   float64 `json:"std,omitempty"`
}

// Measurement is a collection of metrics reported at some point of a trial.
type Measurement struct {
	Metrics     map[string]Metric `json:"metrics"`
	ElapsedSecs float64           `json:"elapsedSecs,omitempty"`
	Steps       int64             `json:"steps,omitempty"`
}

// NewMeasurement builds a measurement from metric values.
func NewMeasurement(values map[string]float64) Measurement {
	m := Measurement{Metrics: make(map[string]Metric, len(values))}
	for k, v := range values {
		m.Metrics[k] = Metric{Value: v}
	}
	return m
}

// Trial is a single evaluated or in-progress parameter configuration.
type Trial struct {
	ID             int64
	Parameters     ParameterDict
	Metadata       Metadata
	IsRequested    bool
	AssignedWorker string

	FinalMeasurement    *Measurement
	Measurements        []Measurement
	InfeasibilityReason string
	StoppingReason      string

	CreationTime   time.Time
	CompletionTime time.Time
}

// Status derives the status from the fields of the trial.
func (t *Trial) Status() TrialStatus {
	switch {
	case t.FinalMeasurement != nil || t.InfeasibilityReason != "":
		return StatusCompleted
	case t.StoppingReason != "":
		return StatusStopping
	case t.IsRequested:
		return StatusRequested
	}
	return StatusActive
}

// Infeasible is true for completed trials that could not be evaluated.
func (t *Trial) Infeasible() bool {
	return t.InfeasibilityReason != ""
}

// Complete marks the trial completed with a final measurement, or as
// infeasible when infeasibilityReason is non empty.
func (t *Trial) Complete(m Measurement, infeasibilityReason string) error {
	if t.Status() == StatusCompleted {
		return status.Errorf(codes.FailedPrecondition, "trial %d is already completed", t.ID)
	}
	if infeasibilityReason != "" {
		t.InfeasibilityReason = infeasibilityReason
	} else {
		final := m
		t.FinalMeasurement = &final
	}
	t.IsRequested = false
	t.CompletionTime = time.Now()
	return nil
}

// Clone returns a copy that shares no mutable state with t.
func (t *Trial) Clone() *Trial {
	c := *t
	c.Parameters = t.Parameters.Clone()
	c.Metadata = t.Metadata.Clone()
	if t.FinalMeasurement != nil {
		fm := *t.FinalMeasurement
		c.FinalMeasurement = &fm
	}
	c.Measurements = append([]Measurement(nil), t.Measurements...)
	return &c
}

// TrialSuggestion is a parameter configuration proposed by an algorithm.
type TrialSuggestion struct {
	Parameters ParameterDict
	Metadata   Metadata
}

// ToTrial converts the suggestion into an active trial with the given id.
func (s *TrialSuggestion) ToTrial(id int64) *Trial {
	return &Trial{
		ID:           id,
		Parameters:   s.Parameters.Clone(),
		Metadata:     s.Metadata.Clone(),
		CreationTime: time.Now(),
	}
}

// TrialFilter selects trials. Empty fields match everything.
type TrialFilter struct {
	IDs    []int64
	MinID  int64
	MaxID  int64
	Status []TrialStatus
}

// Matches is true if t passes every condition of the filter.
func (f TrialFilter) Matches(t *Trial) bool {
	if f.MinID > 0 && t.ID < f.MinID {
		return false
	}
	if f.MaxID > 0 && t.ID > f.MaxID {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == t.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Status) > 0 {
		s := t.Status()
		for _, want := range f.Status {
			if s == want {
				return true
			}
		}
		return false
	}
	return true
}
