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

// Package testing provides testing primitives for the codebase.
package testing

import (
	"vizier.dev/pythia/pkg/vz"
)

// ObjectiveName is the metric used by the generated studies.
const ObjectiveName = "objective"

// Property defines the required fields that we need to generate trials for testing.
type Property struct {
	Name     string
	Min      float64
	Max      float64
	Interval float64
}

// GenerateCompletedTrials takes in two property manifests to generate
// completed trials whose objective is the sum of both parameters.
func GenerateCompletedTrials(manifest1, manifest2 Property) []*vz.Trial {
	trials := make([]*vz.Trial, 0)

	for i := manifest1.Min; i < manifest1.Max; i += manifest1.Interval {
		for j := manifest2.Min; j < manifest2.Max; j += manifest2.Interval {
			m := vz.NewMeasurement(map[string]float64{ObjectiveName: i + j})
			trials = append(trials, &vz.Trial{
				ID: int64(len(trials)) + 1,
				Parameters: vz.ParameterDict{
					manifest1.Name: vz.FloatValue(i),
					manifest2.Name: vz.FloatValue(j),
				},
				FinalMeasurement: &m,
			})
		}
	}

	return trials
}

// GenerateActiveTrials returns n active trials with the given parameters.
func GenerateActiveTrials(n int, params vz.ParameterDict) []*vz.Trial {
	trials := make([]*vz.Trial, 0, n)
	for i := 0; i < n; i++ {
		trials = append(trials, &vz.Trial{ID: int64(i) + 1, Parameters: params.Clone()})
	}
	return trials
}

// CategoricalStudy returns a single objective study whose first parameter is
// a categorical named name with the given values.
func CategoricalStudy(algorithm, name string, values ...string) *vz.StudyConfig {
	sc := vz.NewStudyConfig(algorithm)
	if err := sc.SearchSpace.AddCategoricalParam(name, values); err != nil {
		panic(err)
	}
	sc.MetricInformation = vz.MetricsConfig{{Name: ObjectiveName, Goal: vz.Maximize}}
	return sc
}

// FloatStudy returns a single objective study over one float parameter.
func FloatStudy(algorithm, name string, min, max float64) *vz.StudyConfig {
	sc := vz.NewStudyConfig(algorithm)
	if err := sc.SearchSpace.AddFloatParam(name, min, max, vz.Linear); err != nil {
		panic(err)
	}
	sc.MetricInformation = vz.MetricsConfig{{Name: ObjectiveName, Goal: vz.Maximize}}
	return sc
}
