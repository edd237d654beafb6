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
	"sort"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SearchSpace is an ordered collection of flat parameter configs.
type SearchSpace struct {
	params []ParameterConfig
	index  map[string]int
}

// NewSearchSpace returns an empty search space.
func NewSearchSpace() *SearchSpace {
	return &SearchSpace{index: map[string]int{}}
}

// Add validates and appends a parameter config.
func (s *SearchSpace) Add(pc ParameterConfig) error {
	if err := pc.validate(); err != nil {
		return err
	}
	if s.index == nil {
		s.index = map[string]int{}
	}
	if _, ok := s.index[pc.Name]; ok {
		return status.Errorf(codes.InvalidArgument, "parameter %s already exists in the search space", pc.Name)
	}
	if pc.Type == Discrete {
		pc.FeasiblePoints = append([]float64(nil), pc.FeasiblePoints...)
	}
	if pc.Type == Categorical {
		pc.FeasibleValues = append([]string(nil), pc.FeasibleValues...)
	}
	s.index[pc.Name] = len(s.params)
	s.params = append(s.params, pc)
	return nil
}

// AddFloatParam adds a Double parameter on [min, max].
func (s *SearchSpace) AddFloatParam(name string, min, max float64, scale ScaleType) error {
	return s.Add(ParameterConfig{Name: name, Type: Double, Bounds: [2]float64{min, max}, ScaleType: scale})
}

// AddIntParam adds an Integer parameter on [min, max].
func (s *SearchSpace) AddIntParam(name string, min, max int64, scale ScaleType) error {
	return s.Add(ParameterConfig{Name: name, Type: Integer, Bounds: [2]float64{float64(min), float64(max)}, ScaleType: scale})
}

// AddDiscreteParam adds a Discrete parameter. Points are sorted.
func (s *SearchSpace) AddDiscreteParam(name string, points []float64, scale ScaleType) error {
	sorted := append([]float64(nil), points...)
	sort.Float64s(sorted)
	return s.Add(ParameterConfig{Name: name, Type: Discrete, FeasiblePoints: sorted, ScaleType: scale})
}

// AddCategoricalParam adds a Categorical parameter. The order of values is kept.
func (s *SearchSpace) AddCategoricalParam(name string, values []string) error {
	return s.Add(ParameterConfig{Name: name, Type: Categorical, FeasibleValues: values})
}

// AddBoolParam adds a Categorical parameter with values "True" and "False".
func (s *SearchSpace) AddBoolParam(name string) error {
	return s.AddCategoricalParam(name, []string{trueValue, falseValue})
}

// Get returns the config of the named parameter.
func (s *SearchSpace) Get(name string) (ParameterConfig, bool) {
	if s == nil {
		return ParameterConfig{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return ParameterConfig{}, false
	}
	return s.params[i], true
}

// Parameters returns the parameter configs in insertion order.
func (s *SearchSpace) Parameters() []ParameterConfig {
	if s == nil {
		return nil
	}
	return append([]ParameterConfig(nil), s.params...)
}

// Len is the number of parameters.
func (s *SearchSpace) Len() int {
	if s == nil {
		return 0
	}
	return len(s.params)
}

// Contains is true when d assigns a feasible value to every parameter and
// nothing else.
func (s *SearchSpace) Contains(d ParameterDict) bool {
	if len(d) != s.Len() {
		return false
	}
	for _, pc := range s.params {
		v, ok := d[pc.Name]
		if !ok || !pc.Contains(v) {
			return false
		}
	}
	return true
}
