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

// Package studyfile reads study definitions written in YAML.
package studyfile

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
	"vizier.dev/pythia/pkg/vz"
)

// Study is the file layout of a study definition.
type Study struct {
	Algorithm        string      `yaml:"algorithm"`
	ObservationNoise string      `yaml:"observation_noise,omitempty"`
	Parameters       []Parameter `yaml:"parameters"`
	Metrics          []Metric    `yaml:"metrics"`
	Metadata         []Item      `yaml:"metadata,omitempty"`
}

// Parameter is one flat search space parameter.
type Parameter struct {
	Name string `yaml:"name"`
	// Type is one of double, integer, discrete, categorical or bool.
	Type    string      `yaml:"type"`
	Min     *float64    `yaml:"min,omitempty"`
	Max     *float64    `yaml:"max,omitempty"`
	Points  []float64   `yaml:"points,omitempty"`
	Values  []string    `yaml:"values,omitempty"`
	Scale   string      `yaml:"scale,omitempty"`
	Default interface{} `yaml:"default,omitempty"`
}

// Metric is one metric of the study.
type Metric struct {
	Name            string   `yaml:"name"`
	Goal            string   `yaml:"goal"`
	SafetyThreshold *float64 `yaml:"safety_threshold,omitempty"`
	Min             *float64 `yaml:"min,omitempty"`
	Max             *float64 `yaml:"max,omitempty"`
}

// Item is one study metadata entry.
type Item struct {
	Ns    []string `yaml:"ns,omitempty,flow"`
	Key   string   `yaml:"key"`
	Value string   `yaml:"value"`
}

func invalid(err error, format string, args ...interface{}) error {
	if err == nil {
		return status.Errorf(codes.InvalidArgument, format, args...)
	}
	return status.Errorf(codes.InvalidArgument, "%s: %s", errors.Errorf(format, args...).Error(), err.Error())
}

// Load reads the study definition at path.
func Load(path string) (*vz.StudyConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open study file %s", path)
	}
	defer f.Close()
	sc, err := Decode(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "study file %s", path)
	}
	return sc, nil
}

// Parse reads a study definition from data.
func Parse(data []byte) (*vz.StudyConfig, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a study definition from r. Unknown fields and invalid
// definitions are InvalidArgument errors.
func Decode(r io.Reader) (*vz.StudyConfig, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	var s Study
	if err := d.Decode(&s); err != nil {
		return nil, invalid(err, "cannot decode study")
	}
	return s.StudyConfig()
}

// StudyConfig converts the file layout into a validated study config.
func (s *Study) StudyConfig() (*vz.StudyConfig, error) {
	if s.Algorithm == "" {
		return nil, invalid(nil, "algorithm is required")
	}
	sc := vz.NewStudyConfig(s.Algorithm)
	sc.ObservationNoise = s.ObservationNoise
	for i := range s.Parameters {
		if err := s.Parameters[i].addTo(sc.SearchSpace); err != nil {
			return nil, err
		}
	}
	for _, m := range s.Metrics {
		goal, err := parseGoal(m.Goal)
		if err != nil {
			return nil, err
		}
		sc.MetricInformation = append(sc.MetricInformation, vz.MetricInformation{
			Name:            m.Name,
			Goal:            goal,
			SafetyThreshold: m.SafetyThreshold,
			MinValue:        m.Min,
			MaxValue:        m.Max,
		})
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	for _, it := range s.Metadata {
		if it.Key == "" {
			return nil, invalid(nil, "metadata key is required")
		}
		md := sc.Metadata.AbsNs(vz.Namespace(it.Ns))
		md.Set(it.Key, it.Value)
	}
	return sc, nil
}

func parseGoal(s string) (vz.Goal, error) {
	switch strings.ToLower(s) {
	case "maximize", "max":
		return vz.Maximize, nil
	case "minimize", "min":
		return vz.Minimize, nil
	}
	return 0, invalid(nil, "unknown goal %q", s)
}

func (p *Parameter) bounds() (float64, float64, error) {
	if p.Min == nil || p.Max == nil {
		return 0, 0, invalid(nil, "parameter %s needs min and max", p.Name)
	}
	return *p.Min, *p.Max, nil
}

func (p *Parameter) addTo(ss *vz.SearchSpace) error {
	scale, err := vz.ParseScaleType(p.Scale)
	if err != nil {
		return invalid(err, "parameter %s", p.Name)
	}
	pc := vz.ParameterConfig{Name: p.Name, ScaleType: scale}
	switch strings.ToLower(p.Type) {
	case "double", "float":
		pc.Type = vz.Double
		if pc.Bounds[0], pc.Bounds[1], err = p.bounds(); err != nil {
			return err
		}
	case "integer", "int":
		pc.Type = vz.Integer
		if pc.Bounds[0], pc.Bounds[1], err = p.bounds(); err != nil {
			return err
		}
	case "discrete":
		pc.Type = vz.Discrete
		pc.FeasiblePoints = append([]float64(nil), p.Points...)
		sort.Float64s(pc.FeasiblePoints)
	case "categorical":
		pc.Type = vz.Categorical
		pc.FeasibleValues = p.Values
	case "bool", "boolean":
		pc.Type = vz.Categorical
		pc.FeasibleValues = []string{vz.BoolValue(true).AsString(), vz.BoolValue(false).AsString()}
	default:
		return invalid(nil, "parameter %s has unknown type %q", p.Name, p.Type)
	}
	if p.Default != nil {
		v, err := defaultValue(p.Default)
		if err != nil {
			return invalid(err, "parameter %s", p.Name)
		}
		pc.Default = &v
	}
	return ss.Add(pc)
}

func defaultValue(d interface{}) (vz.ParameterValue, error) {
	switch v := d.(type) {
	case string:
		return vz.StringValue(v), nil
	case bool:
		return vz.BoolValue(v), nil
	case int:
		return vz.FloatValue(float64(v)), nil
	case float64:
		return vz.FloatValue(v), nil
	}
	return vz.ParameterValue{}, errors.Errorf("unsupported default %v of type %T", d, d)
}

// Encode writes sc back in the file layout.
func Encode(sc *vz.StudyConfig) ([]byte, error) {
	s := Study{Algorithm: sc.Algorithm, ObservationNoise: sc.ObservationNoise}
	for _, pc := range sc.SearchSpace.Parameters() {
		p := Parameter{Name: pc.Name, Type: strings.ToLower(pc.Type.String()), Scale: strings.ToLower(pc.ScaleType.String())}
		switch pc.Type {
		case vz.Double, vz.Integer:
			lo, hi := pc.Bounds[0], pc.Bounds[1]
			p.Min, p.Max = &lo, &hi
		case vz.Discrete:
			p.Points = pc.FeasiblePoints
		case vz.Categorical:
			p.Values = pc.FeasibleValues
		}
		if pc.Default != nil {
			if pc.Default.IsString() {
				p.Default = pc.Default.AsString()
			} else {
				f, _ := pc.Default.AsFloat()
				p.Default = f
			}
		}
		s.Parameters = append(s.Parameters, p)
	}
	for _, mi := range sc.MetricInformation {
		s.Metrics = append(s.Metrics, Metric{
			Name:            mi.Name,
			Goal:            strings.ToLower(mi.Goal.String()),
			SafetyThreshold: mi.SafetyThreshold,
			Min:             mi.MinValue,
			Max:             mi.MaxValue,
		})
	}
	for _, it := range sc.Metadata.AllItems() {
		s.Metadata = append(s.Metadata, Item{Ns: it.Ns, Key: it.Key, Value: it.Value})
	}
	var buf bytes.Buffer
	e := yaml.NewEncoder(&buf)
	e.SetIndent(2)
	if err := e.Encode(&s); err != nil {
		return nil, errors.Wrap(err, "cannot encode study")
	}
	if err := e.Close(); err != nil {
		return nil, errors.Wrap(err, "cannot encode study")
	}
	return buf.Bytes(), nil
}
