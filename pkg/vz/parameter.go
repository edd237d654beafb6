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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ParameterType is the type of a search space parameter.
type ParameterType int

const (
	// Double parameters take any value in a closed float interval.
	Double ParameterType = iota + 1
	// Integer parameters take any integer in a closed interval.
	Integer
	// Categorical parameters take one of a finite set of strings.
	Categorical
	// Discrete parameters take one of a finite, ordered set of numbers.
	Discrete
)

var parameterTypeNames = map[ParameterType]string{
	Double:      "DOUBLE",
	Integer:     "INTEGER",
	Categorical: "CATEGORICAL",
	Discrete:    "DISCRETE",
}

func (t ParameterType) String() string {
	if n, ok := parameterTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("ParameterType(%d)", int(t))
}

// ParseParameterType is the inverse of ParameterType.String. It is case insensitive.
func ParseParameterType(s string) (ParameterType, error) {
	for t, n := range parameterTypeNames {
		if strings.EqualFold(n, s) {
			return t, nil
		}
	}
	return 0, status.Errorf(codes.InvalidArgument, "unknown parameter type %q", s)
}

// ScaleType hints how a numeric parameter should be scaled by an algorithm.
type ScaleType int

const (
	// ScaleNone leaves the choice of scaling to the algorithm.
	ScaleNone ScaleType = iota
	Linear
	Log
	ReverseLog
	UniformDiscrete
)

var scaleTypeNames = map[ScaleType]string{
	ScaleNone:       "",
	Linear:          "LINEAR",
	Log:             "LOG",
	ReverseLog:      "REVERSE_LOG",
	UniformDiscrete: "UNIFORM_DISCRETE",
}

func (s ScaleType) String() string {
	return scaleTypeNames[s]
}

// ParseScaleType is the inverse of ScaleType.String. An empty string is ScaleNone.
func ParseScaleType(s string) (ScaleType, error) {
	for t, n := range scaleTypeNames {
		if strings.EqualFold(n, s) {
			return t, nil
		}
	}
	return ScaleNone, status.Errorf(codes.InvalidArgument, "unknown scale type %q", s)
}

// ParameterValue holds the value of a single parameter: either a number or a string.
// The zero value is the number 0.
type ParameterValue struct {
	str   string
	num   float64
	isStr bool
}

// FloatValue returns a numeric ParameterValue.
func FloatValue(f float64) ParameterValue {
	return ParameterValue{num: f}
}

// IntValue returns a numeric ParameterValue holding an integer.
func IntValue(i int64) ParameterValue {
	return ParameterValue{num: float64(i)}
}

// StringValue returns a string ParameterValue.
func StringValue(s string) ParameterValue {
	return ParameterValue{str: s, isStr: true}
}

// BoolValue returns the categorical encoding of a boolean, "True" or "False".
func BoolValue(b bool) ParameterValue {
	if b {
		return StringValue(trueValue)
	}
	return StringValue(falseValue)
}

const (
	trueValue  = "True"
	falseValue = "False"
)

// IsString is true if the value holds a string.
func (v ParameterValue) IsString() bool {
	return v.isStr
}

// AsFloat returns the numeric value. String values are parsed.
func (v ParameterValue) AsFloat() (float64, bool) {
	if !v.isStr {
		return v.num, true
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsInt returns the value as an integer when it is integral.
func (v ParameterValue) AsInt() (int64, bool) {
	f, ok := v.AsFloat()
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// AsString returns the string value, or the shortest representation of a number.
func (v ParameterValue) AsString() string {
	if v.isStr {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// AsBool decodes the categorical "True"/"False" encoding.
func (v ParameterValue) AsBool() (bool, bool) {
	if !v.isStr {
		return false, false
	}
	switch v.str {
	case trueValue:
		return true, true
	case falseValue:
		return false, true
	}
	return false, false
}

func (v ParameterValue) String() string {
	if v.isStr {
		return strconv.Quote(v.str)
	}
	return v.AsString()
}

// MarshalJSON encodes the value as a JSON number or string.
func (v ParameterValue) MarshalJSON() ([]byte, error) {
	if v.isStr {
		return json.Marshal(v.str)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts a JSON number, string or boolean.
func (v *ParameterValue) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*v = FloatValue(x)
	case string:
		*v = StringValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return status.Errorf(codes.InvalidArgument, "cannot decode parameter value from %s", string(b))
	}
	return nil
}

// ParameterDict maps parameter names to values.
type ParameterDict map[string]ParameterValue

// Clone returns a shallow copy; values are immutable.
func (d ParameterDict) Clone() ParameterDict {
	if d == nil {
		return nil
	}
	out := make(ParameterDict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ParameterConfig describes a single flat parameter of a search space.
type ParameterConfig struct {
	Name string
	Type ParameterType
	// Bounds is the closed interval of Double and Integer parameters.
	Bounds [2]float64
	// FeasibleValues are the values of a Categorical parameter.
	FeasibleValues []string
	// FeasiblePoints are the sorted values of a Discrete parameter.
	FeasiblePoints []float64
	ScaleType      ScaleType
	Default        *ParameterValue
}

// maxIntegerBound is the largest magnitude of an Integer bound; every integer
// up to it is exact as a float64.
const maxIntegerBound = 1 << 53

func (pc *ParameterConfig) validate() error {
	if pc.Name == "" {
		return status.Error(codes.InvalidArgument, "parameter name is required")
	}
	switch pc.Type {
	case Double, Integer:
		if math.IsNaN(pc.Bounds[0]) || math.IsNaN(pc.Bounds[1]) {
			return status.Errorf(codes.InvalidArgument, "parameter %s has NaN bounds", pc.Name)
		}
		if pc.Bounds[0] > pc.Bounds[1] {
			return status.Errorf(codes.InvalidArgument, "parameter %s has lower bound %v above upper bound %v", pc.Name, pc.Bounds[0], pc.Bounds[1])
		}
		if pc.Type == Integer && (pc.Bounds[0] != math.Trunc(pc.Bounds[0]) || pc.Bounds[1] != math.Trunc(pc.Bounds[1])) {
			return status.Errorf(codes.InvalidArgument, "parameter %s has non-integer bounds %v", pc.Name, pc.Bounds)
		}
		if pc.Type == Integer && (math.Abs(pc.Bounds[0]) > maxIntegerBound || math.Abs(pc.Bounds[1]) > maxIntegerBound) {
			return status.Errorf(codes.InvalidArgument, "parameter %s has bounds %v beyond +/-2^53", pc.Name, pc.Bounds)
		}
	case Categorical:
		if len(pc.FeasibleValues) == 0 {
			return status.Errorf(codes.InvalidArgument, "categorical parameter %s has no feasible values", pc.Name)
		}
		seen := make(map[string]struct{}, len(pc.FeasibleValues))
		for _, fv := range pc.FeasibleValues {
			if _, ok := seen[fv]; ok {
				return status.Errorf(codes.InvalidArgument, "categorical parameter %s repeats value %q", pc.Name, fv)
			}
			seen[fv] = struct{}{}
		}
	case Discrete:
		if len(pc.FeasiblePoints) == 0 {
			return status.Errorf(codes.InvalidArgument, "discrete parameter %s has no feasible points", pc.Name)
		}
		for i := 1; i < len(pc.FeasiblePoints); i++ {
			if pc.FeasiblePoints[i] <= pc.FeasiblePoints[i-1] {
				return status.Errorf(codes.InvalidArgument, "discrete parameter %s feasible points must be strictly increasing", pc.Name)
			}
		}
	default:
		return status.Errorf(codes.InvalidArgument, "parameter %s has unsupported type %v", pc.Name, pc.Type)
	}
	if pc.Default != nil && !pc.Contains(*pc.Default) {
		return status.Errorf(codes.InvalidArgument, "default %v of parameter %s is infeasible", *pc.Default, pc.Name)
	}
	return nil
}

// Contains is true if v is a feasible value for this parameter.
func (pc *ParameterConfig) Contains(v ParameterValue) bool {
	switch pc.Type {
	case Double:
		f, ok := v.AsFloat()
		return ok && !v.IsString() && f >= pc.Bounds[0] && f <= pc.Bounds[1]
	case Integer:
		i, ok := v.AsInt()
		return ok && !v.IsString() && float64(i) >= pc.Bounds[0] && float64(i) <= pc.Bounds[1]
	case Categorical:
		if !v.IsString() {
			return false
		}
		for _, fv := range pc.FeasibleValues {
			if fv == v.str {
				return true
			}
		}
	case Discrete:
		f, ok := v.AsFloat()
		if !ok || v.IsString() {
			return false
		}
		for _, p := range pc.FeasiblePoints {
			if p == f {
				return true
			}
		}
	}
	return false
}

// NumFeasibleValues is the size of a finite domain. Double parameters return 0.
// Integer domains larger than math.MaxInt report math.MaxInt.
func (pc *ParameterConfig) NumFeasibleValues() int {
	switch pc.Type {
	case Integer:
		n := pc.Bounds[1] - pc.Bounds[0] + 1
		switch {
		case math.IsNaN(n) || n < 1:
			return 0
		case n >= float64(math.MaxInt):
			return math.MaxInt
		}
		return int(n)
	case Categorical:
		return len(pc.FeasibleValues)
	case Discrete:
		return len(pc.FeasiblePoints)
	}
	return 0
}
