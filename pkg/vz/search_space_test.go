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
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSearchSpaceBuilders(t *testing.T) {
	require := require.New(t)
	ss := NewSearchSpace()
	require.Nil(ss.AddFloatParam("lr", 1e-4, 1e-1, Log))
	require.Nil(ss.AddIntParam("layers", 1, 5, Linear))
	require.Nil(ss.AddDiscreteParam("batch", []float64{64, 16, 32}, ScaleNone))
	require.Nil(ss.AddCategoricalParam("opt", []string{"adam", "sgd"}))
	require.Nil(ss.AddBoolParam("nesterov"))

	want := []ParameterConfig{
		{Name: "lr", Type: Double, Bounds: [2]float64{1e-4, 1e-1}, ScaleType: Log},
		{Name: "layers", Type: Integer, Bounds: [2]float64{1, 5}, ScaleType: Linear},
		{Name: "batch", Type: Discrete, FeasiblePoints: []float64{16, 32, 64}},
		{Name: "opt", Type: Categorical, FeasibleValues: []string{"adam", "sgd"}},
		{Name: "nesterov", Type: Categorical, FeasibleValues: []string{"True", "False"}},
	}
	if diff := cmp.Diff(want, ss.Parameters()); diff != "" {
		t.Errorf("Parameters() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(5, ss.Len())

	layers, ok := ss.Get("layers")
	require.True(ok)
	require.Equal(5, layers.NumFeasibleValues())
	_, ok = ss.Get("missing")
	require.False(ok)
}

func TestSearchSpaceRejectsInvalidParameters(t *testing.T) {
	testCases := []struct {
		name string
		add  func(*SearchSpace) error
	}{
		{"emptyName", func(ss *SearchSpace) error { return ss.AddFloatParam("", 0, 1, ScaleNone) }},
		{"invertedBounds", func(ss *SearchSpace) error { return ss.AddFloatParam("x", 1, 0, ScaleNone) }},
		{"nanBounds", func(ss *SearchSpace) error { return ss.AddFloatParam("x", math.NaN(), 1, ScaleNone) }},
		{"hugeIntegerBounds", func(ss *SearchSpace) error { return ss.AddIntParam("i", 0, 1<<60, ScaleNone) }},
		{"hugeNegativeIntegerBounds", func(ss *SearchSpace) error { return ss.AddIntParam("i", -(1 << 60), 0, ScaleNone) }},
		{"noCategories", func(ss *SearchSpace) error { return ss.AddCategoricalParam("c", nil) }},
		{"repeatedCategory", func(ss *SearchSpace) error { return ss.AddCategoricalParam("c", []string{"a", "a"}) }},
		{"noPoints", func(ss *SearchSpace) error { return ss.AddDiscreteParam("d", nil, ScaleNone) }},
		{"repeatedPoint", func(ss *SearchSpace) error { return ss.AddDiscreteParam("d", []float64{1, 1}, ScaleNone) }},
		{"duplicate", func(ss *SearchSpace) error {
			if err := ss.AddIntParam("i", 0, 1, ScaleNone); err != nil {
				return err
			}
			return ss.AddIntParam("i", 0, 1, ScaleNone)
		}},
		{"badDefault", func(ss *SearchSpace) error {
			d := StringValue("z")
			return ss.Add(ParameterConfig{Name: "c", Type: Categorical, FeasibleValues: []string{"a"}, Default: &d})
		}},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.add(NewSearchSpace())
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestNumFeasibleValues(t *testing.T) {
	testCases := []struct {
		name string
		pc   ParameterConfig
		want int
	}{
		{"double", ParameterConfig{Type: Double, Bounds: [2]float64{0, 1}}, 0},
		{"integer", ParameterConfig{Type: Integer, Bounds: [2]float64{-2, 2}}, 5},
		{"singleInteger", ParameterConfig{Type: Integer, Bounds: [2]float64{3, 3}}, 1},
		{"wideInteger", ParameterConfig{Type: Integer, Bounds: [2]float64{-1000, 1000}}, 2001},
		{"unvalidatedHugeInteger", ParameterConfig{Type: Integer, Bounds: [2]float64{-math.MaxFloat64, math.MaxFloat64}}, math.MaxInt},
		{"invertedInteger", ParameterConfig{Type: Integer, Bounds: [2]float64{2, 1}}, 0},
		{"categorical", ParameterConfig{Type: Categorical, FeasibleValues: []string{"a", "b"}}, 2},
		{"discrete", ParameterConfig{Type: Discrete, FeasiblePoints: []float64{1, 2, 3}}, 3},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.pc.NumFeasibleValues())
		})
	}
}

func TestSearchSpaceContains(t *testing.T) {
	ss := NewSearchSpace()
	require.Nil(t, ss.AddFloatParam("x", 0, 1, ScaleNone))
	require.Nil(t, ss.AddIntParam("n", 1, 3, ScaleNone))
	require.Nil(t, ss.AddCategoricalParam("c", []string{"a", "b"}))
	require.Nil(t, ss.AddDiscreteParam("d", []float64{0.5, 1.5}, ScaleNone))

	testCases := []struct {
		name string
		in   ParameterDict
		want bool
	}{
		{"feasible", ParameterDict{"x": FloatValue(0.5), "n": IntValue(2), "c": StringValue("a"), "d": FloatValue(1.5)}, true},
		{"missing", ParameterDict{"x": FloatValue(0.5), "n": IntValue(2), "c": StringValue("a")}, false},
		{"outOfBounds", ParameterDict{"x": FloatValue(2), "n": IntValue(2), "c": StringValue("a"), "d": FloatValue(1.5)}, false},
		{"nonInteger", ParameterDict{"x": FloatValue(0.5), "n": FloatValue(2.5), "c": StringValue("a"), "d": FloatValue(1.5)}, false},
		{"unknownCategory", ParameterDict{"x": FloatValue(0.5), "n": IntValue(2), "c": StringValue("z"), "d": FloatValue(1.5)}, false},
		{"numericCategory", ParameterDict{"x": FloatValue(0.5), "n": IntValue(2), "c": FloatValue(1), "d": FloatValue(1.5)}, false},
		{"offGridPoint", ParameterDict{"x": FloatValue(0.5), "n": IntValue(2), "c": StringValue("a"), "d": FloatValue(1)}, false},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ss.Contains(tc.in))
		})
	}
}

func TestParameterValue(t *testing.T) {
	assert := assert.New(t)

	i, ok := IntValue(3).AsInt()
	assert.True(ok)
	assert.Equal(int64(3), i)
	_, ok = FloatValue(3.5).AsInt()
	assert.False(ok)

	f, ok := StringValue("2.5").AsFloat()
	assert.True(ok)
	assert.Equal(2.5, f)
	_, ok = StringValue("abc").AsFloat()
	assert.False(ok)

	b, ok := BoolValue(true).AsBool()
	assert.True(ok)
	assert.True(b)
	_, ok = FloatValue(1).AsBool()
	assert.False(ok)

	assert.Equal("0.25", FloatValue(0.25).AsString())
	assert.Equal(`"x"`, StringValue("x").String())
}

func TestParameterValueJSON(t *testing.T) {
	require := require.New(t)
	in := ParameterDict{"x": FloatValue(0.5), "c": StringValue("a")}
	b, err := json.Marshal(in)
	require.Nil(err)
	require.JSONEq(`{"x":0.5,"c":"a"}`, string(b))

	var out ParameterDict
	require.Nil(json.Unmarshal([]byte(`{"x":0.5,"c":"a","flag":true}`), &out))
	require.Equal(FloatValue(0.5), out["x"])
	require.Equal(StringValue("a"), out["c"])
	require.Equal(BoolValue(true), out["flag"])

	require.NotNil(json.Unmarshal([]byte(`{"x":[1]}`), &out))
}

func TestParseTypes(t *testing.T) {
	pt, err := ParseParameterType("categorical")
	assert.Nil(t, err)
	assert.Equal(t, Categorical, pt)
	_, err = ParseParameterType("bogus")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	st, err := ParseScaleType("log")
	assert.Nil(t, err)
	assert.Equal(t, Log, st)
	st, err = ParseScaleType("")
	assert.Nil(t, err)
	assert.Equal(t, ScaleNone, st)
}
