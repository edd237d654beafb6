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

package algorithms

import (
	"fmt"

	"github.com/pkg/errors"
)

// HarmlessDecodeError is returned when metadata holds no designer state.
// Callers may start a fresh designer instead.
type HarmlessDecodeError struct {
	Reason string
}

func (e *HarmlessDecodeError) Error() string {
	return fmt.Sprintf("no designer state to decode: %s", e.Reason)
}

// DecodeError is returned when designer state exists but cannot be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot decode designer state: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot decode designer state: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewHarmlessDecodeError returns a HarmlessDecodeError.
func NewHarmlessDecodeError(format string, args ...interface{}) error {
	return &HarmlessDecodeError{Reason: fmt.Sprintf(format, args...)}
}

// NewDecodeError returns a DecodeError wrapping err.
func NewDecodeError(err error, format string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// IsHarmlessDecodeError is true if any error in the chain is a HarmlessDecodeError.
func IsHarmlessDecodeError(err error) bool {
	var h *HarmlessDecodeError
	return errors.As(err, &h)
}

// IsDecodeError is true if any error in the chain is a DecodeError.
func IsDecodeError(err error) bool {
	var d *DecodeError
	return errors.As(err, &d)
}
