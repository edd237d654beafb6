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

package pythia

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrEarlyStopUnimplemented is returned by policies that only suggest.
var ErrEarlyStopUnimplemented = status.Error(codes.Unimplemented, "early stopping is not implemented by this policy")

// NewCancelComputeError is returned when the caller no longer needs the result.
func NewCancelComputeError(format string, args ...interface{}) error {
	return status.Errorf(codes.Canceled, format, args...)
}

// NewTemporaryError is returned for failures that may go away on retry.
func NewTemporaryError(format string, args ...interface{}) error {
	return status.Errorf(codes.Unavailable, format, args...)
}

// NewInactivateStudyError is returned by policies that decide the study is done.
func NewInactivateStudyError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// NewLoadTooLargeError is returned when a request needs more data than the
// policy can handle.
func NewLoadTooLargeError(format string, args ...interface{}) error {
	return status.Errorf(codes.ResourceExhausted, format, args...)
}

// NewCachedPolicyIsStaleError is returned by a cached policy that must be
// rebuilt before it can serve the request.
func NewCachedPolicyIsStaleError(format string, args ...interface{}) error {
	return status.Errorf(codes.Aborted, format, args...)
}

// Code returns the status code of err, looking through wrapped errors.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Code()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Unknown
}

// IsTemporary is true for errors worth retrying.
func IsTemporary(err error) bool {
	return Code(err) == codes.Unavailable
}
