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

// Package testing provides utility methods for testing.
package testing

import (
	"context"
	"testing"
	"time"
)

type contextTestKey string

// DefaultTimeout bounds every test context.
const DefaultTimeout = 30 * time.Second

// NewContext returns a context carrying t that is cancelled when the test
// ends or after DefaultTimeout.
func NewContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.WithValue(context.Background(), contextTestKey("testing.T"), t), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// T returns the test stored by NewContext, or nil.
func T(ctx context.Context) *testing.T {
	t, _ := ctx.Value(contextTestKey("testing.T")).(*testing.T)
	return t
}
