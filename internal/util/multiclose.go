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

// Package util holds small helpers shared by the Pythia binaries.
package util

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "pythia",
		"component": "util",
	})
)

// MultiClose is a helper for closing multiple close functions at the end of a program.
type MultiClose struct {
	closers []func() error
	m       sync.Mutex
}

// NewMultiClose creates a new multi-closer.
func NewMultiClose() *MultiClose {
	return &MultiClose{}
}

// AddCloseFunc adds a close function.
func (mc *MultiClose) AddCloseFunc(closer func()) {
	mc.AddCloseWithErrorFunc(func() error {
		closer()
		return nil
	})
}

// AddCloseWithErrorFunc adds a close function.
func (mc *MultiClose) AddCloseWithErrorFunc(closer func() error) {
	mc.m.Lock()
	defer mc.m.Unlock()
	mc.closers = append(mc.closers, closer)
}

// Close runs the close functions in reverse order of registration, so that
// dependencies outlive their dependants. It returns the first error; later
// ones are logged.
func (mc *MultiClose) Close() error {
	mc.m.Lock()
	defer mc.m.Unlock()
	var first error
	for i := len(mc.closers) - 1; i >= 0; i-- {
		err := mc.closers[i]()
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		} else {
			logger.WithError(err).Warning("close function failed")
		}
	}
	mc.closers = nil
	return first
}
