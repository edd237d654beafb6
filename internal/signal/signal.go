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

// Package signal ends long running work on Ctrl+C or a termination request.
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// New waits for a manual termination or a user initiated termination IE: Ctrl+C or SIGTERM.
// waitForFunc() will wait indefinitely for a signal.
// terminateFunc() will trigger waitForFunc() to complete immediately.
func New() (waitForFunc func(), terminateFunc func()) {
	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-terminate
		signal.Stop(terminate)
		close(done)
	}()
	waitForFunc = func() {
		<-done
	}
	terminateFunc = func() {
		select {
		case terminate <- os.Interrupt:
		default:
		}
	}
	return waitForFunc, terminateFunc
}

// WithTermination returns a context cancelled on the first termination
// signal. The returned function cancels it directly.
func WithTermination(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	wait, terminate := New()
	go func() {
		select {
		case <-ctx.Done():
			terminate()
		case <-waitChan(wait):
			logger.Info("termination requested")
			cancel()
		}
	}()
	return ctx, cancel
}

func waitChan(wait func()) <-chan struct{} {
	c := make(chan struct{})
	go func() {
		wait()
		close(c)
	}()
	return c
}
