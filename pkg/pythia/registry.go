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
	"sort"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"vizier.dev/pythia/pkg/vz"
)

// PolicyFactory builds a policy for one request.
type PolicyFactory func(problem *vz.ProblemStatement, supporter PolicySupporter) (Policy, error)

// Registry maps algorithm names to policy factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]PolicyFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]PolicyFactory{}}
}

// Register binds name to f. A name can only be registered once.
func (r *Registry) Register(name string, f PolicyFactory) error {
	if name == "" {
		return status.Error(codes.InvalidArgument, "algorithm name is required")
	}
	if f == nil {
		return status.Errorf(codes.InvalidArgument, "algorithm %s has no factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return status.Errorf(codes.AlreadyExists, "algorithm %s is already registered", name)
	}
	r.factories[name] = f
	return nil
}

// New builds the policy registered under name.
func (r *Registry) New(name string, problem *vz.ProblemStatement, supporter PolicySupporter) (Policy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "algorithm %s is not registered", name)
	}
	return f(problem, supporter)
}

// Factory returns the factory registered under name.
func (r *Registry) Factory(name string) (PolicyFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names lists the registered algorithms in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
