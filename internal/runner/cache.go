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

package runner

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"vizier.dev/pythia/pkg/pythia"
)

// PolicyCache keeps policies that asked to be reused, keyed by study and
// algorithm.
type PolicyCache struct {
	c *lru.Cache
}

// NewPolicyCache returns a cache holding at most size policies.
func NewPolicyCache(size int) (*PolicyCache, error) {
	c, err := lru.NewWithEvict(size, func(key, _ interface{}) {
		logger.WithField("key", key).Debug("policy evicted from cache")
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create policy cache of size %d", size)
	}
	return &PolicyCache{c: c}, nil
}

func cacheKey(guid, algorithm string) string {
	return guid + "/" + algorithm
}

// Get returns the cached policy for the study and algorithm.
func (pc *PolicyCache) Get(guid, algorithm string) (pythia.Policy, bool) {
	v, ok := pc.c.Get(cacheKey(guid, algorithm))
	if !ok {
		return nil, false
	}
	return v.(pythia.Policy), true
}

// Add stores p.
func (pc *PolicyCache) Add(guid, algorithm string, p pythia.Policy) {
	pc.c.Add(cacheKey(guid, algorithm), p)
}

// Remove drops the policy of the study and algorithm, if any.
func (pc *PolicyCache) Remove(guid, algorithm string) {
	pc.c.Remove(cacheKey(guid, algorithm))
}

// Len returns the number of cached policies.
func (pc *PolicyCache) Len() int {
	return pc.c.Len()
}
