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

package config

import (
	"reflect"
	"sync"
	"time"
)

// Cacher builds a value from the config and rebuilds it only when one of the
// config values read by the build function has changed since.
type Cacher[T any] struct {
	cfg   View
	build func(View) (T, func(), error)

	m     sync.Mutex
	r     *rememberingView
	v     T
	close func()
}

// NewCacher returns a cacher calling build on first use and after changes.
// The returned close function, if any, is called when the value is replaced.
func NewCacher[T any](cfg View, build func(View) (T, func(), error)) *Cacher[T] {
	return &Cacher[T]{cfg: cfg, build: build}
}

// Get returns the cached value, building it if needed.
func (c *Cacher[T]) Get() (T, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if c.r == nil || c.r.hasChanges() {
		c.resetLocked()
		r := newRememberingView(c.cfg)
		v, closer, err := c.build(r)
		if err != nil {
			var zero T
			return zero, err
		}
		c.r, c.v, c.close = r, v, closer
	}
	return c.v, nil
}

// ForceReset drops the cached value.
func (c *Cacher[T]) ForceReset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.resetLocked()
}

func (c *Cacher[T]) resetLocked() {
	if c.close != nil {
		c.close()
	}
	var zero T
	c.r, c.v, c.close = nil, zero, nil
}

// rememberingView records every value read through it so that a later read
// of the underlying config can tell whether any of them changed.
type rememberingView struct {
	cfg  View
	mu   sync.Mutex
	seen map[string]func(View) interface{}
	vals map[string]interface{}
}

func newRememberingView(cfg View) *rememberingView {
	return &rememberingView{
		cfg:  cfg,
		seen: map[string]func(View) interface{}{},
		vals: map[string]interface{}{},
	}
}

func (r *rememberingView) remember(kind, key string, get func(View) interface{}) interface{} {
	v := get(r.cfg)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[kind+"/"+key] = get
	r.vals[kind+"/"+key] = v
	return v
}

func (r *rememberingView) hasChanges() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, get := range r.seen {
		if !reflect.DeepEqual(get(r.cfg), r.vals[k]) {
			return true
		}
	}
	return false
}

func (r *rememberingView) IsSet(k string) bool {
	return r.remember("isSet", k, func(v View) interface{} { return v.IsSet(k) }).(bool)
}

func (r *rememberingView) GetString(k string) string {
	return r.remember("string", k, func(v View) interface{} { return v.GetString(k) }).(string)
}

func (r *rememberingView) GetInt(k string) int {
	return r.remember("int", k, func(v View) interface{} { return v.GetInt(k) }).(int)
}

func (r *rememberingView) GetInt64(k string) int64 {
	return r.remember("int64", k, func(v View) interface{} { return v.GetInt64(k) }).(int64)
}

func (r *rememberingView) GetFloat64(k string) float64 {
	return r.remember("float64", k, func(v View) interface{} { return v.GetFloat64(k) }).(float64)
}

func (r *rememberingView) GetStringSlice(k string) []string {
	return r.remember("stringSlice", k, func(v View) interface{} { return v.GetStringSlice(k) }).([]string)
}

func (r *rememberingView) GetBool(k string) bool {
	return r.remember("bool", k, func(v View) interface{} { return v.GetBool(k) }).(bool)
}

func (r *rememberingView) GetDuration(k string) time.Duration {
	return r.remember("duration", k, func(v View) interface{} { return v.GetDuration(k) }).(time.Duration)
}

func (r *rememberingView) AllSettings() map[string]interface{} {
	return r.remember("all", "", func(v View) interface{} { return v.AllSettings() }).(map[string]interface{})
}
