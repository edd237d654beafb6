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
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ReadLayers reads files in order, values of later files overriding earlier
// ones, and re-merges them whenever one of the files changes.
func ReadLayers(files ...string) (View, error) {
	if len(files) == 0 {
		return nil, errors.New("no input files specified")
	}
	if len(files) == 1 {
		return ReadFile(files[0])
	}

	w := &layeredView{}
	layers := make([]*viper.Viper, len(files))

	queue := make(chan fsnotify.Event, 1)
	onFileChange := func(e fsnotify.Event) {
		select {
		case queue <- e:
		default:
		}
	}

	// read files into layers and watch for changes
	for i, f := range files {
		l, err := read(f, onFileChange)
		if err != nil {
			return nil, err
		}
		layers[i] = l
	}

	w.set(merge(layers...))
	recordVarCount(w.current())

	// re-merge layers upon changes in files
	go func() {
		for range queue {
			w.set(merge(layers...))
		}
	}()

	return w, nil
}

func merge(layers ...*viper.Viper) *viper.Viper {
	cfg := newViper()
	for _, l := range layers {
		if err := cfg.MergeConfigMap(l.AllSettings()); err != nil {
			logger.WithError(err).Warn("cannot merge config layer")
		}
	}
	return cfg
}

// layeredView implements View on top of the latest merge of all layers.
type layeredView struct {
	mu  sync.RWMutex
	cfg *viper.Viper
}

func (w *layeredView) set(cfg *viper.Viper) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg
}

func (w *layeredView) current() *viper.Viper {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *layeredView) IsSet(key string) bool {
	return w.current().IsSet(key)
}

func (w *layeredView) GetString(key string) string {
	return w.current().GetString(key)
}

func (w *layeredView) GetInt(key string) int {
	return w.current().GetInt(key)
}

func (w *layeredView) GetInt64(key string) int64 {
	return w.current().GetInt64(key)
}

func (w *layeredView) GetFloat64(key string) float64 {
	return w.current().GetFloat64(key)
}

func (w *layeredView) GetStringSlice(key string) []string {
	return w.current().GetStringSlice(key)
}

func (w *layeredView) GetBool(key string) bool {
	return w.current().GetBool(key)
}

func (w *layeredView) GetDuration(key string) time.Duration {
	return w.current().GetDuration(key)
}

func (w *layeredView) AllSettings() map[string]interface{} {
	return w.current().AllSettings()
}
