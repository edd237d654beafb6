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

// Package apptest allows testing of bound applications within memory.
package apptest

import (
	"net"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"vizier.dev/pythia/internal/appmain"
	"vizier.dev/pythia/internal/config"
)

// TestApp starts the binds as one application and stops it when the test
// ends. When cfg sets a positive telemetry.httpport the telemetry server
// listens on a local port chosen by the system instead, see App.Addr.
func TestApp(t *testing.T, cfg config.View, binds ...appmain.Bind) *appmain.App {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	getCfg := func() (config.View, error) {
		return cfg, nil
	}
	bindAll := func(p *appmain.Params, b *appmain.Bindings) error {
		for _, bind := range binds {
			err := bind(p, b)
			if err != nil {
				return err
			}
		}
		return nil
	}

	app, err := appmain.StartApplication("test", bindAll, getCfg, singleListener(l))
	if err != nil {
		l.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		// A no-op when the app served on l.
		_ = l.Close()
	})
	t.Cleanup(func() {
		err := app.Stop()
		if err != nil {
			t.Fatal(err)
		}
	})
	return app
}

// singleListener hands out l once, whatever address is asked for.
func singleListener(l net.Listener) func(network, address string) (net.Listener, error) {
	var once sync.Once
	return func(network, address string) (net.Listener, error) {
		var out net.Listener
		once.Do(func() { out = l })
		if out == nil {
			return nil, errors.Errorf("listener for %q was already used", address)
		}
		return out, nil
	}
}
