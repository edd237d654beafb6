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

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
)

const (
	// HealthCheckEndpoint serves liveness, and readiness when queried with any parameter.
	HealthCheckEndpoint   = "/healthz"
	healthStateFirstProbe = int32(0)
	healthStateHealthy    = int32(1)
	healthStateUnhealthy  = int32(2)
)

// Probe is a named readiness check.
type Probe struct {
	Name  string
	Check func(context.Context) error
}

type statefulProbe struct {
	healthState *int32
	probes      []Probe
}

func (sp *statefulProbe) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if len(req.URL.Query()) > 0 {
		for _, probe := range sp.probes {
			err := probe.Check(req.Context())
			if err != nil {
				old := atomic.SwapInt32(sp.healthState, healthStateUnhealthy)
				entry := logger.WithError(err).WithField("probe", probe.Name)
				if old == healthStateUnhealthy {
					entry.Warningf("%s readiness continues to fail.", HealthCheckEndpoint)
				} else {
					entry.Warningf("%s readiness failed.", HealthCheckEndpoint)
				}
				http.Error(w, fmt.Sprintf("%s: %s", probe.Name, err.Error()), http.StatusServiceUnavailable)
				return
			}
		}

		old := atomic.SwapInt32(sp.healthState, healthStateHealthy)
		if old == healthStateUnhealthy {
			logger.Infof("%s is healthy again.", HealthCheckEndpoint)
		} else if old == healthStateFirstProbe {
			logger.Infof("%s is reporting healthy.", HealthCheckEndpoint)
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok")
}

// NewAlwaysReadyHealthCheck returns a health check with no readiness probes.
func NewAlwaysReadyHealthCheck() http.Handler {
	return NewHealthCheck()
}

// NewHealthCheck returns a handler running the probes in order on readiness queries.
func NewHealthCheck(probes ...Probe) http.Handler {
	return &statefulProbe{
		healthState: new(int32),
		probes:      probes,
	}
}
