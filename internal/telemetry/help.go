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
	"fmt"
	"net/http"

	"vizier.dev/pythia/internal/config"
)

const (
	helpEndpoint          = "/help"
	helpSecondaryEndpoint = "/sos"
	helpPage              = `<!DOCTYPE html>
<head>
	<title>Pythia Runner Help</title>
</head>
<body>
<pre>
* <a href="/healthz">/healthz</a> - Liveness, add ?readiness to run the readiness probes
* <a href="/configz">/configz</a> - Effective configuration
* <a href="/debug/tracez">/debug/tracez</a> - Policy call tracing
* <a href="/debug/pprof/">/debug/pprof/</a> - PProf
* <a href="/debug/pprof/profile">/debug/pprof/profile</a> - PProf
* <a href="/debug/pprof/trace">/debug/pprof/trace</a> - Execution Trace
* <a href="%s">%s</a> - Raw Metrics, use prometheus or grafana instead.

<i>For /debug/pprof/ links see, https://golang.org/pkg/net/http/pprof/ for details.</i>
</pre>
</body>
`
)

func newHelp(metricsEndpoint string) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, helpPage, metricsEndpoint, metricsEndpoint)
	}
}

func bindHelp(p Params, b Bindings) error {
	cfg := p.Config()
	if !cfg.GetBool(config.TelemetryZpagesEnable) {
		return nil
	}
	h := newHelp(cfg.GetString(config.TelemetryPrometheusEndpoint))
	b.TelemetryHandleFunc(helpEndpoint, h)
	b.TelemetryHandleFunc(helpSecondaryEndpoint, h)

	return nil
}
