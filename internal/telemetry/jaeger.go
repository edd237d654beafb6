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
	"contrib.go.opencensus.io/exporter/jaeger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"vizier.dev/pythia/internal/config"
)

func bindJaeger(p Params, b Bindings) error {
	cfg := p.Config()
	if !cfg.GetBool(config.TelemetryJaegerEnable) {
		logger.Info("Jaeger Tracing: Disabled")
		return nil
	}

	agentEndpointURI := cfg.GetString(config.TelemetryJaegerAgentEndpoint)
	collectorEndpointURI := cfg.GetString(config.TelemetryJaegerCollectorEndpoint)
	serviceName := p.ServiceName()

	je, err := jaeger.NewExporter(jaeger.Options{
		AgentEndpoint:     agentEndpointURI,
		CollectorEndpoint: collectorEndpointURI,
		ServiceName:       serviceName,
	})
	if err != nil {
		return errors.Wrapf(err, "Failed to create the Jaeger exporter for agent %q and collector %q", agentEndpointURI, collectorEndpointURI)
	}

	// And now finally register it as a Trace Exporter
	trace.RegisterExporter(je)
	b.AddCloser(func() {
		je.Flush()
		trace.UnregisterExporter(je)
	})

	logger.WithFields(logrus.Fields{
		"agentEndpoint":     agentEndpointURI,
		"collectorEndpoint": collectorEndpointURI,
		"serviceName":       serviceName,
	}).Info("Jaeger Tracing: ENABLED")
	return nil
}
