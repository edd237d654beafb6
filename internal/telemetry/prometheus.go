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
	ocPrometheus "contrib.go.opencensus.io/exporter/prometheus"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats/view"
	"vizier.dev/pythia/internal/config"
)

// metricsNamespace prefixes every metric served on the Prometheus endpoint.
const metricsNamespace = "pythia"

// newPrometheusRegistry returns a registry holding the process and Go runtime
// collectors plus a constant service_info gauge labeled with serviceName.
func newPrometheusRegistry(serviceName string) (*prometheus.Registry, error) {
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "service_info",
		Help:        "Always 1, labeled with the name of the running service.",
		ConstLabels: prometheus.Labels{"service": serviceName},
	})
	info.Set(1)

	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: metricsNamespace}),
		prometheus.NewGoCollector(),
		info,
	} {
		if err := registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "cannot register prometheus collector")
		}
	}
	return registry, nil
}

// bindPrometheus exports the opencensus views of the process through a
// Prometheus registry served on telemetry.prometheus.endpoint.
func bindPrometheus(p Params, b Bindings) error {
	cfg := p.Config()
	if !cfg.GetBool(config.TelemetryPrometheusEnable) {
		logger.Info("Prometheus Metrics: Disabled")
		return nil
	}

	registry, err := newPrometheusRegistry(p.ServiceName())
	if err != nil {
		return err
	}
	exporter, err := ocPrometheus.NewExporter(ocPrometheus.Options{
		Namespace: metricsNamespace,
		Registry:  registry,
		OnError: func(err error) {
			logger.WithError(err).Warn("cannot export view data to prometheus")
		},
	})
	if err != nil {
		return errors.Wrap(err, "cannot create prometheus exporter")
	}
	view.RegisterExporter(exporter)
	b.AddCloser(func() {
		view.UnregisterExporter(exporter)
	})

	endpoint := cfg.GetString(config.TelemetryPrometheusEndpoint)
	b.TelemetryHandle(endpoint, exporter)
	logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"service":  p.ServiceName(),
	}).Info("Prometheus Metrics: ENABLED")
	return nil
}
