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
	"time"
)

// Logging keys.
const (
	LoggingLevel  = "logging.level"
	LoggingFormat = "logging.format"
	LoggingSource = "logging.source"
)

// Telemetry keys.
const (
	TelemetryHTTPPort                = "telemetry.httpport"
	TelemetryReportingPeriod         = "telemetry.reportingPeriod"
	TelemetryTraceSamplingFraction   = "telemetry.traceSamplingFraction"
	TelemetryPrometheusEnable        = "telemetry.prometheus.enable"
	TelemetryPrometheusEndpoint      = "telemetry.prometheus.endpoint"
	TelemetryJaegerEnable            = "telemetry.jaeger.enable"
	TelemetryJaegerAgentEndpoint     = "telemetry.jaeger.agentEndpoint"
	TelemetryJaegerCollectorEndpoint = "telemetry.jaeger.collectorEndpoint"
	TelemetryZpagesEnable            = "telemetry.zpages.enable"
)

// Retry keys, used when a supporter reports a temporary failure.
const (
	BackoffInitialInterval = "backoff.initialInterval"
	BackoffMaxInterval     = "backoff.maxInterval"
	BackoffMultiplier      = "backoff.multiplier"
	BackoffRandFactor      = "backoff.randFactor"
	BackoffMaxElapsedTime  = "backoff.maxElapsedTime"
	// BackoffSchedule overrides the keys above, see expbo.UnmarshalExponentialBackOff.
	BackoffSchedule        = "backoff.schedule"
)

// Runner keys.
const (
	RunnerIterations      = "runner.iterations"
	RunnerBatchSize       = "runner.batchSize"
	RunnerParallelism     = "runner.parallelism"
	RunnerPolicyCacheSize = "runner.policyCacheSize"
	RunnerDeadline        = "runner.deadline"
)

var defaults = map[string]interface{}{
	LoggingLevel:  "info",
	LoggingFormat: "text",
	LoggingSource: false,

	TelemetryHTTPPort:              0,
	TelemetryReportingPeriod:       "1m",
	TelemetryTraceSamplingFraction: 0.01,
	TelemetryPrometheusEnable:      false,
	TelemetryPrometheusEndpoint:    "/metrics",
	TelemetryJaegerEnable:          false,
	TelemetryZpagesEnable:          false,

	BackoffInitialInterval: 100 * time.Millisecond,
	BackoffMaxInterval:     2 * time.Second,
	BackoffMultiplier:      1.5,
	BackoffRandFactor:      0.5,
	BackoffMaxElapsedTime:  10 * time.Second,
	BackoffSchedule:        "",

	RunnerIterations:      10,
	RunnerBatchSize:       1,
	RunnerParallelism:     4,
	RunnerPolicyCacheSize: 16,
	RunnerDeadline:        time.Duration(0),
}

type defaulter interface {
	SetDefault(key string, value interface{})
}

func setDefaults(cfg defaulter) {
	for k, v := range defaults {
		cfg.SetDefault(k, v)
	}
}
