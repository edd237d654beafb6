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
	"go.opencensus.io/tag"
	"vizier.dev/pythia/internal/telemetry"
)

var (
	keyAlgorithm = tag.MustNewKey("algorithm")
	keyOperation = tag.MustNewKey("operation")
	keyCode      = tag.MustNewKey("code")

	policyCalls         = telemetry.Counter("pythia/policy_calls", "policy calls", keyAlgorithm, keyOperation, keyCode)
	policyLatency       = telemetry.HistogramWithBounds("pythia/policy_latency", "Latency of policy calls", "ms", telemetry.HistogramBounds, keyAlgorithm, keyOperation)
	suggestionsReturned = telemetry.HistogramWithBounds("pythia/suggestions", "Suggestions returned per call", "1", telemetry.CountBounds, keyAlgorithm)
	trialsEvaluated     = telemetry.Counter("pythia/trials_evaluated", "trials evaluated", keyAlgorithm, keyCode)
	policyCacheHits     = telemetry.Counter("pythia/policy_cache_hits", "policy cache hits", keyAlgorithm)
	supporterRetries    = telemetry.Counter("pythia/supporter_retries", "supporter calls retried", keyOperation)
	completedTrials     = telemetry.Gauge("pythia/completed_trials", "Completed trials of the running study", keyAlgorithm)
)
