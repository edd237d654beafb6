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

	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"vizier.dev/pythia/internal/config"
)

var (
	// KeySeverity tags log line counts with the logrus level.
	KeySeverity = tag.MustNewKey("severity")
)

// LogHook counts log lines per severity.
type LogHook struct {
	count *stats.Int64Measure
}

// NewLogHook returns a logrus hook recording one unit of m per line.
func NewLogHook(m *stats.Int64Measure) *LogHook {
	return &LogHook{count: m}
}

// Fire records the line under its level.
func (h *LogHook) Fire(e *logrus.Entry) error {
	ctx, err := tag.New(context.Background(), tag.Upsert(KeySeverity, e.Level.String()))
	if err != nil {
		return err
	}
	stats.Record(ctx, h.count.M(1))
	return nil
}

// Levels returns all log levels.
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func bindLogLines(p Params, b Bindings) error {
	if !p.Config().GetBool(config.TelemetryPrometheusEnable) {
		return nil
	}
	logrus.AddHook(NewLogHook(Counter("log_lines", "lines logged", KeySeverity)))
	return nil
}
