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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"vizier.dev/pythia/internal/config"
)

type fakeParams struct {
	cfg config.View
}

func (p fakeParams) Config() config.View { return p.cfg }
func (p fakeParams) ServiceName() string { return "pythia-test" }

type fakeBindings struct {
	patterns []string
	handlers map[string]http.Handler
	closers  []func() error
}

func (b *fakeBindings) TelemetryHandle(pattern string, handler http.Handler) {
	b.patterns = append(b.patterns, pattern)
	if b.handlers == nil {
		b.handlers = map[string]http.Handler{}
	}
	b.handlers[pattern] = handler
}

func (b *fakeBindings) TelemetryHandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	b.TelemetryHandle(pattern, http.HandlerFunc(handler))
}

func (b *fakeBindings) AddCloser(c func()) {
	b.closers = append(b.closers, func() error {
		c()
		return nil
	})
}

func (b *fakeBindings) AddCloserErr(c func() error) {
	b.closers = append(b.closers, c)
}

func (b *fakeBindings) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func TestSetupDisabled(t *testing.T) {
	require := require.New(t)
	b := &fakeBindings{}
	require.Nil(Setup(fakeParams{cfg: config.NewMutable()}, b))
	require.Empty(b.patterns)
	require.Empty(b.closers)
}

func TestSetupEnabled(t *testing.T) {
	require := require.New(t)
	cfg := config.NewMutable()
	cfg.Set(config.TelemetryPrometheusEnable, true)
	cfg.Set(config.TelemetryZpagesEnable, true)
	cfg.Set(config.TelemetryReportingPeriod, "not a duration")

	b := &fakeBindings{}
	require.Nil(Setup(fakeParams{cfg: cfg}, b))
	defer b.close()

	require.Contains(b.patterns, "/metrics")
	require.Contains(b.patterns, "/configz")
	require.Contains(b.patterns, "/help")
	require.Contains(b.patterns, "/debug/")
	require.Len(b.closers, 1)
}

func TestPrometheusEndpoint(t *testing.T) {
	require := require.New(t)
	cfg := config.NewMutable()
	cfg.Set(config.TelemetryPrometheusEnable, true)
	cfg.Set(config.TelemetryPrometheusEndpoint, "/prom")

	b := &fakeBindings{}
	require.Nil(bindPrometheus(fakeParams{cfg: cfg}, b))
	defer b.close()
	require.Equal([]string{"/prom"}, b.patterns)

	rec := httptest.NewRecorder()
	b.handlers["/prom"].ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prom", nil))
	require.Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.Nil(err)
	require.Contains(string(body), `pythia_service_info{service="pythia-test"} 1`)
	require.Contains(string(body), "go_goroutines")
}

func TestPrometheusRegistry(t *testing.T) {
	require := require.New(t)
	registry, err := newPrometheusRegistry("svc")
	require.Nil(err)

	families, err := registry.Gather()
	require.Nil(err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(names["pythia_service_info"])
	require.True(names["go_goroutines"])
}

func TestCounter(t *testing.T) {
	require := require.New(t)
	key := tag.MustNewKey("algorithm")
	m := Counter("test_counter", "test events", key)
	defer view.Unregister(view.Find(m.Name()))

	RecordUnitMeasurement(context.Background(), m, tag.Upsert(key, "a"))
	RecordNUnitMeasurement(context.Background(), m, 5, tag.Upsert(key, "a"))
	RecordUnitMeasurement(context.Background(), m, tag.Upsert(key, "b"))

	rows, err := view.RetrieveData(m.Name())
	require.Nil(err)
	counts := map[string]int64{}
	for _, r := range rows {
		counts[r.Tags[0].Value] = r.Data.(*view.CountData).Value
	}
	// Count aggregation counts records, not their values.
	require.Equal(map[string]int64{"a": 2, "b": 1}, counts)
}

func TestGauge(t *testing.T) {
	require := require.New(t)
	m := Gauge("test_gauge", "test gauge")
	defer view.Unregister(view.Find(m.Name()))

	SetGauge(context.Background(), m, 3)
	SetGauge(context.Background(), m, 7)

	rows, err := view.RetrieveData(m.Name())
	require.Nil(err)
	require.Len(rows, 1)
	require.Equal(float64(7), rows[0].Data.(*view.LastValueData).Value)
}

func TestLogHook(t *testing.T) {
	require := require.New(t)
	m := Counter("test_log_lines", "lines logged", KeySeverity)
	defer view.Unregister(view.Find(m.Name()))

	hook := NewLogHook(m)
	require.Equal(logrus.AllLevels, hook.Levels())
	require.Nil(hook.Fire(&logrus.Entry{Level: logrus.WarnLevel}))
	require.Nil(hook.Fire(&logrus.Entry{Level: logrus.WarnLevel}))

	rows, err := view.RetrieveData(m.Name())
	require.Nil(err)
	require.Len(rows, 1)
	require.Equal("warning", rows[0].Tags[0].Value)
	require.Equal(int64(2), rows[0].Data.(*view.CountData).Value)
}
