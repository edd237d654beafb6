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

// Package appmain contains the common application initialization code for Pythia binaries.
package appmain

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"vizier.dev/pythia/internal/config"
	"vizier.dev/pythia/internal/logging"
	"vizier.dev/pythia/internal/signal"
	"vizier.dev/pythia/internal/telemetry"
	"vizier.dev/pythia/internal/util"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "pythia",
		"component": "app.main",
	})
)

const shutdownTimeout = 5 * time.Second

// RunApplication starts the application, runs its jobs until they finish or
// a termination signal arrives, then stops it.
func RunApplication(serviceName string, bind Bind, getCfg func() (config.View, error)) error {
	ctx, cancel := signal.WithTermination(context.Background())
	defer cancel()

	a, err := StartApplication(serviceName, bind, getCfg, net.Listen)
	if err != nil {
		return err
	}
	runErr := a.Run(ctx)
	stopErr := a.Stop()
	if runErr != nil {
		return runErr
	}
	if stopErr != nil {
		return stopErr
	}
	logger.Info("Application stopped successfully.")
	return nil
}

// Bind is a function which sets up an application and registers its jobs.
type Bind func(p *Params, b *Bindings) error

// Params are inputs to starting an application.
type Params struct {
	config      config.View
	serviceName string
}

// Config provides the configuration for the application.
func (p *Params) Config() config.View {
	return p.config
}

// ServiceName is the name reported to tracing backends.
func (p *Params) ServiceName() string {
	return p.serviceName
}

// Bindings allows applications to bind various functions to the running app.
type Bindings struct {
	a      *App
	mux    *http.ServeMux
	probes []telemetry.Probe
}

// AddHealthCheckFunc allows an application to check if it is ready, and
// contribute to the overall server health.
func (b *Bindings) AddHealthCheckFunc(name string, f func(context.Context) error) {
	b.probes = append(b.probes, telemetry.Probe{Name: name, Check: f})
}

// AddJob registers work run by App.Run.
func (b *Bindings) AddJob(job func(context.Context) error) {
	b.a.jobs = append(b.a.jobs, job)
}

// TelemetryHandle adds a handler to the telemetry HTTP server.
func (b *Bindings) TelemetryHandle(pattern string, handler http.Handler) {
	b.mux.Handle(pattern, handler)
}

// TelemetryHandleFunc adds a handler function to the telemetry HTTP server.
func (b *Bindings) TelemetryHandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	b.mux.HandleFunc(pattern, handler)
}

// AddCloser registers a function run when the app stops.
func (b *Bindings) AddCloser(c func()) {
	b.a.closer.AddCloseFunc(c)
}

// AddCloserErr registers a function run when the app stops.
func (b *Bindings) AddCloserErr(c func() error) {
	b.a.closer.AddCloseWithErrorFunc(c)
}

// App is a started application.
type App struct {
	closer *util.MultiClose
	jobs   []func(context.Context) error
	addr   string
}

// StartApplication provides more control over an application than
// RunApplication.  It is for running in memory tests against your app.
func StartApplication(serviceName string, bind Bind, getCfg func() (config.View, error), listen func(network, address string) (net.Listener, error)) (*App, error) {
	a := &App{closer: util.NewMultiClose()}

	cfg, err := getCfg()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read configuration")
	}
	logging.ConfigureLogging(cfg)

	p := &Params{
		config:      cfg,
		serviceName: serviceName,
	}
	b := &Bindings{
		a:   a,
		mux: http.NewServeMux(),
	}

	if err = telemetry.Setup(p, b); err != nil {
		a.Stop()
		return nil, err
	}
	if err = bind(p, b); err != nil {
		a.Stop()
		return nil, err
	}
	if err = a.serveTelemetry(cfg, b, listen); err != nil {
		a.Stop()
		return nil, err
	}
	return a, nil
}

func (a *App) serveTelemetry(cfg config.View, b *Bindings, listen func(network, address string) (net.Listener, error)) error {
	port := cfg.GetInt(config.TelemetryHTTPPort)
	if port <= 0 {
		logger.Info("telemetry HTTP server: Disabled")
		return nil
	}
	l, err := listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "cannot listen on telemetry port %d", port)
	}
	b.mux.Handle(telemetry.HealthCheckEndpoint, telemetry.NewHealthCheck(b.probes...))
	s := &http.Server{Handler: b.mux}
	a.addr = l.Addr().String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Serve(l); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("telemetry HTTP server failed")
		}
	}()
	a.closer.AddCloseWithErrorFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.Shutdown(ctx)
		<-done
		return err
	})
	logger.WithField("address", a.addr).Info("telemetry HTTP server: ENABLED")
	return nil
}

// Addr is the address of the telemetry HTTP server, empty when it is disabled.
func (a *App) Addr() string {
	return a.addr
}

// Run runs the registered jobs concurrently and returns the first error. Jobs
// see ctx. Without jobs it waits for ctx to be done.
func (a *App) Run(ctx context.Context) error {
	if len(a.jobs) == 0 {
		<-ctx.Done()
		return nil
	}
	fs := make([]func() error, 0, len(a.jobs))
	for _, job := range a.jobs {
		job := job
		fs = append(fs, func() error { return job(ctx) })
	}
	return util.WaitOnErrors(logger, fs...)()
}

// Stop runs the closers in reverse order: Since dependencies are created
// before their dependants, this helps ensure no dependencies are closed
// unexpectedly.
func (a *App) Stop() error {
	return a.closer.Close()
}
