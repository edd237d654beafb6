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

// Package runner drives a policy against an in-memory study: it asks the
// policy for trials, evaluates them and records the results.
package runner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/tag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"vizier.dev/pythia/internal/config"
	"vizier.dev/pythia/internal/telemetry"
	"vizier.dev/pythia/pkg/pythia"
	"vizier.dev/pythia/pkg/vz"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "pythia",
		"component": "runner",
	})
)

const defaultBestCount = 3

// Evaluator measures a parameter configuration.
type Evaluator func(ctx context.Context, params vz.ParameterDict) (vz.Measurement, error)

// Report summarizes a run.
type Report struct {
	Trials []*vz.Trial
	// Best holds the best completed trials, best first. It is empty for
	// studies without a single objective.
	Best []*vz.Trial
}

// Runner alternates between asking a policy for trials and evaluating them.
type Runner struct {
	Supporter *pythia.InRamPolicySupporter
	Factory   pythia.PolicyFactory
	Algorithm string
	Evaluator Evaluator

	Iterations  int
	BatchSize   int
	Parallelism int
	BestCount   int
	// Deadline bounds the whole run when positive.
	Deadline time.Duration

	// Cache keeps policies that ask to be cached. Nil disables caching.
	Cache *PolicyCache
	// NewBackOff schedules retries of temporary failures. Nil disables retries.
	NewBackOff func() backoff.BackOff
}

// NewFromConfig returns a runner configured by the runner.* and backoff.* keys.
func NewFromConfig(cfg config.View, supporter *pythia.InRamPolicySupporter, factory pythia.PolicyFactory, algorithm string, evaluator Evaluator) (*Runner, error) {
	r := &Runner{
		Supporter:   supporter,
		Factory:     factory,
		Algorithm:   algorithm,
		Evaluator:   evaluator,
		Iterations:  cfg.GetInt(config.RunnerIterations),
		BatchSize:   cfg.GetInt(config.RunnerBatchSize),
		Parallelism: cfg.GetInt(config.RunnerParallelism),
		Deadline:    cfg.GetDuration(config.RunnerDeadline),
		NewBackOff:  BackOffFromConfig(cfg),
	}
	if size := cfg.GetInt(config.RunnerPolicyCacheSize); size > 0 {
		c, err := NewPolicyCache(size)
		if err != nil {
			return nil, err
		}
		r.Cache = c
	}
	return r, nil
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Run executes the configured iterations. It stops early when the policy
// inactivates the study or returns no suggestion. On cancellation it returns
// the report so far together with the context error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.Supporter == nil || r.Factory == nil || r.Evaluator == nil {
		return nil, status.Error(codes.InvalidArgument, "runner needs a supporter, a policy factory and an evaluator")
	}
	if r.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Deadline)
		defer cancel()
	}

	log := logger.WithFields(logrus.Fields{
		"run":       xid.New().String(),
		"study":     r.Supporter.GUID(),
		"algorithm": r.Algorithm,
	})
	var supporter pythia.PolicySupporter = r.Supporter
	if r.NewBackOff != nil {
		supporter = &RetryingSupporter{Supporter: r.Supporter, NewBackOff: r.NewBackOff}
	}

	iterations := positiveOr(r.Iterations, 1)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return r.report(log), err
		}
		trials, err := r.suggest(ctx, supporter)
		if err != nil {
			if pythia.Code(err) == codes.FailedPrecondition {
				log.WithError(err).Info("policy inactivated the study")
				break
			}
			if ctx.Err() != nil {
				return r.report(log), ctx.Err()
			}
			return nil, errors.Wrapf(err, "iteration %d: suggest failed", i)
		}
		if len(trials) == 0 {
			log.WithField("iteration", i).Info("policy returned no suggestion")
			break
		}
		if err = r.evaluate(ctx, trials); err != nil {
			if ctx.Err() != nil {
				return r.report(log), ctx.Err()
			}
			return nil, errors.Wrapf(err, "iteration %d: evaluation failed", i)
		}

		n, err := supporter.GetTrials(ctx, "", vz.TrialFilter{Status: []vz.TrialStatus{vz.StatusCompleted}})
		if err == nil {
			telemetry.SetGauge(ctx, completedTrials, int64(len(n)), tag.Upsert(keyAlgorithm, r.Algorithm))
		}
		log.WithFields(logrus.Fields{
			"iteration": i,
			"trials":    len(trials),
			"completed": len(n),
		}).Info("iteration done")
	}
	return r.report(log), nil
}

func (r *Runner) report(log *logrus.Entry) *Report {
	rep := &Report{Trials: r.Supporter.Trials()}
	best, err := r.Supporter.GetBestTrials(context.Background(), "", positiveOr(r.BestCount, defaultBestCount))
	if err != nil {
		log.WithError(err).Debug("no best trials")
		return rep
	}
	rep.Best = best
	return rep
}

// suggest asks the policy for a batch. A cached policy reporting that it is
// stale is dropped and replaced by a fresh one.
func (r *Runner) suggest(ctx context.Context, supporter pythia.PolicySupporter) ([]*vz.Trial, error) {
	batch := positiveOr(r.BatchSize, 1)
	var trials []*vz.Trial
	err := retry(ctx, "suggest", r.NewBackOff, func() error {
		p, cached, err := r.policy(ctx, supporter)
		if err != nil {
			return err
		}
		trials, err = r.Supporter.SuggestTrials(ctx, p, batch)
		if cached && pythia.Code(err) == codes.Aborted {
			logger.WithError(err).Info("cached policy is stale, rebuilding it")
			r.Cache.Remove(r.Supporter.GUID(), r.Algorithm)
			if p, _, err = r.policy(ctx, supporter); err != nil {
				return err
			}
			trials, err = r.Supporter.SuggestTrials(ctx, p, batch)
		}
		return err
	})
	return trials, err
}

// policy returns the cached policy of the study, or a new one.
func (r *Runner) policy(ctx context.Context, supporter pythia.PolicySupporter) (pythia.Policy, bool, error) {
	guid := r.Supporter.GUID()
	if r.Cache != nil {
		if p, ok := r.Cache.Get(guid, r.Algorithm); ok {
			telemetry.RecordUnitMeasurement(ctx, policyCacheHits, tag.Upsert(keyAlgorithm, r.Algorithm))
			return p, true, nil
		}
	}
	sc, err := supporter.GetStudyConfig(ctx, guid)
	if err != nil {
		return nil, false, err
	}
	inner, err := r.Factory(sc.Problem(), supporter)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cannot create policy %s", r.Algorithm)
	}
	p := &InstrumentedPolicy{Policy: inner, Algorithm: r.Algorithm}
	if r.Cache != nil && p.ShouldBeCached() {
		r.Cache.Add(guid, r.Algorithm, p)
	}
	return p, false, nil
}

// evaluate measures the trials with at most Parallelism evaluations at once.
// Evaluation errors make the trial infeasible; they do not fail the run.
func (r *Runner) evaluate(ctx context.Context, trials []*vz.Trial) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(positiveOr(r.Parallelism, 1))
	for _, t := range trials {
		t := t
		g.Go(func() error {
			m, err := r.Evaluator(gctx, t.Parameters)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				telemetry.RecordUnitMeasurement(gctx, trialsEvaluated, tag.Upsert(keyAlgorithm, r.Algorithm), tag.Upsert(keyCode, pythia.Code(err).String()))
				logger.WithError(err).WithField("trial", t.ID).Warning("evaluation failed, marking the trial infeasible")
				return r.Supporter.MarkInfeasible(t.ID, err.Error())
			}
			telemetry.RecordUnitMeasurement(gctx, trialsEvaluated, tag.Upsert(keyAlgorithm, r.Algorithm), tag.Upsert(keyCode, codes.OK.String()))
			return r.Supporter.CompleteTrial(t.ID, m)
		})
	}
	return g.Wait()
}
