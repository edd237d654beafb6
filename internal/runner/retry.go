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
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.opencensus.io/tag"
	"vizier.dev/pythia/internal/config"
	"vizier.dev/pythia/internal/expbo"
	"vizier.dev/pythia/internal/telemetry"
	"vizier.dev/pythia/pkg/pythia"
	"vizier.dev/pythia/pkg/vz"
)

// BackOffFromConfig returns a function creating fresh retry schedules from the
// backoff.* keys. The schedule is rebuilt only when those keys change.
func BackOffFromConfig(cfg config.View) func() backoff.BackOff {
	c := config.NewCacher(cfg, func(cfg config.View) (*backoff.ExponentialBackOff, func(), error) {
		b, err := expbo.FromConfig(cfg)
		return b, nil, err
	})
	return func() backoff.BackOff {
		proto, err := c.Get()
		if err != nil {
			logger.WithError(err).Warning("invalid backoff configuration, using the library defaults")
			return backoff.NewExponentialBackOff()
		}
		b := *proto
		b.Reset()
		return &b
	}
}

// retry calls f until it succeeds, returns an error that is not temporary, or
// the schedule gives up.
func retry(ctx context.Context, operation string, newBackOff func() backoff.BackOff, f func() error) error {
	if newBackOff == nil {
		return f()
	}
	op := func() error {
		err := f()
		if err != nil && !pythia.IsTemporary(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		logger.WithError(err).WithField("operation", operation).Debugf("temporary failure, retrying in %v", d)
		telemetry.RecordUnitMeasurement(ctx, supporterRetries, tag.Upsert(keyOperation, operation))
	}
	return backoff.RetryNotify(op, backoff.WithContext(newBackOff(), ctx), notify)
}

// RetryingSupporter retries the temporary failures of the wrapped supporter.
type RetryingSupporter struct {
	Supporter  pythia.PolicySupporter
	NewBackOff func() backoff.BackOff
}

var _ pythia.PolicySupporter = (*RetryingSupporter)(nil)

// GetStudyConfig implements pythia.PolicySupporter.
func (s *RetryingSupporter) GetStudyConfig(ctx context.Context, guid string) (*vz.StudyConfig, error) {
	var sc *vz.StudyConfig
	err := retry(ctx, "get_study_config", s.NewBackOff, func() (err error) {
		sc, err = s.Supporter.GetStudyConfig(ctx, guid)
		return err
	})
	return sc, err
}

// GetTrials implements pythia.PolicySupporter.
func (s *RetryingSupporter) GetTrials(ctx context.Context, guid string, filter vz.TrialFilter) ([]*vz.Trial, error) {
	var trials []*vz.Trial
	err := retry(ctx, "get_trials", s.NewBackOff, func() (err error) {
		trials, err = s.Supporter.GetTrials(ctx, guid, filter)
		return err
	})
	return trials, err
}

// GetBestTrials implements pythia.PolicySupporter.
func (s *RetryingSupporter) GetBestTrials(ctx context.Context, guid string, count int) ([]*vz.Trial, error) {
	var trials []*vz.Trial
	err := retry(ctx, "get_best_trials", s.NewBackOff, func() (err error) {
		trials, err = s.Supporter.GetBestTrials(ctx, guid, count)
		return err
	})
	return trials, err
}

// CheckCancelled implements pythia.PolicySupporter. It is never retried.
func (s *RetryingSupporter) CheckCancelled(ctx context.Context, note string) error {
	return s.Supporter.CheckCancelled(ctx, note)
}

// TimeRemaining implements pythia.PolicySupporter.
func (s *RetryingSupporter) TimeRemaining(ctx context.Context) time.Duration {
	return s.Supporter.TimeRemaining(ctx)
}

// SendMetadata implements pythia.PolicySupporter.
func (s *RetryingSupporter) SendMetadata(ctx context.Context, delta vz.MetadataDelta) error {
	return retry(ctx, "send_metadata", s.NewBackOff, func() error {
		return s.Supporter.SendMetadata(ctx, delta)
	})
}
