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

// Package expbo builds exponential backoff schedules for retrying temporary
// supporter failures.
package expbo

import (
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"vizier.dev/pythia/internal/config"
)

// UnmarshalExponentialBackOff populates ExponentialBackOff structure parsing strings of format:
// "[InitInterval MaxInterval] *Multiplier ~RandomizationFactor <MaxElapsedTime"
// Durations are in seconds. Omitted words leave the field unchanged.
//
// Example: "[0.250 30] *1.5 ~0.33 <7200"
func UnmarshalExponentialBackOff(s string, b *backoff.ExponentialBackOff) error {
	for _, word := range strings.Fields(s) {
		var err error
		switch {
		case strings.HasPrefix(word, "["):
			err = parseSeconds(strings.TrimPrefix(word, "["), "InitialInterval", &b.InitialInterval)
		case strings.HasSuffix(word, "]"):
			err = parseSeconds(strings.TrimSuffix(word, "]"), "MaxInterval", &b.MaxInterval)
		case strings.HasPrefix(word, "*"):
			err = parseFloat(strings.TrimPrefix(word, "*"), "Multiplier", &b.Multiplier)
		case strings.HasPrefix(word, "~"):
			err = parseFloat(strings.TrimPrefix(word, "~"), "RandomizationFactor", &b.RandomizationFactor)
		case strings.HasPrefix(word, "<"):
			err = parseSeconds(strings.TrimPrefix(word, "<"), "MaxElapsedTime", &b.MaxElapsedTime)
		default:
			err = errors.Errorf("unexpected word %q", word)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parseFloat(s, field string, f *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(err, "cannot parse %s value", field)
	}
	*f = v
	return nil
}

func parseSeconds(s, field string, d *time.Duration) error {
	var v float64
	if err := parseFloat(s, field, &v); err != nil {
		return err
	}
	*d = time.Duration(v * float64(time.Second))
	return nil
}

// FromConfig returns the schedule described by the backoff.* keys. A
// non-empty backoff.schedule string is applied last and wins over them.
func FromConfig(cfg config.View) (*backoff.ExponentialBackOff, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.GetDuration(config.BackoffInitialInterval)
	b.RandomizationFactor = cfg.GetFloat64(config.BackoffRandFactor)
	b.Multiplier = cfg.GetFloat64(config.BackoffMultiplier)
	b.MaxInterval = cfg.GetDuration(config.BackoffMaxInterval)
	b.MaxElapsedTime = cfg.GetDuration(config.BackoffMaxElapsedTime)
	if s := cfg.GetString(config.BackoffSchedule); s != "" {
		if err := UnmarshalExponentialBackOff(s, b); err != nil {
			return nil, errors.Wrapf(err, "invalid %s %q", config.BackoffSchedule, s)
		}
	}
	b.Reset()
	return b, nil
}
