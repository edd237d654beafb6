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

// Package config contains convenience functions for reading and managing viper configs.
package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

const (
	configName = "pythia_config"
	envPrefix  = "PYTHIA"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "pythia",
		"component": "config",
	})

	// OpenCensus
	cfgVarCount = stats.Int64("config/vars_total", "Number of config vars read during initialization", "1")
	// CfgVarCountView is the Open Census view for the cfgVarCount measure.
	CfgVarCountView = &view.View{
		Name:        "config/vars_total",
		Measure:     cfgVarCount,
		Description: "The number of config vars read during initialization",
		Aggregation: view.LastValue(),
	}
)

// Read looks for pythia_config.yaml in the working directory and in config/,
// and watches it for changes. A missing file is not an error: the defaults
// and PYTHIA_* environment variables still apply.
func Read() (View, error) {
	cfg := newViper()
	cfg.SetConfigName(configName)
	cfg.AddConfigPath(".")
	cfg.AddConfigPath("config")

	err := cfg.ReadInConfig()
	if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
		logger.Info("no pythia_config.yaml found, using defaults")
		recordVarCount(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot read pythia_config.yaml")
	}
	watch(cfg, nil)
	recordVarCount(cfg)
	return cfg, nil
}

// ReadFile reads the config at path and watches it for changes.
func ReadFile(path string) (View, error) {
	cfg, err := read(path, nil)
	if err != nil {
		return nil, err
	}
	recordVarCount(cfg)
	return cfg, nil
}

// NewMutable returns an empty config with every default set. It is meant for
// tests and for commands that build their config from flags.
func NewMutable() Mutable {
	return newViper()
}

func newViper() *viper.Viper {
	cfg := viper.New()
	cfg.SetConfigType("yaml")
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	setDefaults(cfg)
	return cfg
}

func read(path string, onChange func(fsnotify.Event)) (*viper.Viper, error) {
	cfg := newViper()
	cfg.SetConfigFile(path)
	if err := cfg.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %s", path)
	}
	watch(cfg, onChange)
	return cfg, nil
}

func watch(cfg *viper.Viper, onChange func(fsnotify.Event)) {
	cfg.WatchConfig()
	// Write a log when the configuration changes.
	cfg.OnConfigChange(func(event fsnotify.Event) {
		logger.WithFields(logrus.Fields{
			"filename":  event.Name,
			"operation": event.Op,
		}).Info("configuration changed")
		if onChange != nil {
			onChange(event)
		}
	})
}

func recordVarCount(cfg *viper.Viper) {
	stats.Record(context.Background(), cfgVarCount.M(int64(len(cfg.AllKeys()))))
}
