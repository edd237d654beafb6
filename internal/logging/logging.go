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

// Package logging configures the Logrus logging library.
package logging

import (
	"strings"

	stackdriver "github.com/TV4/logrus-stackdriver-formatter"
	"github.com/sirupsen/logrus"
	"vizier.dev/pythia/internal/config"
)

// ConfigureLogging sets up the pythia logrus instance using the logging section of pythia_config.yaml
//   - log line format (text[default], json or stackdriver)
//   - min log level to include (trace, debug, info [default], warn, error, fatal, panic)
//   - include source file and line number for every event (false [default], true)
func ConfigureLogging(cfg config.View) {
	logrus.SetFormatter(newFormatter(cfg.GetString(config.LoggingFormat)))
	level := toLevel(cfg.GetString(config.LoggingLevel))
	logrus.SetLevel(level)
	if isDebugLevel(level) {
		logrus.Warn("Trace or Debug logging level configured. Not recommended for production!")
	}
	if cfg.GetBool(config.LoggingSource) {
		logrus.SetReportCaller(true)
	}
}

// IsDebugEnabled is true if the configured level logs debug events.
func IsDebugEnabled(cfg config.View) bool {
	return isDebugLevel(toLevel(cfg.GetString(config.LoggingLevel)))
}

func newFormatter(formatter string) logrus.Formatter {
	switch strings.ToLower(formatter) {
	case "stackdriver":
		return stackdriver.NewFormatter(stackdriver.WithService("pythia"))
	case "json":
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{}
}

func isDebugLevel(level logrus.Level) bool {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return true
	}
	return false
}

func toLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	}
	return logrus.InfoLevel
}
