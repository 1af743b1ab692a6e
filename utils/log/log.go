// Copyright (c) 2016-2019 Uber Technologies, Inc.
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

// Package log provides a process-global zap sugared logger. Components which
// need contextual logging should accept a *zap.SugaredLogger in their
// constructors; everything else may use the package-level functions.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.SugaredLogger
)

// Default returns a default configuration for the global logger.
func Default() zap.Config {
	return zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			NameKey:        "logger_name",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "caller",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths: []string{"stderr"},
	}
}

// ConfigureLogger builds the global logger from config and installs it.
func ConfigureLogger(config zap.Config) *zap.SugaredLogger {
	l, err := config.Build()
	if err != nil {
		panic(err)
	}
	s := l.Sugar()
	SetGlobalLogger(s)
	return s
}

// SetGlobalLogger installs l as the global logger.
func SetGlobalLogger(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()

	logger = l
}

// GetLogger returns the global logger, lazily installing a no-op one if
// none has been configured.
func GetLogger() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = ConfigureNop()
	}
	return logger
}

// ConfigureNop returns a no-op logger. Useful for tests.
func ConfigureNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Debug logs at debug level.
func Debug(args ...interface{}) { GetLogger().Debug(args...) }

// Info logs at info level.
func Info(args ...interface{}) { GetLogger().Info(args...) }

// Warn logs at warn level.
func Warn(args ...interface{}) { GetLogger().Warn(args...) }

// Error logs at error level.
func Error(args ...interface{}) { GetLogger().Error(args...) }

// Fatal logs at fatal level, then exits.
func Fatal(args ...interface{}) { GetLogger().Fatal(args...) }

// Debugf logs at debug level with formatting.
func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }

// Infof logs at info level with formatting.
func Infof(format string, args ...interface{}) { GetLogger().Infof(format, args...) }

// Warnf logs at warn level with formatting.
func Warnf(format string, args ...interface{}) { GetLogger().Warnf(format, args...) }

// Errorf logs at error level with formatting.
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }

// Fatalf logs at fatal level with formatting, then exits.
func Fatalf(format string, args ...interface{}) { GetLogger().Fatalf(format, args...) }

// With returns the global logger decorated with the given keys and values.
func With(args ...interface{}) *zap.SugaredLogger { return GetLogger().With(args...) }
