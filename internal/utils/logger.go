// Package utils holds small cross-cutting contracts shared by packages that
// would otherwise need to import concrete implementations (and risk import
// cycles with pkg/logger, internal/llm, pkg/sandbox, etc.).
package utils

import "github.com/sirupsen/logrus"

// ExtendedLogger is the logging contract every component in this module
// depends on. pkg/logger.Logger is the production implementation; tests can
// satisfy it with any logrus-backed stand-in.
type ExtendedLogger interface {
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
	Info(args ...interface{})
	Error(args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	WithField(key string, value interface{}) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WithError(err error) *logrus.Entry
	Close() error
	IsInitialized() bool
}
