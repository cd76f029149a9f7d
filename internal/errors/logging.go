package errors

import (
	"github.com/sirupsen/logrus"
)

// LogError logs an error with the structured context carried by AppError.
func LogError(logger *logrus.Logger, err error, message string, fields ...logrus.Fields) {
	entry := logger.WithError(err)

	if appErr, ok := err.(*AppError); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	for _, field := range fields {
		entry = entry.WithFields(field)
	}

	entry.Error(message)
}

// LogWarn logs a recoverable error the session continues past, such as a
// malformed stream frame that was dropped.
func LogWarn(logger *logrus.Logger, err error, message string, fields ...logrus.Fields) {
	entry := logger.WithError(err)

	if appErr, ok := err.(*AppError); ok {
		entry = entry.WithField("error_code", appErr.Code)
		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	for _, field := range fields {
		entry = entry.WithFields(field)
	}

	entry.Warn(message)
}
