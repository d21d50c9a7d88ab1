package main

import (
	"time"

	"github.com/rs/zerolog"
)

// timed runs fn and logs how long it took at debug level
func timed[T any](logger zerolog.Logger, what string, fn func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		logger.Debug().Dur("elapsed", time.Since(start)).Msgf("%s completed", what)
	}()

	return fn()
}

// timedErr is timed for functions without a result
func timedErr(logger zerolog.Logger, what string, fn func() error) error {
	_, err := timed(logger, what, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
