package main

import (
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func backoffForTests() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}
