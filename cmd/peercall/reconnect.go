package main

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/sirupsen/logrus"
)

// What `keepConnected` needs from `*signaling.Client`.
type relayConnection interface {
	Connect(ctx context.Context) error
	OnDisconnect(handler func(error))
}

// Keeps the relay connection alive until the context is done, reconnecting with an
// exponential backoff whenever the connection is lost. Sessions survive reconnects.
func keepConnected(ctx context.Context, relay relayConnection, logger *logrus.Entry) {
	disconnected := make(chan error, 1)
	relay.OnDisconnect(func(err error) {
		select {
		case disconnected <- err:
		default:
		}
	})

	for {
		if err := connect(ctx, relay, newBackoff(), logger); err != nil {
			logger.WithError(err).Info("gave up connecting to the relay")
			return
		}

		select {
		case <-ctx.Done():
			return
		case err := <-disconnected:
			if err == nil {
				return
			}
			logger.WithError(err).Warn("lost the relay connection, reconnecting")
		}
	}
}

func connect(ctx context.Context, relay relayConnection, policy backoff.BackOff, logger *logrus.Entry) error {
	operation := func() error {
		err := relay.Connect(ctx)
		if errors.Is(err, signaling.ErrAlreadyConnected) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.WithError(err).WithField("retry_in", next).Warn("failed to connect to the relay")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
}

func newBackoff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	return policy
}
