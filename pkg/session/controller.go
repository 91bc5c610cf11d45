/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/matrix-org/peercall/pkg/channel"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/presence"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoMediaSource       = errors.New("no local media source")
	ErrNegotiationConflict = errors.New("a session with this peer already exists")
	ErrNoSession           = errors.New("no session with this peer")
	ErrPeerNotPresent      = errors.New("peer is not present")
	ErrSessionClosed       = errors.New("session has been closed")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrRelayUnavailable    = errors.New("can't reach the relay")
	ErrControllerStopped   = errors.New("session controller is stopped")
)

// Identifies a single session instance. A new session with the same peer gets a new generation,
// so that messages and continuations that belong to an older session can be told apart.
type sessionKey struct {
	PeerID     signaling.PeerID
	Generation uint64
}

// Controller owns all negotiation sessions and the presence registry. Everything is processed on
// a single goroutine (the loop), the public methods only post requests to it.
type Controller struct {
	config        Config
	relay         Relay
	media         MediaSource
	newConnection ConnectionFactory
	observer      Observer
	logger        *logrus.Entry

	// Owned by the loop.
	sessions   map[signaling.PeerID]*negotiation
	presence   *presence.Registry[signaling.PeerID]
	generation uint64
	handlers   map[signaling.MessageType]envelopeHandler

	commands     chan func()
	envelopes    chan signaling.Envelope
	peerMessages chan channel.Message[sessionKey, peer.MessageContent]
	mediaResults chan mediaAcquired

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Creates a controller. `media` may be `nil`, in which case no calls can be made or accepted.
// `observer` may be `nil` too.
func NewController(
	config Config,
	relay Relay,
	media MediaSource,
	newConnection ConnectionFactory,
	observer Observer,
	logger *logrus.Entry,
) (*Controller, error) {
	config, err := config.Validate()
	if err != nil {
		return nil, err
	}

	if observer == nil {
		observer = noopObserver{}
	}

	controller := &Controller{
		config:        config,
		relay:         relay,
		media:         media,
		newConnection: newConnection,
		observer:      observer,
		logger:        logger,
		sessions:      make(map[signaling.PeerID]*negotiation),
		presence:      presence.NewRegistry[signaling.PeerID](),
		commands:      make(chan func()),
		envelopes:     make(chan signaling.Envelope),
		peerMessages:  make(chan channel.Message[sessionKey, peer.MessageContent], config.QueueSize),
		mediaResults:  make(chan mediaAcquired),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	controller.handlers = controller.envelopeHandlers()

	return controller, nil
}

// Starts the loop. Subsequent calls do nothing.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		go c.processMessages()
	})
}

// Closes all sessions and stops the loop. Does not wait for the loop to finish, see `Done`.
func (c *Controller) Stop() {
	c.Start()
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Closed once the loop has finished and all sessions are closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Calls the given peer. Returns once the offer has been handed over to the relay or once the
// session could not get that far. A cancelled `ctx` stops waiting, not the session.
func (c *Controller) InitiateCall(ctx context.Context, peerID signaling.PeerID, kind media.Kind) error {
	result := make(chan error, 1)

	err := c.submit(ctx, func() {
		if err := c.startCall(peerID, kind, result); err != nil {
			result <- err
		}
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerStopped
	}
}

// Hands an envelope received from the relay over to the loop. Blocks until the loop takes it,
// so envelopes are processed in the order they are handed over and before any later request.
func (c *Controller) HandleInboundEnvelope(envelope signaling.Envelope) {
	select {
	case c.envelopes <- envelope:
	case <-c.done:
		c.logger.WithField("type", envelope.Type).Debug("dropping envelope, controller is stopped")
	}
}

// Closes the session with the given peer.
func (c *Controller) Terminate(peerID signaling.PeerID) error {
	result := make(chan error, 1)

	if err := c.submit(context.Background(), func() {
		result <- c.terminate(peerID)
	}); err != nil {
		return err
	}

	return <-result
}

// Returns the peers that are currently online.
func (c *Controller) Presence() []signaling.PeerID {
	result := make(chan []signaling.PeerID, 1)

	if err := c.submit(context.Background(), func() {
		result <- c.presence.Peers()
	}); err != nil {
		return nil
	}

	return <-result
}

// Returns the state of the session with the given peer, if there is one.
func (c *Controller) SessionState(peerID signaling.PeerID) (peer.State, bool) {
	type snapshot struct {
		state peer.State
		found bool
	}
	result := make(chan snapshot, 1)

	if err := c.submit(context.Background(), func() {
		if session, found := c.sessions[peerID]; found {
			result <- snapshot{session.peer.State(), true}
			return
		}
		result <- snapshot{}
	}); err != nil {
		return peer.StateIdle, false
	}

	state := <-result
	return state.state, state.found
}

// Returns the states of all live sessions.
func (c *Controller) Sessions() map[signaling.PeerID]peer.State {
	result := make(chan map[signaling.PeerID]peer.State, 1)

	if err := c.submit(context.Background(), func() {
		states := make(map[signaling.PeerID]peer.State, len(c.sessions))
		for peerID, session := range c.sessions {
			states[peerID] = session.peer.State()
		}
		result <- states
	}); err != nil {
		return nil
	}

	return <-result
}

// Runs the command on the loop. The command itself is not waited for.
func (c *Controller) submit(ctx context.Context, command func()) error {
	select {
	case c.commands <- command:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerStopped
	}
}
