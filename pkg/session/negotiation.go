package session

import (
	"context"
	"errors"

	"github.com/matrix-org/peercall/pkg/channel"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/matrix-org/peercall/pkg/telemetry"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// A single negotiation with a remote peer, from the first request until it's closed or failed.
type negotiation struct {
	key       sessionKey
	peer      *peer.Peer[sessionKey]
	kind      media.Kind
	logger    *logrus.Entry
	telemetry *telemetry.Telemetry

	// The last state the observer has been told about.
	reported peer.State
	// Why the session failed, if it did.
	err error

	// The offer of the remote peer, kept until the local media is there. Callee only.
	offer *webrtc.SessionDescription
	// Callers of `InitiateCall` waiting for the offer to be sent. Caller only.
	waiters []chan<- error
	// Cancels the media acquisition that is in flight, if any.
	cancelAcquire context.CancelFunc
}

func (c *Controller) newNegotiation(peerID signaling.PeerID, role peer.Role, kind media.Kind) *negotiation {
	c.generation++
	key := sessionKey{PeerID: peerID, Generation: c.generation}

	logger := c.logger.WithFields(logrus.Fields{
		"peer_id":    peerID,
		"generation": key.Generation,
	})

	session := &negotiation{
		key:    key,
		peer:   peer.NewPeer(role, channel.NewSink[sessionKey, peer.MessageContent](key, c.peerMessages), logger),
		kind:   kind,
		logger: logger.WithField("role", role),
		telemetry: telemetry.NewTelemetry(context.Background(), "negotiation",
			attribute.String("peer_id", string(peerID)),
			attribute.String("role", role.String()),
			attribute.Int64("generation", int64(key.Generation)),
			attribute.String("media", string(kind)),
		),
		reported: peer.StateIdle,
	}

	c.sessions[peerID] = session

	// The session stays idle until its local description is set.
	c.observer.OnSessionStateChanged(peerID, peer.StateIdle)

	return session
}

// Looks up the live session the key belongs to. Returns `nil` for stale keys.
func (c *Controller) sessionFor(key sessionKey) *negotiation {
	session, found := c.sessions[key.PeerID]
	if !found || session.key.Generation != key.Generation {
		return nil
	}

	return session
}

// Informs the observer about the state the session got into since the last report. Terminal
// sessions are forgotten and anyone waiting for them gets the outcome.
func (c *Controller) report(session *negotiation) {
	state := session.peer.State()
	if state == session.reported {
		return
	}

	session.telemetry.Transition(session.reported.String(), state.String())
	session.reported = state
	c.observer.OnSessionStateChanged(session.key.PeerID, state)

	if !state.IsTerminal() {
		return
	}

	if session.cancelAcquire != nil {
		session.cancelAcquire()
	}

	outcome := ErrSessionClosed
	if state == peer.StateFailed {
		outcome = session.err
		if outcome == nil {
			outcome = peer.ErrTransportFailure
		}
		session.telemetry.Fail(outcome)
	}
	session.resolve(outcome)
	session.telemetry.End()

	if current, found := c.sessions[session.key.PeerID]; found && current == session {
		delete(c.sessions, session.key.PeerID)
	}

	session.logger.WithField("state", state).Info("session is over")
}

// Fails the session with the given error.
func (c *Controller) fail(session *negotiation, err error) {
	if session.err == nil {
		session.err = err
	}
	_ = session.peer.Fail(err)
	c.report(session)
}

// Tells the callers of `InitiateCall` how it went.
func (n *negotiation) resolve(err error) {
	for _, waiter := range n.waiters {
		waiter <- err
	}
	n.waiters = nil
}

// Whether the error means that the envelope did not fit the session, as opposed
// to the session having failed while processing it.
func isViolation(err error) bool {
	return errors.Is(err, peer.ErrUnexpectedState) || errors.Is(err, ErrProtocolViolation)
}
