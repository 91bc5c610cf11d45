package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/matrix-org/peercall/pkg/channel"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/pion/webrtc/v3"
)

// Result of the media acquisition that ran outside of the loop.
type mediaAcquired struct {
	key    sessionKey
	tracks *media.TrackSet
	err    error
}

// Listen on messages from incoming channels and process them.
// This is essentially the main loop of the controller.
// If this function returns, all sessions are closed.
func (c *Controller) processMessages() {
	defer close(c.done)

	for {
		select {
		case command := <-c.commands:
			command()
		case envelope := <-c.envelopes:
			c.processEnvelope(envelope)
		case message := <-c.peerMessages:
			c.processPeerMessage(message)
		case result := <-c.mediaResults:
			c.processMediaAcquired(result)
		case <-c.stop:
			c.closeAll()
			return
		}
	}
}

func (c *Controller) closeAll() {
	c.logger.WithField("sessions", len(c.sessions)).Info("closing all sessions")

	for _, session := range c.sessions {
		session.peer.Close()
		c.report(session)
	}
}

// Process a message from a peer connection.
func (c *Controller) processPeerMessage(message channel.Message[sessionKey, peer.MessageContent]) {
	session := c.sessionFor(message.Sender)
	if session == nil {
		c.logger.WithField("peer_id", message.Sender.PeerID).Debugf("dropping %T from a session that is gone", message.Content)
		return
	}

	// Since Go does not support ADTs, we have to use a switch statement to
	// determine the actual type of the message.
	switch msg := message.Content.(type) {
	case peer.NewICECandidate:
		c.processNewICECandidateMessage(session, msg)
	case peer.ConnectionStateChanged:
		c.processConnectionStateChangedMessage(session, msg)
	case peer.RemoteTrackReceived:
		session.logger.WithField("track_id", msg.Track.ID()).Info("remote track received")
		session.telemetry.AddEvent("remote track received")
		c.observer.OnRemoteTrack(session.key.PeerID, msg.Track)
	default:
		session.logger.Errorf("unknown message type: %T", msg)
	}
}

// Local candidates are forwarded right away, the end of gathering too.
func (c *Controller) processNewICECandidateMessage(session *negotiation, msg peer.NewICECandidate) {
	envelope, err := signaling.NewCandidateFor(session.key.PeerID, msg.Candidate)
	if err == nil {
		err = c.relay.Send(envelope)
	}

	if err != nil {
		session.logger.WithError(err).Warn("failed to send local ICE candidate")
	}
}

func (c *Controller) processConnectionStateChangedMessage(session *negotiation, msg peer.ConnectionStateChanged) {
	switch msg.State {
	case webrtc.PeerConnectionStateConnected:
		session.logger.Info("peer connection established")
		session.telemetry.AddEvent("peer connection established")
	case webrtc.PeerConnectionStateDisconnected:
		session.logger.Warn("peer connection interrupted")
		session.telemetry.AddEvent("peer connection interrupted")
	case webrtc.PeerConnectionStateFailed:
		c.fail(session, peer.ErrTransportFailure)
	}
}

// Starts a caller session. Runs on the loop.
func (c *Controller) startCall(peerID signaling.PeerID, kind media.Kind, result chan<- error) error {
	if c.media == nil {
		return ErrNoMediaSource
	}

	if existing, found := c.sessions[peerID]; found {
		return fmt.Errorf("%w: %s is %s", ErrNegotiationConflict, peerID, existing.peer.State())
	}

	if !c.presence.Contains(peerID) {
		return fmt.Errorf("%w: %s", ErrPeerNotPresent, peerID)
	}

	if kind == "" {
		kind = c.config.CallerMedia
	}

	session := c.newNegotiation(peerID, peer.RoleCaller, kind)
	session.waiters = append(session.waiters, result)
	session.logger.Info("calling")

	c.acquireMedia(session)
	return nil
}

// Acquires the local media outside of the loop. The result comes back via `mediaResults`.
func (c *Controller) acquireMedia(session *negotiation) {
	ctx, cancel := context.WithCancel(session.telemetry.Context())
	session.cancelAcquire = cancel

	span := session.telemetry.CreateChild("acquire media")
	key, kind := session.key, session.kind

	go func() {
		tracks, err := c.media.Acquire(ctx, kind)
		if err != nil {
			span.Fail(err)
		}
		span.End()

		select {
		case c.mediaResults <- mediaAcquired{key, tracks, err}:
		case <-c.done:
			if tracks != nil {
				tracks.Stop()
			}
		}
	}()
}

// Continues the negotiation once the local media is there. If the session is gone or has moved on
// in the meantime, the media is released and nothing else happens.
func (c *Controller) processMediaAcquired(result mediaAcquired) {
	session := c.sessionFor(result.key)
	if session == nil || session.peer.State().IsTerminal() {
		c.logger.WithField("peer_id", result.key.PeerID).Debug("releasing media of a session that is gone")
		if result.tracks != nil {
			result.tracks.Stop()
		}
		return
	}

	session.cancelAcquire()
	session.cancelAcquire = nil

	if result.err != nil {
		err := result.err
		if !errors.Is(err, media.ErrMediaAccess) {
			err = fmt.Errorf("%w: %v", media.ErrMediaAccess, err)
		}
		c.fail(session, err)
		return
	}

	connection, err := c.newConnection()
	if err != nil {
		result.tracks.Stop()
		c.fail(session, fmt.Errorf("%w: can't create peer connection: %v", peer.ErrTransportFailure, err))
		return
	}

	switch session.peer.Role() {
	case peer.RoleCaller:
		c.sendOffer(session, connection, result.tracks)
	case peer.RoleCallee:
		c.sendAnswer(session, connection, result.tracks)
	}
}

func (c *Controller) sendOffer(session *negotiation, connection peer.Connection, tracks *media.TrackSet) {
	offer, err := session.peer.Offer(connection, tracks)
	if err != nil {
		c.failBeforeAttach(session, connection, tracks, err)
		return
	}
	c.report(session)

	envelope, err := signaling.NewCallUser(session.key.PeerID, offer)
	if err == nil {
		err = c.relay.Send(envelope)
	}
	if err != nil {
		c.fail(session, fmt.Errorf("%w: %v", ErrRelayUnavailable, err))
		return
	}

	if err := session.peer.OfferSent(); err != nil {
		c.fail(session, err)
		return
	}
	c.report(session)

	session.resolve(nil)
}

func (c *Controller) sendAnswer(session *negotiation, connection peer.Connection, tracks *media.TrackSet) {
	answer, err := session.peer.Answer(connection, tracks, *session.offer)
	if err != nil {
		c.failBeforeAttach(session, connection, tracks, err)
		return
	}
	session.offer = nil
	c.report(session)

	envelope, err := signaling.NewAnswerUser(session.key.PeerID, answer)
	if err == nil {
		err = c.relay.Send(envelope)
	}
	if err != nil {
		c.fail(session, fmt.Errorf("%w: %v", ErrRelayUnavailable, err))
		return
	}

	if err := session.peer.AnswerSent(); err != nil {
		c.fail(session, err)
		return
	}
	c.report(session)
}

// The peer rejects the connection and the media without taking them over if it's not in
// the state to use them, so they are released here.
func (c *Controller) failBeforeAttach(session *negotiation, connection peer.Connection, tracks *media.TrackSet, err error) {
	if errors.Is(err, peer.ErrUnexpectedState) {
		if closeErr := connection.Close(); closeErr != nil {
			session.logger.WithError(closeErr).Warn("failed to close unused peer connection")
		}
		tracks.Stop()
	}

	c.fail(session, err)
}

// Closes the session with the given peer. Runs on the loop.
func (c *Controller) terminate(peerID signaling.PeerID) error {
	session, found := c.sessions[peerID]
	if !found {
		return fmt.Errorf("%w: %s", ErrNoSession, peerID)
	}

	session.logger.Info("terminating session")
	session.peer.Close()
	c.report(session)

	return nil
}
