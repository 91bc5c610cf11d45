package session

import (
	"errors"
	"fmt"

	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

type envelopeHandler func(envelope signaling.Envelope) error

func (c *Controller) envelopeHandlers() map[signaling.MessageType]envelopeHandler {
	return map[signaling.MessageType]envelopeHandler{
		signaling.TypeUserList:     c.onUserList,
		signaling.TypeFullList:     c.onUserList,
		signaling.TypeAddUser:      c.onAddUser,
		signaling.TypeRemoveUser:   c.onRemoveUser,
		signaling.TypeCallUser:     c.onCallUser,
		signaling.TypeAnswerUser:   c.onAnswerUser,
		signaling.TypeNewCandidate: c.onNewCandidate,
	}
}

// Process an envelope received from the relay. Envelopes that can't be applied are dropped.
func (c *Controller) processEnvelope(envelope signaling.Envelope) {
	handler, found := c.handlers[envelope.Type]
	if !found {
		c.logger.WithField("type", envelope.Type).Warn("dropping envelope of unknown type")
		return
	}

	err := handler(envelope)
	if err == nil {
		return
	}

	logger := c.logger.WithError(err).WithField("type", envelope.Type)
	switch {
	case isViolation(err):
		logger.Warn("dropping envelope")
	case errors.Is(err, ErrNegotiationConflict), errors.Is(err, ErrNoMediaSource):
		logger.Warn("rejecting call")
	default:
		logger.Error("failed to process envelope")
	}
}

func decode[T any](envelope signaling.Envelope) (T, error) {
	var payload T
	if err := envelope.Decode(&payload); err != nil {
		return payload, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}

	return payload, nil
}

// Routed envelopes must tell who they come from.
func sender(route signaling.Route) (signaling.PeerID, error) {
	if route.From == "" {
		return "", fmt.Errorf("%w: no sender", ErrProtocolViolation)
	}

	return route.From, nil
}

func (c *Controller) onUserList(envelope signaling.Envelope) error {
	list, err := decode[signaling.UserList](envelope)
	if err != nil {
		return err
	}

	added, removed := c.presence.Replace(list.Peers)
	c.logger.WithFields(logrus.Fields{"added": added, "removed": removed}).Info("presence replaced")

	for _, peerID := range removed {
		c.terminateIfExists(peerID)
	}

	c.observer.OnPresenceChanged(c.presence.Peers())
	return nil
}

func (c *Controller) onAddUser(envelope signaling.Envelope) error {
	change, err := decode[signaling.UserChange](envelope)
	if err != nil {
		return err
	}

	if change.PeerID == "" {
		return fmt.Errorf("%w: no peer", ErrProtocolViolation)
	}

	if !c.presence.Add(change.PeerID) {
		c.logger.WithField("peer_id", change.PeerID).Debug("peer is already present")
		return nil
	}

	c.logger.WithField("peer_id", change.PeerID).Info("peer joined")
	c.observer.OnPresenceChanged(c.presence.Peers())
	return nil
}

func (c *Controller) onRemoveUser(envelope signaling.Envelope) error {
	change, err := decode[signaling.UserChange](envelope)
	if err != nil {
		return err
	}

	c.terminateIfExists(change.PeerID)

	if !c.presence.Remove(change.PeerID) {
		c.logger.WithField("peer_id", change.PeerID).Debug("peer is already gone")
		return nil
	}

	c.logger.WithField("peer_id", change.PeerID).Info("peer left")
	c.observer.OnPresenceChanged(c.presence.Peers())
	return nil
}

// The first offer from a peer starts a session in which we answer.
func (c *Controller) onCallUser(envelope signaling.Envelope) error {
	call, err := decode[signaling.CallUser](envelope)
	if err != nil {
		return err
	}

	peerID, err := sender(call.Route)
	if err != nil {
		return err
	}

	if call.Offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: call with %q instead of an offer", ErrProtocolViolation, call.Offer.Type)
	}

	if existing, found := c.sessions[peerID]; found {
		return fmt.Errorf("%w: %s is %s", ErrNegotiationConflict, peerID, existing.peer.State())
	}

	if c.media == nil {
		return ErrNoMediaSource
	}

	session := c.newNegotiation(peerID, peer.RoleCallee, c.config.CalleeMedia)
	session.offer = &call.Offer
	session.logger.Info("incoming call")

	c.acquireMedia(session)
	return nil
}

func (c *Controller) onAnswerUser(envelope signaling.Envelope) error {
	answer, err := decode[signaling.AnswerUser](envelope)
	if err != nil {
		return err
	}

	session, err := c.routedSession(answer.Route)
	if err != nil {
		return err
	}

	if err := session.peer.ProcessSDPAnswer(answer.Answer); err != nil {
		return c.processPeerError(session, err)
	}

	c.report(session)
	return nil
}

func (c *Controller) onNewCandidate(envelope signaling.Envelope) error {
	candidate, err := decode[signaling.NewCandidate](envelope)
	if err != nil {
		return err
	}

	session, err := c.routedSession(candidate.Route)
	if err != nil {
		return err
	}

	if err := session.peer.ProcessRemoteCandidate(candidate.Candidate); err != nil {
		return c.processPeerError(session, err)
	}

	return nil
}

func (c *Controller) routedSession(route signaling.Route) (*negotiation, error) {
	peerID, err := sender(route)
	if err != nil {
		return nil, err
	}

	session, found := c.sessions[peerID]
	if !found {
		return nil, fmt.Errorf("%w: %w with %s", ErrProtocolViolation, ErrNoSession, peerID)
	}

	return session, nil
}

// Envelopes that don't fit leave the session untouched, anything else has made it fail.
func (c *Controller) processPeerError(session *negotiation, err error) error {
	if !isViolation(err) {
		c.fail(session, err)
	}

	return err
}

func (c *Controller) terminateIfExists(peerID signaling.PeerID) {
	if _, found := c.sessions[peerID]; found {
		_ = c.terminate(peerID)
	}
}
