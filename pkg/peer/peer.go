package peer

import (
	"errors"
	"fmt"

	"github.com/matrix-org/peercall/pkg/channel"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnexpectedState          = errors.New("unexpected negotiation state")
	ErrTransportFailure         = errors.New("transport failure")
	ErrCantAddTrack             = errors.New("can't add local track")
	ErrCantCreateOffer          = errors.New("can't create offer")
	ErrCantCreateAnswer         = errors.New("can't create answer")
	ErrCantSetLocalDescription  = errors.New("can't set local description")
	ErrCantSetRemoteDescription = errors.New("can't set remote description")
	ErrCantApplyRemoteCandidate = errors.New("can't apply remote ICE candidate")
	ErrCantRequestKeyFrame      = errors.New("can't request key frame")
	ErrCantClosePeerConnection  = errors.New("can't close peer connection")
)

// A wrapped representation of the negotiation with a single remote peer.
// The owner drives the negotiation via public methods, the peer informs the owner about
// things happening inside the peer connection by posting messages to the sink.
// The peer is not safe for concurrent use: it belongs to the goroutine that owns the sink's consumer end.
type Peer[ID comparable] struct {
	logger *logrus.Entry
	sink   *channel.SinkWithSender[ID, MessageContent]

	role       Role
	state      State
	connection Connection
	media      *media.TrackSet
	candidates CandidateBuffer
}

func NewPeer[ID comparable](
	role Role,
	sink *channel.SinkWithSender[ID, MessageContent],
	logger *logrus.Entry,
) *Peer[ID] {
	return &Peer[ID]{
		logger: logger.WithField("role", role),
		sink:   sink,
		role:   role,
		state:  StateIdle,
	}
}

func (p *Peer[ID]) Role() Role {
	return p.role
}

func (p *Peer[ID]) State() State {
	return p.state
}

// Attaches local media and a fresh peer connection, creates an offer and applies it locally.
// The peer is offering once the offer is set. The returned offer is meant to be sent to the
// remote peer, followed by `OfferSent`.
func (p *Peer[ID]) Offer(connection Connection, tracks *media.TrackSet) (webrtc.SessionDescription, error) {
	if err := p.expectDetached(RoleCaller, StateIdle); err != nil {
		return webrtc.SessionDescription{}, err
	}

	p.attach(connection, tracks)

	if err := p.addLocalTracks(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	offer, err := p.connection.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, p.Fail(fmt.Errorf("%w: %v", ErrCantCreateOffer, err))
	}

	if err := p.connection.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, p.Fail(fmt.Errorf("%w: %v", ErrCantSetLocalDescription, err))
	}

	p.transition(StateOffering)
	return offer, nil
}

// Marks the offer as delivered to the relay.
func (p *Peer[ID]) OfferSent() error {
	if err := p.expect(RoleCaller, StateOffering); err != nil {
		return err
	}

	p.transition(StateAwaitingAnswer)
	return nil
}

// Applies the answer of the remote peer along with the candidates that arrived before it.
func (p *Peer[ID]) ProcessSDPAnswer(answer webrtc.SessionDescription) error {
	if err := p.expect(RoleCaller, StateAwaitingAnswer); err != nil {
		return err
	}

	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: expected an answer, got %s", ErrUnexpectedState, answer.Type)
	}

	if err := p.connection.SetRemoteDescription(answer); err != nil {
		return p.Fail(fmt.Errorf("%w: %v", ErrCantSetRemoteDescription, err))
	}

	if err := p.drainCandidates(); err != nil {
		return err
	}

	p.transition(StateConnected)
	return nil
}

// Attaches local media and a fresh peer connection, applies the remote offer and creates an answer.
// The peer is answering once the answer is set. The returned answer is meant to be sent to
// the remote peer, followed by `AnswerSent`.
func (p *Peer[ID]) Answer(
	connection Connection,
	tracks *media.TrackSet,
	offer webrtc.SessionDescription,
) (webrtc.SessionDescription, error) {
	if err := p.expectDetached(RoleCallee, StateIdle); err != nil {
		return webrtc.SessionDescription{}, err
	}

	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: expected an offer, got %s", ErrUnexpectedState, offer.Type)
	}

	p.attach(connection, tracks)

	if err := p.addLocalTracks(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	if err := p.connection.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, p.Fail(fmt.Errorf("%w: %v", ErrCantSetRemoteDescription, err))
	}

	if err := p.drainCandidates(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := p.connection.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, p.Fail(fmt.Errorf("%w: %v", ErrCantCreateAnswer, err))
	}

	if err := p.connection.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, p.Fail(fmt.Errorf("%w: %v", ErrCantSetLocalDescription, err))
	}

	p.transition(StateAnswering)
	return answer, nil
}

// Marks the answer as delivered to the relay.
func (p *Peer[ID]) AnswerSent() error {
	if err := p.expect(RoleCallee, StateAnswering); err != nil {
		return err
	}

	p.transition(StateConnected)
	return nil
}

// Applies a remote candidate, or buffers it if the remote description is not there yet.
// A `nil` candidate is the remote end-of-candidates marker and is not applied.
func (p *Peer[ID]) ProcessRemoteCandidate(candidate *webrtc.ICECandidateInit) error {
	if p.state.IsTerminal() {
		return fmt.Errorf("%w: candidate in %s", ErrUnexpectedState, p.state)
	}

	if candidate == nil {
		p.logger.Debug("remote ICE candidate gathering finished")
		return nil
	}

	if !p.candidates.Drained() {
		p.logger.WithField("buffered", p.candidates.Len()+1).Debug("buffering remote ICE candidate")
		p.candidates.Enqueue(*candidate)
		return nil
	}

	if err := p.connection.AddICECandidate(*candidate); err != nil {
		return p.Fail(fmt.Errorf("%w: %v", ErrCantApplyRemoteCandidate, err))
	}

	return nil
}

// Drives the peer into the failed state and releases all resources. Returns the given error.
func (p *Peer[ID]) Fail(err error) error {
	if p.state.IsTerminal() {
		return err
	}

	p.logger.WithError(err).Warn("negotiation failed")
	p.transition(StateFailed)
	p.release()

	return err
}

// Drives the peer into the closed state and releases all resources.
func (p *Peer[ID]) Close() {
	if p.state.IsTerminal() {
		return
	}

	p.transition(StateClosed)
	p.release()
}

func (p *Peer[ID]) expect(role Role, state State) error {
	if p.role != role || p.state != state {
		return fmt.Errorf("%w: %s in %s, expected %s in %s", ErrUnexpectedState, p.role, p.state, role, state)
	}

	return nil
}

// A peer connection is attached only once per peer.
func (p *Peer[ID]) expectDetached(role Role, state State) error {
	if err := p.expect(role, state); err != nil {
		return err
	}

	if p.connection != nil {
		return fmt.Errorf("%w: peer connection already attached", ErrUnexpectedState)
	}

	return nil
}

func (p *Peer[ID]) transition(state State) {
	p.logger.WithFields(logrus.Fields{"from": p.state, "to": state}).Info("negotiation state changed")
	p.state = state
}

func (p *Peer[ID]) attach(connection Connection, tracks *media.TrackSet) {
	p.connection = connection
	p.media = tracks

	connection.OnICECandidate(p.onICECandidateGathered)
	connection.OnConnectionStateChange(p.onConnectionStateChanged)
	connection.OnTrack(p.onRtpTrackReceived)
}

func (p *Peer[ID]) addLocalTracks() error {
	if p.media == nil {
		return nil
	}

	for _, track := range p.media.Tracks {
		sender, err := p.connection.AddTrack(track)
		if err != nil {
			return p.Fail(fmt.Errorf("%w: %s: %v", ErrCantAddTrack, track.ID(), err))
		}

		if sender != nil {
			go p.readRTCP(sender)
		}
	}

	return nil
}

func (p *Peer[ID]) drainCandidates() error {
	if count := p.candidates.Len(); count > 0 {
		p.logger.WithField("count", count).Debug("applying buffered remote ICE candidates")
	}

	err := p.candidates.Drain(p.connection.AddICECandidate)
	if err != nil {
		return p.Fail(fmt.Errorf("%w: %v", ErrCantApplyRemoteCandidate, err))
	}

	return nil
}

// The sink is sealed before the connection is closed, so that callbacks which are blocked
// on the sink can return while the connection waits for them.
func (p *Peer[ID]) release() {
	p.sink.Seal()

	if p.connection != nil {
		if err := p.connection.Close(); err != nil {
			p.logger.WithError(fmt.Errorf("%w: %v", ErrCantClosePeerConnection, err)).Error("failed to close peer connection")
		}
	}

	if p.media != nil {
		p.media.Stop()
	}
}
