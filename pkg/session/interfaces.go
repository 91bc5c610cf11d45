package session

import (
	"context"

	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/pion/webrtc/v3"
)

// Where the envelopes for the remote peers go. Implemented by `*signaling.Client`.
type Relay interface {
	Send(envelope signaling.Envelope) error
}

// Source of the local media. Fails with `media.ErrMediaAccess` if the media is not available.
type MediaSource interface {
	Acquire(ctx context.Context, kind media.Kind) (*media.TrackSet, error)
}

// Creates a new peer connection for every session.
type ConnectionFactory func() (peer.Connection, error)

// Observer is informed about everything the user may want to see. All methods are called
// from the controller's loop, so they must not block and must not call back into the controller
// synchronously.
type Observer interface {
	OnPresenceChanged(peers []signaling.PeerID)
	OnSessionStateChanged(peerID signaling.PeerID, state peer.State)
	OnRemoteTrack(peerID signaling.PeerID, track *webrtc.TrackRemote)
}

type noopObserver struct{}

func (noopObserver) OnPresenceChanged([]signaling.PeerID)                {}
func (noopObserver) OnSessionStateChanged(signaling.PeerID, peer.State)  {}
func (noopObserver) OnRemoteTrack(signaling.PeerID, *webrtc.TrackRemote) {}
