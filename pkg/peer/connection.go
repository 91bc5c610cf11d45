package peer

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// The part of `*webrtc.PeerConnection` that the peer relies on.
type Connection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(description webrtc.SessionDescription) error
	SetRemoteDescription(description webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	WriteRTCP(packets []rtcp.Packet) error
	OnICECandidate(handler func(*webrtc.ICECandidate))
	OnTrack(handler func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(handler func(webrtc.PeerConnectionState))
	Close() error
}

var _ Connection = (*webrtc.PeerConnection)(nil)
