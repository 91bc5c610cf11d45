// Package peertest provides an in-memory peer connection for tests.
package peertest

import (
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// Connection records what has been done to it and lets tests trigger the callbacks
// a real peer connection would trigger.
type Connection struct {
	mutex sync.Mutex

	// Errors returned by the corresponding methods, if set.
	CreateOfferErr          error
	CreateAnswerErr         error
	SetLocalDescriptionErr  error
	SetRemoteDescriptionErr error
	AddICECandidateErr      error
	AddTrackErr             error

	local            *webrtc.SessionDescription
	remote           *webrtc.SessionDescription
	remoteCandidates []webrtc.ICECandidateInit
	tracks           []webrtc.TrackLocal
	rtcp             []rtcp.Packet
	closed           bool

	onICECandidate          func(*webrtc.ICECandidate)
	onTrack                 func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onConnectionStateChange func(webrtc.PeerConnectionState)
}

func NewConnection() *Connection {
	return &Connection{}
}

func (c *Connection) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	if c.CreateOfferErr != nil {
		return webrtc.SessionDescription{}, c.CreateOfferErr
	}

	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (c *Connection) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	if c.CreateAnswerErr != nil {
		return webrtc.SessionDescription{}, c.CreateAnswerErr
	}

	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (c *Connection) SetLocalDescription(description webrtc.SessionDescription) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.SetLocalDescriptionErr != nil {
		return c.SetLocalDescriptionErr
	}

	c.local = &description
	return nil
}

func (c *Connection) SetRemoteDescription(description webrtc.SessionDescription) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.SetRemoteDescriptionErr != nil {
		return c.SetRemoteDescriptionErr
	}

	c.remote = &description
	return nil
}

func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.AddICECandidateErr != nil {
		return c.AddICECandidateErr
	}

	c.remoteCandidates = append(c.remoteCandidates, candidate)
	return nil
}

func (c *Connection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.AddTrackErr != nil {
		return nil, c.AddTrackErr
	}

	c.tracks = append(c.tracks, track)
	return nil, nil
}

func (c *Connection) WriteRTCP(packets []rtcp.Packet) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.rtcp = append(c.rtcp, packets...)
	return nil
}

func (c *Connection) OnICECandidate(handler func(*webrtc.ICECandidate)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.onICECandidate = handler
}

func (c *Connection) OnTrack(handler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.onTrack = handler
}

func (c *Connection) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.onConnectionStateChange = handler
}

func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.closed = true
	return nil
}

// Simulates a gathered local candidate. `nil` simulates the end of gathering.
func (c *Connection) GatherCandidate(candidate *webrtc.ICECandidate) {
	c.mutex.Lock()
	handler := c.onICECandidate
	c.mutex.Unlock()

	if handler != nil {
		handler(candidate)
	}
}

func (c *Connection) ChangeState(state webrtc.PeerConnectionState) {
	c.mutex.Lock()
	handler := c.onConnectionStateChange
	c.mutex.Unlock()

	if handler != nil {
		handler(state)
	}
}

func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.local
}

func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.remote
}

func (c *Connection) RemoteCandidates() []webrtc.ICECandidateInit {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]webrtc.ICECandidateInit(nil), c.remoteCandidates...)
}

func (c *Connection) Tracks() []webrtc.TrackLocal {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]webrtc.TrackLocal(nil), c.tracks...)
}

func (c *Connection) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.closed
}

// Returns a host candidate on the given port.
func HostCandidate(port uint16) *webrtc.ICECandidate {
	return &webrtc.ICECandidate{
		Foundation: "1",
		Priority:   2130706431,
		Address:    "192.0.2.1",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       port,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	}
}

// Returns a remote candidate the way it arrives from the relay.
func RemoteCandidate(port uint16) webrtc.ICECandidateInit {
	return HostCandidate(port).ToJSON()
}

// Simulates an inbound track.
func (c *Connection) ReceiveTrack(track *webrtc.TrackRemote) {
	c.mutex.Lock()
	handler := c.onTrack
	c.mutex.Unlock()

	if handler != nil {
		handler(track, nil)
	}
}
