package peer

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// A callback that is called once we receive an ICE candidate for this peer connection.
func (p *Peer[ID]) onICECandidateGathered(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		p.logger.Info("ICE candidate gathering finished")
		p.send(NewICECandidate{Candidate: nil})
		return
	}

	p.logger.WithField("candidate", candidate).Debug("ICE candidate gathered")
	init := candidate.ToJSON()
	p.send(NewICECandidate{Candidate: &init})
}

func (p *Peer[ID]) onConnectionStateChanged(state webrtc.PeerConnectionState) {
	p.logger.WithField("state", state).Debug("connection state changed")
	p.send(ConnectionStateChanged{State: state})
}

// A callback that is called once we receive first RTP packets from a track, i.e.
// we call this function each time a new track is received.
func (p *Peer[ID]) onRtpTrackReceived(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	p.logger.WithFields(logrus.Fields{
		"track_id": remoteTrack.ID(),
		"kind":     remoteTrack.Kind(),
		"codec":    remoteTrack.Codec().MimeType,
	}).Info("remote track received")

	if remoteTrack.Kind() == webrtc.RTPCodecTypeVideo {
		p.requestKeyFrame(remoteTrack)
	}

	p.send(RemoteTrackReceived{Track: remoteTrack})
}

// Asks the remote encoder for a key frame, so that the track can be decoded right away.
func (p *Peer[ID]) requestKeyFrame(remoteTrack *webrtc.TrackRemote) {
	packets := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(remoteTrack.SSRC())}}
	if err := p.connection.WriteRTCP(packets); err != nil {
		p.logger.WithError(fmt.Errorf("%w: %v", ErrCantRequestKeyFrame, err)).Warn("failed to send PLI")
	}
}

// Reads incoming RTCP for the local track. Without it the interceptors (NACK etc) don't work.
func (p *Peer[ID]) readRTCP(sender *webrtc.RTPSender) {
	buffer := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buffer); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				p.logger.WithError(err).Debug("stopped reading RTCP")
			}
			return
		}
	}
}

// Messages sent after the peer has been released are dropped.
func (p *Peer[ID]) send(message MessageContent) {
	if err := p.sink.Send(message); err != nil {
		p.logger.WithField("message", fmt.Sprintf("%T", message)).Debug("dropping message from released peer")
	}
}
