package peer

import (
	"github.com/pion/webrtc/v3"
)

// Due to the limitation of Go, we're using the `interface{}` to be able to use switch the actual
// type of the message on runtime. The underlying types do not necessary need to be structures.
type MessageContent = interface{}

// A local ICE candidate has been gathered. `nil` means that the gathering is complete.
type NewICECandidate struct {
	Candidate *webrtc.ICECandidateInit
}

type ConnectionStateChanged struct {
	State webrtc.PeerConnectionState
}

type RemoteTrackReceived struct {
	Track *webrtc.TrackRemote
}
