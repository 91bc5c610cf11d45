package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// Prints what happens to the sessions and takes care of the remote media.
type console struct {
	mutex    sync.Mutex
	output   io.Writer
	recorder *media.Recorder
	logger   *logrus.Entry
}

func newConsole(output io.Writer, recorder *media.Recorder, logger *logrus.Entry) *console {
	return &console{output: output, recorder: recorder, logger: logger}
}

func (c *console) OnPresenceChanged(peers []signaling.PeerID) {
	names := make([]string, 0, len(peers))
	for _, peerID := range peers {
		names = append(names, string(peerID))
	}

	c.printf("online: [%s]\n", strings.Join(names, ", "))
}

func (c *console) OnSessionStateChanged(peerID signaling.PeerID, state peer.State) {
	c.printf("%s: %s\n", peerID, state)
}

// Remote tracks must be read in any case, so they are either recorded or discarded.
func (c *console) OnRemoteTrack(peerID signaling.PeerID, track *webrtc.TrackRemote) {
	c.printf("%s: receiving %s\n", peerID, track.Codec().MimeType)

	go func() {
		var err error
		if c.recorder != nil {
			err = c.recorder.Record(string(peerID), track)
		} else {
			err = media.Discard(track)
		}

		if err != nil {
			c.logger.WithError(err).WithField("peer_id", peerID).Warn("remote track ended with an error")
		}
	}()
}

func (c *console) printf(format string, args ...interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	fmt.Fprintf(c.output, format, args...)
}
