package session_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/peer"
	"github.com/matrix-org/peercall/pkg/peer/peertest"
	"github.com/matrix-org/peercall/pkg/session"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/matrix-org/peercall/pkg/worker"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// Relay that remembers everything that has been sent. Once connected to another controller,
// envelopes are also delivered there the way the relay server would deliver them.
type fakeRelay struct {
	mutex   sync.Mutex
	sent    []signaling.Envelope
	self    signaling.PeerID
	forward *worker.Worker[signaling.Envelope]
	err     error
}

// Delivery happens on a separate goroutine, in order, like with the real relay.
func (r *fakeRelay) connectTo(t *testing.T, target *session.Controller) {
	forward := worker.StartWorker(worker.Config[signaling.Envelope]{
		ChannelSize: 64,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      target.HandleInboundEnvelope,
	})
	t.Cleanup(forward.Stop)

	r.mutex.Lock()
	r.forward = forward
	r.mutex.Unlock()
}

func (r *fakeRelay) Send(envelope signaling.Envelope) error {
	r.mutex.Lock()
	if r.err != nil {
		r.mutex.Unlock()
		return r.err
	}
	r.sent = append(r.sent, envelope)
	forward := r.forward
	r.mutex.Unlock()

	if forward != nil {
		forwarded, err := envelope.Forwarded(r.self)
		if err != nil {
			return err
		}
		return forward.Send(forwarded)
	}

	return nil
}

func (r *fakeRelay) ofType(messageType signaling.MessageType) []signaling.Envelope {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var envelopes []signaling.Envelope
	for _, envelope := range r.sent {
		if envelope.Type == messageType {
			envelopes = append(envelopes, envelope)
		}
	}
	return envelopes
}

// Media source whose acquisition can be held back until `release` is called.
type fakeMedia struct {
	mutex    sync.Mutex
	gate     chan struct{}
	err      error
	acquired []*media.TrackSet
	stopped  map[*media.TrackSet]bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{stopped: make(map[*media.TrackSet]bool)}
}

func (m *fakeMedia) hold() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.gate = make(chan struct{})
}

func (m *fakeMedia) release() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

func (m *fakeMedia) Acquire(ctx context.Context, kind media.Kind) (*media.TrackSet, error) {
	m.mutex.Lock()
	gate, err := m.gate, m.err
	m.mutex.Unlock()

	if gate != nil {
		<-gate
	}

	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", string(kind))
	if err != nil {
		return nil, err
	}

	var set *media.TrackSet
	set = media.NewTrackSet(kind, []webrtc.TrackLocal{track}, func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		m.stopped[set] = true
	})

	m.mutex.Lock()
	m.acquired = append(m.acquired, set)
	m.mutex.Unlock()

	return set, nil
}

func (m *fakeMedia) counts() (acquired, stopped int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.acquired), len(m.stopped)
}

type connections struct {
	mutex   sync.Mutex
	created []*peertest.Connection
}

func (c *connections) factory() (peer.Connection, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	connection := peertest.NewConnection()
	c.created = append(c.created, connection)
	return connection, nil
}

func (c *connections) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.created)
}

func (c *connections) last() *peertest.Connection {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.created) == 0 {
		return nil
	}
	return c.created[len(c.created)-1]
}

type stateChange struct {
	peerID signaling.PeerID
	state  peer.State
}

type recordingObserver struct {
	mutex    sync.Mutex
	presence [][]signaling.PeerID
	states   []stateChange
	tracks   []signaling.PeerID
}

func (o *recordingObserver) OnPresenceChanged(peers []signaling.PeerID) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.presence = append(o.presence, peers)
}

func (o *recordingObserver) OnSessionStateChanged(peerID signaling.PeerID, state peer.State) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.states = append(o.states, stateChange{peerID, state})
}

func (o *recordingObserver) OnRemoteTrack(peerID signaling.PeerID, _ *webrtc.TrackRemote) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.tracks = append(o.tracks, peerID)
}

func (o *recordingObserver) statesOf(peerID signaling.PeerID) []peer.State {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	var states []peer.State
	for _, change := range o.states {
		if change.peerID == peerID {
			states = append(states, change.state)
		}
	}
	return states
}

func (o *recordingObserver) presenceUpdates() int {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return len(o.presence)
}

type harness struct {
	controller  *session.Controller
	relay       *fakeRelay
	media       *fakeMedia
	connections *connections
	observer    *recordingObserver
}

func newHarness(t *testing.T, self signaling.PeerID) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		relay:       &fakeRelay{self: self},
		media:       newFakeMedia(),
		connections: &connections{},
		observer:    &recordingObserver{},
	}

	controller, err := session.NewController(
		session.DefaultConfig(),
		h.relay,
		h.media,
		h.connections.factory,
		h.observer,
		logrus.NewEntry(logger).WithField("self", self),
	)
	require.NoError(t, err)

	controller.Start()
	t.Cleanup(func() {
		h.media.release()
		controller.Stop()
		<-controller.Done()
	})

	h.controller = controller
	return h
}

// Delivers an envelope as if it came from the relay on behalf of `from`.
func (h *harness) deliver(t *testing.T, envelope signaling.Envelope, err error, from signaling.PeerID) {
	t.Helper()
	require.NoError(t, err)

	if from != "" {
		envelope, err = envelope.Forwarded(from)
		require.NoError(t, err)
	}

	h.controller.HandleInboundEnvelope(envelope)
}

func (h *harness) userList(t *testing.T, peers ...signaling.PeerID) {
	t.Helper()
	envelope, err := signaling.NewUserList(peers)
	h.deliver(t, envelope, err, "")
}

func (h *harness) eventuallyState(t *testing.T, peerID signaling.PeerID, expected peer.State) {
	t.Helper()
	assert.Eventually(t, func() bool {
		state, found := h.controller.SessionState(peerID)
		return found && state == expected
	}, waitFor, tick, "session with %s should become %s", peerID, expected)
}

func (h *harness) eventuallyGone(t *testing.T, peerID signaling.PeerID) {
	t.Helper()
	assert.Eventually(t, func() bool {
		_, found := h.controller.SessionState(peerID)
		return !found
	}, waitFor, tick, "session with %s should be gone", peerID)
}

var errNoCamera = errors.New("permission denied")

var remoteOffer = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote offer"}
var remoteAnswer = webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote answer"}
