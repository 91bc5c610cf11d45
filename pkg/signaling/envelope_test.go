package signaling_test

import (
	"encoding/json"
	"testing"

	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	envelope, err := signaling.DecodeEnvelope([]byte(`{"type":"add-user","payload":{"peerId":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, signaling.TypeAddUser, envelope.Type)

	var change signaling.UserChange
	require.NoError(t, envelope.Decode(&change))
	assert.Equal(t, signaling.PeerID("b"), change.PeerID)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	for _, frame := range []string{`not json`, `{"payload":{}}`, `[]`} {
		_, err := signaling.DecodeEnvelope([]byte(frame))
		assert.ErrorIs(t, err, signaling.ErrMalformedEnvelope, frame)
	}
}

func TestEnvelope_DecodeWithoutPayload(t *testing.T) {
	envelope, err := signaling.DecodeEnvelope([]byte(`{"type":"call-user"}`))
	require.NoError(t, err)

	var call signaling.CallUser
	assert.ErrorIs(t, envelope.Decode(&call), signaling.ErrMalformedEnvelope)
}

func TestNewCallUser_WireFormat(t *testing.T) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	envelope, err := signaling.NewCallUser("b", offer)
	require.NoError(t, err)

	frame, err := json.Marshal(envelope)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"call-user","payload":{"to":"b","offer":{"type":"offer","sdp":"v=0"}}}`, string(frame))
}

func TestNewCandidateFor_EndOfCandidates(t *testing.T) {
	envelope, err := signaling.NewCandidateFor("b", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"b","candidate":null}`, string(envelope.Payload))

	var candidate signaling.NewCandidate
	require.NoError(t, envelope.Decode(&candidate))
	assert.Nil(t, candidate.Candidate)
}

func TestNewUserList_NeverNull(t *testing.T) {
	envelope, err := signaling.NewUserList(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"peers":[]}`, string(envelope.Payload))
}

func TestEnvelope_Forwarded(t *testing.T) {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	envelope, err := signaling.NewAnswerUser("b", answer)
	require.NoError(t, err)

	forwarded, err := envelope.Forwarded("a")
	require.NoError(t, err)
	assert.Equal(t, signaling.TypeAnswerUser, forwarded.Type)

	route, err := forwarded.Route()
	require.NoError(t, err)
	assert.Equal(t, signaling.Route{From: "a"}, route)

	var decoded signaling.AnswerUser
	require.NoError(t, forwarded.Decode(&decoded))
	assert.Equal(t, answer, decoded.Answer)
}

func TestMessageType_IsRouted(t *testing.T) {
	assert.True(t, signaling.TypeCallUser.IsRouted())
	assert.True(t, signaling.TypeAnswerUser.IsRouted())
	assert.True(t, signaling.TypeNewCandidate.IsRouted())
	assert.False(t, signaling.TypeUserList.IsRouted())
	assert.False(t, signaling.TypeAddUser.IsRouted())
	assert.False(t, signaling.TypeRemoveUser.IsRouted())
}
