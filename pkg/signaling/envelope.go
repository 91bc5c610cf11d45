package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Identity of a client connected to the relay. Assigned by the relay.
type PeerID string

type MessageType string

const (
	TypeUserList     MessageType = "user-list"
	TypeFullList     MessageType = "full-list"
	TypeAddUser      MessageType = "add-user"
	TypeRemoveUser   MessageType = "remove-user"
	TypeCallUser     MessageType = "call-user"
	TypeAnswerUser   MessageType = "answer-user"
	TypeNewCandidate MessageType = "new-ice-candidate"
)

// Envelope is a single message exchanged with the relay: `{"type": ..., "payload": {...}}`.
// The payload stays raw until the receiver decides how to interpret it.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type UserList struct {
	Peers []PeerID `json:"peers"`
}

type UserChange struct {
	PeerID PeerID `json:"peerId"`
}

// Addressing shared by the messages that are routed between peers. Outgoing messages set
// `To`, the relay replaces it with `From` on delivery.
type Route struct {
	To   PeerID `json:"to,omitempty"`
	From PeerID `json:"from,omitempty"`
}

type CallUser struct {
	Route
	Offer webrtc.SessionDescription `json:"offer"`
}

type AnswerUser struct {
	Route
	Answer webrtc.SessionDescription `json:"answer"`
}

// A `nil` candidate marks the end of candidates.
type NewCandidate struct {
	Route
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}

func newEnvelope(messageType MessageType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}

	return Envelope{Type: messageType, Payload: raw}, nil
}

func NewCallUser(to PeerID, offer webrtc.SessionDescription) (Envelope, error) {
	return newEnvelope(TypeCallUser, CallUser{Route{To: to}, offer})
}

func NewAnswerUser(to PeerID, answer webrtc.SessionDescription) (Envelope, error) {
	return newEnvelope(TypeAnswerUser, AnswerUser{Route{To: to}, answer})
}

func NewCandidateFor(to PeerID, candidate *webrtc.ICECandidateInit) (Envelope, error) {
	return newEnvelope(TypeNewCandidate, NewCandidate{Route{To: to}, candidate})
}

func NewUserList(peers []PeerID) (Envelope, error) {
	if peers == nil {
		peers = []PeerID{}
	}
	return newEnvelope(TypeUserList, UserList{peers})
}

func NewAddUser(peerID PeerID) (Envelope, error) {
	return newEnvelope(TypeAddUser, UserChange{peerID})
}

func NewRemoveUser(peerID PeerID) (Envelope, error) {
	return newEnvelope(TypeRemoveUser, UserChange{peerID})
}

// Decodes a text frame into an envelope. The payload is not inspected.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if envelope.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}

	return envelope, nil
}

// Decodes the payload into `target`, e.g. `*CallUser`.
func (e Envelope) Decode(target interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformedEnvelope, e.Type)
	}

	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Type, err)
	}

	return nil
}

// Reads the routing part of a peer-to-peer message.
func (e Envelope) Route() (Route, error) {
	var route Route
	err := e.Decode(&route)
	return route, err
}

// Returns a copy of the envelope whose route is rewritten to be delivered from `from`.
// Used by the relay.
func (e Envelope) Forwarded(from PeerID) (Envelope, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, e.Type, err)
	}

	sender, err := json.Marshal(from)
	if err != nil {
		return Envelope{}, err
	}

	delete(payload, "to")
	payload["from"] = sender

	return newEnvelope(e.Type, payload)
}

// Whether the message is routed between peers (as opposed to presence messages emitted by the relay).
func (t MessageType) IsRouted() bool {
	switch t {
	case TypeCallUser, TypeAnswerUser, TypeNewCandidate:
		return true
	default:
		return false
	}
}
