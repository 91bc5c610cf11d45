package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	ErrUnknownRecipient = errors.New("recipient is not connected")
	ErrNotRoutable      = errors.New("message can't be routed between peers")
	ErrQueueFull        = errors.New("outbound queue of the recipient is full")
)

// Hub tracks the connected clients, tells everyone who is online and forwards the
// peer-to-peer messages to their recipients.
type Hub struct {
	config Config
	logger *logrus.Entry

	mutex   sync.RWMutex
	clients map[signaling.PeerID]*client
}

func NewHub(config Config, logger *logrus.Entry) *Hub {
	return &Hub{
		config:  config,
		logger:  logger,
		clients: make(map[signaling.PeerID]*client),
	}
}

// Registers a freshly upgraded connection and starts serving it.
func (h *Hub) Serve(socket *websocket.Conn) signaling.PeerID {
	peerID := signaling.PeerID(uuid.NewString())
	client := newClient(peerID, socket, h.config, h.logger.WithField("peer_id", peerID))

	h.join(client)

	go client.writePump()
	go client.readPump(h)

	return peerID
}

// Sorted list of the connected peers.
func (h *Hub) Peers() []signaling.PeerID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	peers := maps.Keys(h.clients)
	slices.Sort(peers)
	return peers
}

// Disconnects everyone.
func (h *Hub) Close() {
	h.mutex.Lock()
	clients := maps.Values(h.clients)
	h.mutex.Unlock()

	for _, client := range clients {
		client.socket.Close()
	}
}

// The newcomer gets the list of the others, the others learn about the newcomer. Both happen
// under the lock, so every client sees a consistent history of joins and leaves.
func (h *Hub) join(newcomer *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	others := maps.Keys(h.clients)
	slices.Sort(others)

	h.clients[newcomer.id] = newcomer
	h.logger.WithFields(logrus.Fields{
		"peer_id": newcomer.id,
		"online":  len(h.clients),
	}).Info("peer joined")

	if userList, err := signaling.NewUserList(others); err == nil {
		newcomer.enqueue(userList)
	}

	if addUser, err := signaling.NewAddUser(newcomer.id); err == nil {
		h.broadcast(addUser, newcomer.id)
	}
}

func (h *Hub) leave(leaving *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.clients[leaving.id] != leaving {
		return
	}

	delete(h.clients, leaving.id)
	close(leaving.outbound)

	h.logger.WithFields(logrus.Fields{
		"peer_id": leaving.id,
		"online":  len(h.clients),
	}).Info("peer left")

	if removeUser, err := signaling.NewRemoveUser(leaving.id); err == nil {
		h.broadcast(removeUser, leaving.id)
	}
}

// Must be called with the lock held.
func (h *Hub) broadcast(envelope signaling.Envelope, except signaling.PeerID) {
	for id, client := range h.clients {
		if id == except {
			continue
		}

		if err := client.enqueue(envelope); err != nil {
			client.logger.WithError(err).Warn("dropping presence update")
		}
	}
}

// Delivers a message sent by `from` to the peer named in its `to` field.
func (h *Hub) route(from signaling.PeerID, envelope signaling.Envelope) error {
	if !envelope.Type.IsRouted() {
		return ErrNotRoutable
	}

	route, err := envelope.Route()
	if err != nil {
		return err
	}

	forwarded, err := envelope.Forwarded(from)
	if err != nil {
		return err
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	recipient, found := h.clients[route.To]
	if !found {
		return ErrUnknownRecipient
	}

	return recipient.enqueue(forwarded)
}
