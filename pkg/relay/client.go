package relay

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// One connected peer. `outbound` is only closed by the hub when the client leaves.
type client struct {
	id       signaling.PeerID
	socket   *websocket.Conn
	outbound chan []byte
	config   Config
	logger   *logrus.Entry
}

func newClient(id signaling.PeerID, socket *websocket.Conn, config Config, logger *logrus.Entry) *client {
	return &client{
		id:       id,
		socket:   socket,
		outbound: make(chan []byte, config.queueSize()),
		config:   config,
		logger:   logger,
	}
}

// Never blocks: a client that does not keep up loses messages.
// Must be called with the hub lock held so that `outbound` is not closed concurrently.
func (c *client) enqueue(envelope signaling.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	select {
	case c.outbound <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *client) readPump(hub *Hub) {
	defer func() {
		hub.leave(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(c.config.maxMessageSize())
	c.extendDeadline()
	c.socket.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Warn("connection lost")
			}
			return
		}

		envelope, err := signaling.DecodeEnvelope(data)
		if err != nil {
			c.logger.WithError(err).Warn("ignoring malformed message")
			continue
		}

		logger := c.logger.WithField("type", envelope.Type)
		switch err := hub.route(c.id, envelope); {
		case err == nil:
			logger.Debug("message forwarded")
		case errors.Is(err, ErrUnknownRecipient), errors.Is(err, ErrQueueFull):
			logger.WithError(err).Info("message dropped")
		default:
			logger.WithError(err).Warn("message rejected")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.config.pingInterval())
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case data, ok := <-c.outbound:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.WithError(err).Warn("failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) extendDeadline() {
	_ = c.socket.SetReadDeadline(time.Now().Add(c.config.pongTimeout()))
}
