package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matrix-org/peercall/pkg/worker"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected     = errors.New("not connected to the relay")
	ErrAlreadyConnected = errors.New("already connected to the relay")
)

const writeTimeout = 10 * time.Second

// Client keeps a single websocket connection to the relay. It does not reconnect on its own:
// a lost connection is reported via `OnDisconnect` and the owner decides what to do.
type Client struct {
	config Config
	logger *logrus.Entry
	dialer *websocket.Dialer

	mutex      sync.Mutex
	connection *connection

	onEnvelope   func(Envelope)
	onConnect    func()
	onDisconnect func(error)
}

// A single websocket session with the relay. All writes go through `writer`, so there is
// only one goroutine writing to the socket and envelopes leave in the order they were sent.
type connection struct {
	socket  *websocket.Conn
	writer  *worker.Worker[[]byte]
	closing bool
}

func NewClient(config Config, logger *logrus.Entry) *Client {
	return &Client{
		config:       config,
		logger:       logger,
		dialer:       websocket.DefaultDialer,
		onEnvelope:   func(Envelope) {},
		onConnect:    func() {},
		onDisconnect: func(error) {},
	}
}

// Registers the handler for inbound envelopes. Called from the read goroutine.
// Must be set before `Connect`.
func (c *Client) OnEnvelope(handler func(Envelope)) {
	c.onEnvelope = handler
}

func (c *Client) OnConnect(handler func()) {
	c.onConnect = handler
}

// The error is `nil` if the connection was closed locally via `Close`.
func (c *Client) OnDisconnect(handler func(error)) {
	c.onDisconnect = handler
}

// Dials the relay and starts reading from it.
func (c *Client) Connect(ctx context.Context) error {
	c.mutex.Lock()
	if c.connection != nil {
		c.mutex.Unlock()
		return ErrAlreadyConnected
	}

	c.logger.WithField("url", c.config.URL).Info("connecting to the relay")

	socket, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.mutex.Unlock()
		return fmt.Errorf("failed to dial relay: %w", err)
	}

	conn := &connection{socket: socket}
	conn.writer = worker.StartWorker(worker.Config[[]byte]{
		ChannelSize: c.config.queueSize(),
		Timeout:     c.config.pingInterval(),
		OnTimeout:   func() { c.ping(conn) },
		OnTask:      func(frame []byte) { c.write(conn, frame) },
	})
	c.connection = conn

	c.extendReadDeadline(conn)
	socket.SetPongHandler(func(string) error {
		c.extendReadDeadline(conn)
		return nil
	})
	socket.SetPingHandler(func(data string) error {
		c.extendReadDeadline(conn)
		err := socket.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.mutex.Unlock()

	c.logger.Info("connected to the relay")
	c.onConnect()

	go c.readLoop(conn)

	return nil
}

// Queues the envelope for delivery to the relay.
func (c *Client) Send(envelope Envelope) error {
	frame, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.mutex.Lock()
	conn := c.connection
	c.mutex.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.writer.Send(frame); err != nil {
		return fmt.Errorf("failed to queue %s: %w", envelope.Type, err)
	}

	return nil
}

// Whether there is a live connection to the relay.
func (c *Client) Connected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.connection != nil
}

// Closes the current connection. Envelopes that are already queued are flushed first.
func (c *Client) Close() {
	c.mutex.Lock()
	conn := c.connection
	if conn != nil {
		conn.closing = true
	}
	c.mutex.Unlock()

	if conn == nil {
		return
	}

	conn.writer.Stop()
	<-conn.writer.Done()

	c.mutex.Lock()
	c.writeClose(conn)
	c.mutex.Unlock()

	conn.socket.Close()
}

func (c *Client) readLoop(conn *connection) {
	var readErr error

	for {
		_, data, err := conn.socket.ReadMessage()
		if err != nil {
			readErr = err
			break
		}

		c.extendReadDeadline(conn)

		envelope, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.WithError(err).Warn("dropping frame from the relay")
			continue
		}

		c.logger.WithField("type", envelope.Type).Debug("received envelope")
		c.onEnvelope(envelope)
	}

	c.mutex.Lock()
	closing := conn.closing
	if c.connection == conn {
		c.connection = nil
	}
	c.mutex.Unlock()

	conn.writer.Stop()
	conn.socket.Close()

	if closing {
		c.logger.Info("disconnected from the relay")
		c.onDisconnect(nil)
		return
	}

	c.logger.WithError(readErr).Warn("lost connection to the relay")
	c.onDisconnect(readErr)
}

func (c *Client) write(conn *connection, frame []byte) {
	_ = conn.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.WithError(err).Error("failed to write to the relay")
		// The read loop notices the closed socket and reports the disconnect.
		conn.socket.Close()
	}
}

func (c *Client) ping(conn *connection) {
	deadline := time.Now().Add(writeTimeout)
	if err := conn.socket.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.logger.WithError(err).Warn("failed to ping the relay")
		conn.socket.Close()
	}
}

// Called after the writer stopped, so this is the only writer left.
func (c *Client) writeClose(conn *connection) {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.socket.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeTimeout)); err != nil {
		c.logger.WithError(err).Debug("failed to send close frame")
	}
}

func (c *Client) extendReadDeadline(conn *connection) {
	if timeout := c.config.readTimeout(); timeout > 0 {
		_ = conn.socket.SetReadDeadline(time.Now().Add(timeout))
	}
}
