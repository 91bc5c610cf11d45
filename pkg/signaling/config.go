package signaling

import "time"

// Configuration of the relay connection.
type Config struct {
	// Websocket URL of the relay, e.g. `ws://localhost:8888/ws`.
	URL string `yaml:"url"`
	// How often to ping the relay when nothing else is being sent, e.g. `30s`.
	PingInterval time.Duration `yaml:"pingInterval"`
	// How long to wait for the pong after a ping before considering the connection
	// dead, e.g. `10s`. Zero disables the check.
	PongTimeout time.Duration `yaml:"pongTimeout"`
	// Maximum number of outgoing envelopes waiting to be written.
	QueueSize int `yaml:"queueSize"`
}

func (c Config) pingInterval() time.Duration {
	if c.PingInterval <= 0 {
		return 30 * time.Second
	}
	return c.PingInterval
}

// Any frame from the relay must arrive within this time, pings included.
// Zero disables the read deadline.
func (c Config) readTimeout() time.Duration {
	if c.PongTimeout <= 0 {
		return 0
	}
	return c.pingInterval() + c.PongTimeout
}

func (c Config) queueSize() int {
	if c.QueueSize <= 0 {
		return 128
	}
	return c.QueueSize
}
