package relay

import "time"

type Config struct {
	// Address to listen on, e.g. `:8888`.
	Addr string `yaml:"addr"`
	// How often the clients are pinged, e.g. `54s`.
	PingInterval time.Duration `yaml:"pingInterval"`
	// A client that stays silent for this long is disconnected. Must exceed `PingInterval`.
	PongTimeout time.Duration `yaml:"pongTimeout"`
	// Outbound messages buffered per client.
	QueueSize int `yaml:"queueSize"`
	// Largest accepted frame in bytes.
	MaxMessageSize int64 `yaml:"maxMessageSize"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8888",
		PingInterval:   54 * time.Second,
		PongTimeout:    60 * time.Second,
		QueueSize:      256,
		MaxMessageSize: 64 * 1024,
	}
}

func (c Config) ListenAddr() string {
	if c.Addr == "" {
		return DefaultConfig().Addr
	}
	return c.Addr
}

func (c Config) pingInterval() time.Duration {
	if c.PingInterval <= 0 {
		return DefaultConfig().PingInterval
	}
	return c.PingInterval
}

func (c Config) pongTimeout() time.Duration {
	if c.PongTimeout <= c.pingInterval() {
		return c.pingInterval() + 6*time.Second
	}
	return c.PongTimeout
}

func (c Config) queueSize() int {
	if c.QueueSize <= 0 {
		return DefaultConfig().QueueSize
	}
	return c.QueueSize
}

func (c Config) maxMessageSize() int64 {
	if c.MaxMessageSize <= 0 {
		return DefaultConfig().MaxMessageSize
	}
	return c.MaxMessageSize
}
