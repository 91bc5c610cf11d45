package session

import (
	"fmt"

	"github.com/matrix-org/peercall/pkg/media"
)

// Session controller configuration.
type Config struct {
	// Media sent when we call someone. Defaults to the screen.
	CallerMedia media.Kind `yaml:"callerMedia"`
	// Media sent when someone calls us. Defaults to the camera.
	CalleeMedia media.Kind `yaml:"calleeMedia"`
	// Size of the queue for the messages from the peer connections.
	QueueSize int `yaml:"queueSize"`
}

func DefaultConfig() Config {
	return Config{
		CallerMedia: media.KindScreen,
		CalleeMedia: media.KindCamera,
		QueueSize:   128,
	}
}

// Fills in the defaults for the values that are not set and validates the rest.
func (c Config) Validate() (Config, error) {
	defaults := DefaultConfig()

	if c.CallerMedia == "" {
		c.CallerMedia = defaults.CallerMedia
	}
	if c.CalleeMedia == "" {
		c.CalleeMedia = defaults.CalleeMedia
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}

	for _, kind := range []media.Kind{c.CallerMedia, c.CalleeMedia} {
		if _, err := media.ParseKind(string(kind)); err != nil {
			return Config{}, fmt.Errorf("invalid session config: %w", err)
		}
	}

	return c, nil
}
