package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

var (
	ErrMediaAccess      = errors.New("can't access local media")
	ErrUnknownKind      = errors.New("unknown media kind")
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Kind of local media a session sends to the remote peer.
type Kind string

const (
	KindCamera Kind = "camera"
	KindScreen Kind = "screen"
)

func ParseKind(value string) (Kind, error) {
	switch kind := Kind(value); kind {
	case KindCamera, KindScreen:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
}

// TrackSet is the local media acquired for a single session. Whoever owns the set must
// call `Stop` once the media is no longer needed.
type TrackSet struct {
	Kind   Kind
	Tracks []webrtc.TrackLocal

	stopOnce sync.Once
	stop     func()
}

func NewTrackSet(kind Kind, tracks []webrtc.TrackLocal, stop func()) *TrackSet {
	if stop == nil {
		stop = func() {}
	}

	return &TrackSet{Kind: kind, Tracks: tracks, stop: stop}
}

// Stops producing media. Safe to call more than once.
func (t *TrackSet) Stop() {
	t.stopOnce.Do(t.stop)
}
