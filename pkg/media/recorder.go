package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/sirupsen/logrus"
)

// Anything RTP packets could be read from, e.g. `*webrtc.TrackRemote`.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// A media container that RTP packets are written to.
type Writer interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// Recorder stores remote tracks on disk: VP8 to IVF and Opus to Ogg.
type Recorder struct {
	dir    string
	logger *logrus.Entry
}

func NewRecorder(dir string, logger *logrus.Entry) *Recorder {
	return &Recorder{dir: dir, logger: logger}
}

// Records the track until it ends. Blocks, so it's meant to run on its own goroutine.
func (r *Recorder) Record(prefix string, track *webrtc.TrackRemote) error {
	logger := r.logger.WithFields(logrus.Fields{
		"track_id": track.ID(),
		"codec":    track.Codec().MimeType,
	})

	writer, path, err := r.createWriter(prefix, track.ID(), track.Codec())
	if err != nil {
		logger.WithError(err).Warn("not recording the track")
		// The track must be read anyway, otherwise the interceptors stall.
		return Discard(track)
	}

	logger.WithField("path", path).Info("recording the track")

	return Copy(track, writer)
}

func (r *Recorder) createWriter(prefix, trackID string, codec webrtc.RTPCodecParameters) (Writer, string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create %s: %w", r.dir, err)
	}

	name := sanitize(prefix) + "-" + sanitize(trackID)

	switch {
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		path := filepath.Join(r.dir, name+".ivf")
		writer, err := ivfwriter.New(path)
		return writer, path, err
	case strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		path := filepath.Join(r.dir, name+".ogg")
		writer, err := oggwriter.New(path, codec.ClockRate, codec.Channels)
		return writer, path, err
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec.MimeType)
	}
}

// Writes every packet from the reader to the writer until the reader is exhausted.
// The writer is closed in any case.
func Copy(reader RTPReader, writer Writer) (err error) {
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for {
		packet, _, readErr := reader.ReadRTP()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}

		if err := writer.WriteRTP(packet); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
}

// Reads the packets and drops them.
func Discard(reader RTPReader) error {
	for {
		if _, _, err := reader.ReadRTP(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
