package media_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matrix-org/peercall/pkg/media"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packetQueue struct {
	packets []*rtp.Packet
	err     error
}

func (q *packetQueue) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(q.packets) == 0 {
		return nil, nil, q.err
	}

	packet := q.packets[0]
	q.packets = q.packets[1:]
	return packet, nil, nil
}

type countingWriter struct {
	written int
	closed  bool
}

func (w *countingWriter) WriteRTP(*rtp.Packet) error {
	w.written++
	return nil
}

func (w *countingWriter) Close() error {
	w.closed = true
	return nil
}

func opusPackets(count int) []*rtp.Packet {
	packets := make([]*rtp.Packet, 0, count)
	for i := 0; i < count; i++ {
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i * 960),
				SSRC:           1,
			},
			Payload: []byte{0xfc, 0xff, 0xfe},
		})
	}
	return packets
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestParseKind(t *testing.T) {
	kind, err := media.ParseKind("screen")
	require.NoError(t, err)
	assert.Equal(t, media.KindScreen, kind)

	_, err = media.ParseKind("microphone")
	assert.ErrorIs(t, err, media.ErrUnknownKind)
}

func TestTrackSet_StopOnce(t *testing.T) {
	stopped := 0
	set := media.NewTrackSet(media.KindCamera, nil, func() { stopped++ })

	set.Stop()
	set.Stop()

	assert.Equal(t, 1, stopped)
}

func TestCopy_UntilEOF(t *testing.T) {
	writer := &countingWriter{}
	err := media.Copy(&packetQueue{packets: opusPackets(3), err: io.EOF}, writer)

	require.NoError(t, err)
	assert.Equal(t, 3, writer.written)
	assert.True(t, writer.closed)
}

func TestCopy_ReadError(t *testing.T) {
	failure := errors.New("boom")
	writer := &countingWriter{}

	err := media.Copy(&packetQueue{packets: opusPackets(1), err: failure}, writer)

	assert.ErrorIs(t, err, failure)
	assert.True(t, writer.closed)
}

func TestCopy_IntoOgg(t *testing.T) {
	var buffer bytes.Buffer
	writer, err := oggwriter.NewWith(&buffer, 48000, 2)
	require.NoError(t, err)

	require.NoError(t, media.Copy(&packetQueue{packets: opusPackets(5), err: io.EOF}, writer))
	assert.True(t, bytes.HasPrefix(buffer.Bytes(), []byte("OggS")))
}

func TestDiscard(t *testing.T) {
	queue := &packetQueue{packets: opusPackets(4), err: io.EOF}

	require.NoError(t, media.Discard(queue))
	assert.Empty(t, queue.packets)
}

func TestFileSource_NothingConfigured(t *testing.T) {
	source := media.NewFileSource(media.Config{}, testLogger())

	assert.False(t, source.Has(media.KindCamera))
	_, err := source.Acquire(context.Background(), media.KindCamera)
	assert.ErrorIs(t, err, media.ErrMediaAccess)
}

func TestFileSource_MissingFile(t *testing.T) {
	config := media.Config{Screen: media.Source{Video: filepath.Join(t.TempDir(), "missing.ivf")}}
	source := media.NewFileSource(config, testLogger())

	assert.True(t, source.Has(media.KindScreen))
	_, err := source.Acquire(context.Background(), media.KindScreen)
	assert.ErrorIs(t, err, media.ErrMediaAccess)
}

func TestFileSource_NotAnIVF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.ivf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0o600))

	source := media.NewFileSource(media.Config{Camera: media.Source{Video: path}}, testLogger())
	_, err := source.Acquire(context.Background(), media.KindCamera)
	assert.ErrorIs(t, err, media.ErrMediaAccess)
}

func TestFileSource_PlaysOgg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.ogg")
	writer, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	require.NoError(t, media.Copy(&packetQueue{packets: opusPackets(10), err: io.EOF}, writer))

	source := media.NewFileSource(media.Config{Camera: media.Source{Audio: path}}, testLogger())
	set, err := source.Acquire(context.Background(), media.KindCamera)
	require.NoError(t, err)

	assert.Equal(t, media.KindCamera, set.Kind)
	require.Len(t, set.Tracks, 1)
	assert.Equal(t, "audio", set.Tracks[0].ID())

	set.Stop()
}

func TestFileSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := media.NewFileSource(media.Config{Camera: media.Source{Video: "x.ivf"}}, testLogger())
	_, err := source.Acquire(ctx, media.KindCamera)
	assert.ErrorIs(t, err, context.Canceled)
}

// Writes a VP8 IVF file with the given frames at 100 frames per second.
func writeIVF(t *testing.T, frames ...[]byte) string {
	t.Helper()

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[6:8], 32)
	copy(header[8:12], "VP80")
	binary.LittleEndian.PutUint16(header[12:14], 640)
	binary.LittleEndian.PutUint16(header[14:16], 480)
	binary.LittleEndian.PutUint32(header[16:20], 100)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(frames)))

	data := header
	for i, frame := range frames {
		frameHeader := make([]byte, 12)
		binary.LittleEndian.PutUint32(frameHeader[0:4], uint32(len(frame)))
		binary.LittleEndian.PutUint64(frameHeader[4:12], uint64(i))
		data = append(data, frameHeader...)
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func stopWithin(t *testing.T, set *media.TrackSet, timeout time.Duration) {
	t.Helper()

	stopped := make(chan struct{})
	go func() {
		set.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		t.Fatal("tracks were not stopped in time")
	}
}

func TestFileSource_LoopOverEmptyVideo(t *testing.T) {
	config := media.Config{Camera: media.Source{Video: writeIVF(t)}, Loop: true}
	source := media.NewFileSource(config, testLogger())

	set, err := source.Acquire(context.Background(), media.KindCamera)
	require.NoError(t, err)
	require.Len(t, set.Tracks, 1)
	assert.Equal(t, "video", set.Tracks[0].ID())

	stopWithin(t, set, 2*time.Second)
}

func TestFileSource_LoopsVideo(t *testing.T) {
	frame := bytes.Repeat([]byte{0x10}, 10)
	config := media.Config{Screen: media.Source{Video: writeIVF(t, frame, frame, frame)}, Loop: true}
	source := media.NewFileSource(config, testLogger())

	set, err := source.Acquire(context.Background(), media.KindScreen)
	require.NoError(t, err)

	// Three 10ms frames, so the file has been reopened a few times by now.
	time.Sleep(100 * time.Millisecond)
	stopWithin(t, set, 2*time.Second)
}

func TestFileSource_LoopsAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.ogg")
	writer, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	require.NoError(t, media.Copy(&packetQueue{packets: opusPackets(3), err: io.EOF}, writer))

	source := media.NewFileSource(media.Config{Camera: media.Source{Audio: path}, Loop: true}, testLogger())
	set, err := source.Acquire(context.Background(), media.KindCamera)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	stopWithin(t, set, 2*time.Second)
}
