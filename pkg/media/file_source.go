package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/sirupsen/logrus"
)

// Duration of a single Ogg page produced by the usual Opus encoders.
const oggPageDuration = 20 * time.Millisecond

// FileSource plays media files as if they were captured from a camera or a screen.
type FileSource struct {
	config Config
	logger *logrus.Entry
}

func NewFileSource(config Config, logger *logrus.Entry) *FileSource {
	return &FileSource{config: config, logger: logger}
}

// Whether there is anything configured for the given kind.
func (s *FileSource) Has(kind Kind) bool {
	_, ok := s.config.source(kind)
	return ok
}

// Opens the files configured for the kind and starts playing them into new local tracks.
func (s *FileSource) Acquire(ctx context.Context, kind Kind) (*TrackSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, ok := s.config.source(kind)
	if !ok {
		return nil, fmt.Errorf("%w: nothing configured for %s", ErrMediaAccess, kind)
	}

	logger := s.logger.WithField("kind", kind)
	done := make(chan struct{})
	var (
		tracks  []webrtc.TrackLocal
		players []func()
		wg      sync.WaitGroup
	)

	closeAll := func(files []*os.File) {
		for _, file := range files {
			file.Close()
		}
	}
	var files []*os.File

	if source.Video != "" {
		file, frames, frameDuration, err := openVideo(source.Video)
		if err != nil {
			closeAll(files)
			return nil, err
		}
		files = append(files, file)

		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", string(kind),
		)
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
		}

		tracks = append(tracks, track)
		players = append(players, func() {
			s.playVideo(source.Video, file, frames, frameDuration, track, done, logger.WithField("file", source.Video))
		})
	}

	if source.Audio != "" {
		file, pages, err := openAudio(source.Audio)
		if err != nil {
			closeAll(files)
			return nil, err
		}
		files = append(files, file)

		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", string(kind),
		)
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
		}

		tracks = append(tracks, track)
		players = append(players, func() {
			s.playAudio(source.Audio, file, pages, track, done, logger.WithField("file", source.Audio))
		})
	}

	for _, play := range players {
		play := play
		wg.Add(1)
		go func() {
			defer wg.Done()
			play()
		}()
	}

	logger.WithField("tracks", len(tracks)).Info("local media acquired")

	return NewTrackSet(kind, tracks, func() {
		close(done)
		wg.Wait()
		logger.Info("local media stopped")
	}), nil
}

// Opens an IVF file and returns the duration of a single frame derived from its timebase.
func openVideo(path string) (*os.File, *ivfreader.IVFReader, time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, nil, 0, fmt.Errorf("%w: %s: %v", ErrMediaAccess, path, err)
	}

	if header.FourCC != "VP80" {
		file.Close()
		return nil, nil, 0, fmt.Errorf("%w: %s: %w", ErrMediaAccess, path, ErrUnsupportedCodec)
	}

	// Assume 30 fps if the timebase is not usable.
	frameDuration := 33 * time.Millisecond
	if header.TimebaseNumerator != 0 && header.TimebaseDenominator != 0 {
		frameDuration = time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
	}

	return file, reader, frameDuration, nil
}

func openAudio(path string) (*os.File, *oggreader.OggReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMediaAccess, path, err)
	}

	return file, reader, nil
}

// Writes IVF frames to the track at the pace given by the file's timebase.
func (s *FileSource) playVideo(
	path string,
	file *os.File,
	reader *ivfreader.IVFReader,
	frameDuration time.Duration,
	track *webrtc.TrackLocalStaticSample,
	done <-chan struct{},
	logger *logrus.Entry,
) {
	defer func() { file.Close() }()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	// Frames written since the file was (re)opened.
	played := 0
	for {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) && s.config.Loop {
			if played == 0 {
				logger.Warn("no video to loop over")
				return
			}
			played = 0

			select {
			case <-done:
				return
			default:
			}

			file.Close()
			if file, reader, _, err = openVideo(path); err != nil {
				logger.WithError(err).Error("failed to reopen video")
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.WithError(err).Error("failed to read video frame")
			}
			return
		}

		select {
		case <-done:
			return
		case <-ticker.C:
		}

		played++
		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			logger.WithError(err).Warn("failed to write video sample")
		}
	}
}

// Writes Ogg pages to the track. Every page is expected to carry a single 20ms Opus frame.
func (s *FileSource) playAudio(
	path string,
	file *os.File,
	reader *oggreader.OggReader,
	track *webrtc.TrackLocalStaticSample,
	done <-chan struct{},
	logger *logrus.Entry,
) {
	defer func() { file.Close() }()

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	played := 0
	for {
		page, _, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) && s.config.Loop {
			if played == 0 {
				logger.Warn("no audio to loop over")
				return
			}
			played = 0

			select {
			case <-done:
				return
			default:
			}

			file.Close()
			if file, reader, err = openAudio(path); err != nil {
				logger.WithError(err).Error("failed to reopen audio")
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.WithError(err).Error("failed to read audio page")
			}
			return
		}

		select {
		case <-done:
			return
		case <-ticker.C:
		}

		played++
		if err := track.WriteSample(pionmedia.Sample{Data: page, Duration: oggPageDuration}); err != nil {
			logger.WithError(err).Warn("failed to write audio sample")
		}
	}
}
