package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedFile = errors.New("unsupported media file, want .ivf (VP8) or .ogg (Opus)")

// FileTrack plays an ivf or ogg file into a sample track. It ends when the file is
// exhausted, unless it loops, or when stopped.
type FileTrack struct {
	*webrtc.TrackLocalStaticSample

	path   string
	loop   bool
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	ended   bool
	onEnded []func()
}

func mimeTypeOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ivf":
		return webrtc.MimeTypeVP8, nil
	case ".ogg", ".opus":
		return webrtc.MimeTypeOpus, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFile)
	}
}

func NewFileTrack(path, id, streamID string, loop bool) (*FileTrack, error) {
	mimeType, err := mimeTypeOf(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	capability := webrtc.RTPCodecCapability{MimeType: mimeType}
	if mimeType == webrtc.MimeTypeOpus {
		capability.ClockRate = 48000
		capability.Channels = 2
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileTrack{
		TrackLocalStaticSample: track,
		path:                   path,
		loop:                   loop,
		logger: log.With().
			Str("module", "media").
			Str("track_id", id).
			Str("file", path).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins writing samples. Calling it again does nothing.
func (t *FileTrack) Start() error {
	t.mu.Lock()
	if t.started || t.ended {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	if t.Codec().MimeType == webrtc.MimeTypeOpus {
		go t.run(t.writeOgg)
	} else {
		go t.run(t.writeVP8)
	}
	t.logger.Debug().Str("mime", t.Codec().MimeType).Msg("starting track writer")
	return nil
}

func (t *FileTrack) Stop() {
	t.cancel()
	t.end()
}

func (t *FileTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *FileTrack) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fns := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	t.logger.Info().Msg("track ended")
	for _, fn := range fns {
		fn()
	}
}

// run plays the file once per pass until the context ends or a pass fails.
func (t *FileTrack) run(pass func(io.Reader) error) {
	defer t.end()
	for {
		f, err := os.Open(t.path)
		if err != nil {
			t.logger.Error().Err(err).Msg("could not open media file")
			return
		}
		err = pass(f)
		_ = f.Close()
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Error().Err(err).Msg("track writer failed")
			}
			return
		}
		if !t.loop || t.ctx.Err() != nil {
			return
		}
	}
}

func (t *FileTrack) sleep(d time.Duration) error {
	select {
	case <-t.ctx.Done():
		return t.ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (t *FileTrack) writeVP8(in io.Reader) error {
	ivf, header, err := ivfreader.NewWith(in)
	if err != nil {
		return err
	}
	frameDuration := time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	for {
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			t.logger.Debug().Msg("all video frames parsed and sent")
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.sleep(frameDuration); err != nil {
			return err
		}
		if err := t.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

func (t *FileTrack) writeOgg(in io.Reader) error {
	ogg, _, err := oggreader.NewWith(in)
	if err != nil {
		return err
	}
	// the granule difference is the number of samples in the page
	var lastGranule uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			t.logger.Debug().Msg("all audio samples parsed and sent")
			return nil
		}
		if err != nil {
			return err
		}
		sampleCount := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		sampleDuration := time.Duration((sampleCount/48000)*1000) * time.Millisecond

		if err := t.WriteSample(media.Sample{Data: page, Duration: sampleDuration}); err != nil {
			return err
		}
		if err := t.sleep(sampleDuration); err != nil {
			return err
		}
	}
}
