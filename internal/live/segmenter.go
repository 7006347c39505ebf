// Package live turns a stream of PCM frames into partial and final caption
// segments. One Segmenter serves one streaming connection.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweetginger/Nyogi/internal/audio"
	"github.com/sweetginger/Nyogi/internal/transcriber"
)

var (
	ErrSequenceMismatch = errors.New("audio frame out of sequence")
	ErrClosed           = errors.New("segmenter closed")
)

// Frames buffered between the reader and the loop while a flush is in flight.
const frameQueueSize = 256

type Frame struct {
	Seq        int64
	SampleRate int
	Channels   int
	// PCM is interleaved PCM16LE; multi-channel input is down-mixed.
	PCM []byte
}

type Segment struct {
	SegmentID string `json:"segmentId"`
	Text      string `json:"text"`
	StartMs   int64  `json:"startMs"`
	EndMs     int64  `json:"endMs"`
	Speaker   string `json:"speaker"`
	IsPartial bool   `json:"isPartial"`
}

// Sink receives segment events on the segmenter's goroutine, in order.
type Sink interface {
	OnPartial(seg Segment)
	OnFinal(seg Segment)
}

type Config struct {
	FlushInterval  time.Duration
	SilenceTimeout time.Duration
	CallTimeout    time.Duration
	// StrictSequence rejects out-of-order frames instead of resyncing.
	StrictSequence    bool
	DefaultSampleRate int
	Speaker           string
}

type Segmenter struct {
	ctx         context.Context
	cfg         Config
	transcriber transcriber.Transcriber
	sink        Sink
	log         *slog.Logger

	frames    chan Frame
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	expected int64
	closed   bool

	// Unix nanos of the last accepted Push; read by run without mu.
	lastFrame atomic.Int64

	// Owned by run.
	buf          []byte
	bufRate      int
	streamedMs   int64
	current      *Segment
	segmentCount int
	chunkCount   int
	totalBytes   int64
}

// NewSegmenter starts the segmenter loop. ctx bounds backend calls; Close
// must be called to flush and release the loop.
func NewSegmenter(ctx context.Context, cfg Config, tr transcriber.Transcriber, sink Sink, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DefaultSampleRate <= 0 {
		cfg.DefaultSampleRate = 16000
	}
	s := &Segmenter{
		ctx:         ctx,
		cfg:         cfg,
		transcriber: tr,
		sink:        sink,
		log:         log,
		frames:      make(chan Frame, frameQueueSize),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

// Push validates the frame's sequence number and queues it for buffering.
func (s *Segmenter) Push(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if f.Seq != s.expected {
		s.log.Warn("audio sequence mismatch", "expected_seq", s.expected, "seq", f.Seq, "strict", s.cfg.StrictSequence)
		if s.cfg.StrictSequence {
			return fmt.Errorf("%w: expected %d, got %d", ErrSequenceMismatch, s.expected, f.Seq)
		}
	}
	s.expected = f.Seq + 1
	s.lastFrame.Store(time.Now().UnixNano())

	select {
	case s.frames <- f:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close flushes buffered audio, finalizes the pending partial and waits for
// the loop to exit. It is safe to call more than once.
func (s *Segmenter) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.closing)
	})
	<-s.done
}

func (s *Segmenter) run() {
	defer close(s.done)

	flush := time.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()
	silence := time.NewTimer(s.cfg.SilenceTimeout)
	silence.Stop()
	defer silence.Stop()

	for {
		select {
		case f := <-s.frames:
			s.buffer(f)
			silence.Reset(s.silenceRemaining())
		case <-flush.C:
			if s.drain() > 0 {
				silence.Reset(s.silenceRemaining())
			}
			s.flush()
		case <-silence.C:
			// Frames may have queued up while a flush was in flight.
			if wait := s.silenceRemaining(); wait > 0 {
				silence.Reset(wait)
				continue
			}
			s.drain()
			s.flush()
			s.finalize()
		case <-s.closing:
			s.drain()
			s.flush()
			s.finalize()
			s.log.Info("live stream closed", "total_bytes", s.totalBytes, "segments", s.segmentCount, "chunks", s.chunkCount)
			return
		}
	}
}

func (s *Segmenter) lastFrameAt() time.Time {
	return time.Unix(0, s.lastFrame.Load())
}

// silenceRemaining measures the silence window from the last frame's arrival,
// not from when the loop dequeued it.
func (s *Segmenter) silenceRemaining() time.Duration {
	return s.cfg.SilenceTimeout - time.Since(s.lastFrameAt())
}

func (s *Segmenter) drain() int {
	n := 0
	for {
		select {
		case f := <-s.frames:
			s.buffer(f)
			n++
		default:
			return n
		}
	}
}

func (s *Segmenter) buffer(f Frame) {
	rate := f.SampleRate
	if rate <= 0 {
		rate = s.cfg.DefaultSampleRate
	}
	if len(s.buf) > 0 && rate != s.bufRate {
		s.flush()
	}
	s.bufRate = rate
	pcm := audio.DownmixPCM16(f.PCM, f.Channels)
	s.buf = append(s.buf, pcm[:len(pcm)&^1]...)
	s.totalBytes += int64(len(f.PCM))
}

func (s *Segmenter) flush() {
	if len(s.buf) == 0 {
		return
	}
	pcm := s.buf
	s.buf = nil
	offsetMs := s.streamedMs
	durationMs := audio.DurationMs(pcm, s.bufRate)
	s.streamedMs += durationMs
	s.chunkCount++

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CallTimeout)
	defer cancel()
	res, err := s.transcriber.Transcribe(ctx, audio.EncodeWAV(pcm, s.bufRate), fmt.Sprintf("chunk-%d.wav", s.chunkCount))
	if err != nil {
		s.log.Warn("live chunk transcription failed", "chunk", s.chunkCount, "error", err)
		return
	}

	seg, ok := firstSegment(res, durationMs)
	if !ok {
		return
	}
	start := offsetMs + secondsToMs(seg.Start)
	end := offsetMs + secondsToMs(seg.End)
	text := strings.TrimSpace(seg.Text)

	if s.current == nil {
		s.current = &Segment{
			SegmentID: fmt.Sprintf("seg-%d", s.segmentCount),
			Text:      text,
			StartMs:   start,
			EndMs:     end,
			Speaker:   s.cfg.Speaker,
			IsPartial: true,
		}
		s.segmentCount++
	} else {
		s.current.Text += " " + text
		s.current.EndMs = max(s.current.EndMs, end)
	}
	s.sink.OnPartial(*s.current)
}

func (s *Segmenter) finalize() {
	if s.current == nil {
		return
	}
	seg := *s.current
	seg.IsPartial = false
	s.current = nil
	s.sink.OnFinal(seg)
}

// firstSegment picks the first recognised span, or the whole chunk when the
// backend returned text without timings.
func firstSegment(res transcriber.Result, durationMs int64) (transcriber.Segment, bool) {
	for _, seg := range res.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return seg, true
		}
	}
	if strings.TrimSpace(res.Text) == "" {
		return transcriber.Segment{}, false
	}
	return transcriber.Segment{Start: 0, End: float64(durationMs) / 1000, Text: res.Text}, true
}

func secondsToMs(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}
