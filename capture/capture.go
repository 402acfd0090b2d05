package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	SampleRate = 16000
	Channels   = 1

	DefaultFramesPerBuffer = 1024
	DefaultQueueDepth      = 512
)

var (
	ErrAlreadyCapturing = errors.New("capture already in progress")
	ErrNotCapturing     = errors.New("no capture in progress")
)

// Error reports a failure of the underlying audio device.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	SampleRate      int
	FramesPerBuffer int
	QueueDepth      int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      SampleRate,
		FramesPerBuffer: DefaultFramesPerBuffer,
		QueueDepth:      DefaultQueueDepth,
	}
}

// Source opens input streams. deliver is invoked from the audio thread with
// a block that is only valid for the duration of the call.
type Source interface {
	Open(cfg Config, deliver func([]int16)) (Stream, error)
}

type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Clip is the flushed result of one capture.
type Clip struct {
	Samples []int16
	Blocks  int
	Dropped int
	Elapsed time.Duration
}

func (c Clip) Empty() bool {
	return len(c.Samples) == 0
}

// Level returns the mean absolute amplitude of the clip.
func (c Clip) Level() float64 {
	return meanAmplitude(c.Samples)
}

func meanAmplitude(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var total float64
	for _, sample := range chunk {
		total += math.Abs(float64(sample))
	}
	return total / float64(len(chunk))
}

type active struct {
	stream  Stream
	blocks  chan []int16
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
	started time.Time

	samples []int16
	count   int
}

// Capture accumulates microphone blocks between Begin and End.
type Capture struct {
	source Source
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	cur *active
}

func New(source Source, cfg Config, logger *slog.Logger) *Capture {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// Begin opens and starts a fresh input stream.
func (c *Capture) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != nil {
		return ErrAlreadyCapturing
	}

	a := &active{
		blocks: make(chan []int16, c.cfg.QueueDepth),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	stream, err := c.source.Open(c.cfg, func(in []int16) {
		block := make([]int16, len(in))
		copy(block, in)
		select {
		case a.blocks <- block:
		default:
			a.dropped.Add(1)
		}
	})
	if err != nil {
		return &Error{Op: "open", Err: err}
	}
	a.stream = stream

	go a.collect()

	if err := stream.Start(); err != nil {
		close(a.quit)
		<-a.done
		if closeErr := stream.Close(); closeErr != nil {
			err = errors.Join(err, &Error{Op: "close", Err: closeErr})
		}
		return &Error{Op: "start", Err: err}
	}

	a.started = time.Now()
	c.cur = a
	c.logger.Debug("Capture started",
		"sampleRate", c.cfg.SampleRate,
		"framesPerBuffer", c.cfg.FramesPerBuffer)
	return nil
}

// End stops the stream and returns everything captured since Begin.
func (c *Capture) End() (Clip, error) {
	a, err := c.take()
	if err != nil {
		return Clip{}, err
	}

	stopErr := a.shutdown()

	clip := Clip{
		Samples: a.samples,
		Blocks:  a.count,
		Dropped: int(a.dropped.Load()),
		Elapsed: time.Since(a.started),
	}

	if clip.Dropped > 0 {
		c.logger.Warn("Audio blocks dropped during capture", "dropped", clip.Dropped)
	}
	c.logger.Debug("Capture finished",
		"blocks", clip.Blocks,
		"samples", len(clip.Samples),
		"elapsed", clip.Elapsed,
		"level", clip.Level())

	if stopErr != nil {
		return clip, stopErr
	}
	return clip, nil
}

// Discard stops the stream and drops the buffered audio.
func (c *Capture) Discard() error {
	a, err := c.take()
	if err != nil {
		return err
	}
	err = a.shutdown()
	c.logger.Debug("Capture discarded", "blocks", a.count)
	return err
}

func (c *Capture) take() (*active, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil, ErrNotCapturing
	}
	a := c.cur
	c.cur = nil
	return a, nil
}

// shutdown stops the device first so no further callbacks arrive, then waits
// for the collector to drain the queue.
func (a *active) shutdown() error {
	var errs []error
	if err := a.stream.Stop(); err != nil {
		errs = append(errs, &Error{Op: "stop", Err: err})
	}
	if err := a.stream.Close(); err != nil {
		errs = append(errs, &Error{Op: "close", Err: err})
	}
	close(a.quit)
	<-a.done
	return errors.Join(errs...)
}

func (a *active) collect() {
	defer close(a.done)
	for {
		select {
		case block := <-a.blocks:
			a.append(block)
		case <-a.quit:
			for {
				select {
				case block := <-a.blocks:
					a.append(block)
				default:
					return
				}
			}
		}
	}
}

func (a *active) append(block []int16) {
	a.samples = append(a.samples, block...)
	a.count++
}
