package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bosley/dictate/audio"
	"github.com/bosley/dictate/capture"
	"github.com/bosley/dictate/hotkey"
	"github.com/bosley/dictate/worker"
)

const (
	TitleCapture = "Recording Error"
	TitleBusy    = "Whisper"

	MessageBusy = "Already recording/processing..."

	DefaultInboxSize = 32
)

// ErrStopped is returned by Post once Run has exited.
var ErrStopped = errors.New("controller stopped")

type Recorder interface {
	Begin() error
	End() (capture.Clip, error)
	Discard() error
}

type Submitter interface {
	Submit(job worker.Job) error
}

type Presenter interface {
	Notify(title, message string)
	SetState(mode Mode)
}

type message struct {
	intent hotkey.Intent
	result *worker.Result
	ack    chan struct{}
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithInboxSize(n int) Option {
	return func(c *Controller) { c.inboxSize = n }
}

// Controller owns the recording state machine. All transitions happen on the
// goroutine running Run; other goroutines talk to it through Post and Finished.
type Controller struct {
	recorder  Recorder
	submitter Submitter
	presenter Presenter

	logger    *slog.Logger
	now       func() time.Time
	inboxSize int

	inbox    chan message
	quit     chan struct{}
	quitOnce sync.Once
	mode     atomic.Int32

	session Session
}

func New(recorder Recorder, submitter Submitter, presenter Presenter, opts ...Option) *Controller {
	c := &Controller{
		recorder:  recorder,
		submitter: submitter,
		presenter: presenter,
		logger:    slog.Default(),
		now:       time.Now,
		inboxSize: DefaultInboxSize,
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.inboxSize <= 0 {
		c.inboxSize = DefaultInboxSize
	}
	c.inbox = make(chan message, c.inboxSize)
	return c
}

// SetSubmitter wires the worker after construction, since the worker reports
// back through Finished.
func (c *Controller) SetSubmitter(s Submitter) {
	c.submitter = s
}

// Mode returns the current state. It is safe to call from any goroutine.
func (c *Controller) Mode() Mode {
	return Mode(c.mode.Load())
}

// Post queues an intent for the run loop.
func (c *Controller) Post(ctx context.Context, intent hotkey.Intent) error {
	select {
	case <-c.quit:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- message{intent: intent}:
		return nil
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finished reports a completed job. It matches worker's onDone signature.
func (c *Controller) Finished(result worker.Result) {
	select {
	case c.inbox <- message{result: &result}:
	case <-c.quit:
		c.logger.Debug("Dropping job result after shutdown", "jobID", result.JobID)
	}
}

// Sync blocks until every message queued before it has been applied.
func (c *Controller) Sync(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case c.inbox <- message{ack: ack}:
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies queued messages in arrival order until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Debug("Controller starting")
	defer func() {
		if c.session.State == Recording {
			if err := c.recorder.Discard(); err != nil {
				c.logger.Warn("Failed to discard capture on shutdown", "error", err)
			}
			c.setMode(Idle)
		}
		c.quitOnce.Do(func() { close(c.quit) })
		c.logger.Debug("Controller shutting down")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.inbox:
			switch {
			case msg.result != nil:
				c.handleResult(*msg.result)
			case msg.ack != nil:
				close(msg.ack)
			default:
				c.handleIntent(msg.intent)
			}
		}
	}
}

func (c *Controller) handleIntent(intent hotkey.Intent) {
	c.logger.Debug("Handling intent", "intent", intent, "mode", c.session.State)

	switch c.session.State {
	case Idle:
		switch {
		case intent == hotkey.StartHold:
			c.start(hotkey.StartHold)
		case intent.IsToggle(), intent == hotkey.MenuToggle:
			c.start(hotkey.ToggleStart)
		}

	case Recording:
		switch {
		case intent == hotkey.Cancel:
			c.cancel()
		case c.session.stops(intent):
			c.stop()
		}

	case Processing:
		switch {
		case intent.IsStart(), intent == hotkey.MenuToggle:
			c.presenter.Notify(TitleBusy, MessageBusy)
		case intent == hotkey.Cancel:
			c.logger.Info("Cancel ignored while processing")
		}
	}
}

func (c *Controller) start(origin hotkey.Intent) {
	if err := c.recorder.Begin(); err != nil {
		c.logger.Error("Failed to start recording", "error", err)
		c.presenter.Notify(TitleCapture, err.Error())
		return
	}
	c.session = Session{
		State:     Recording,
		Origin:    origin,
		StartedAt: c.now(),
	}
	c.setMode(Recording)
	c.logger.Info("Recording started", "origin", origin)
}

func (c *Controller) stop() {
	clip, err := c.recorder.End()
	if err != nil {
		c.logger.Error("Failed to stop recording", "error", err)
		c.presenter.Notify(TitleCapture, err.Error())
		c.reset()
		return
	}
	if clip.Empty() {
		c.logger.Info("Recording stopped, nothing captured")
		c.reset()
		return
	}

	job := worker.Job{
		ID:              uuid.New(),
		Audio:           audio.PCMBytes(clip.Samples),
		DurationSeconds: c.now().Sub(c.session.StartedAt).Seconds(),
		CreatedAt:       c.now(),
	}

	c.session.State = Processing
	c.setMode(Processing)

	if err := c.submitter.Submit(job); err != nil {
		c.logger.Error("Failed to submit transcription job", "error", err, "jobID", job.ID)
		c.reset()
		return
	}
	c.logger.Info("Recording stopped, job submitted",
		"jobID", job.ID,
		"durationSeconds", job.DurationSeconds,
		"clipSeconds", audio.Duration(job.Audio),
		"blocks", clip.Blocks)
}

func (c *Controller) cancel() {
	if err := c.recorder.Discard(); err != nil {
		c.logger.Warn("Failed to discard recording", "error", err)
	}
	c.logger.Info("Recording cancelled")
	c.reset()
}

func (c *Controller) handleResult(result worker.Result) {
	if c.session.State != Processing {
		c.logger.Warn("Unexpected job result", "jobID", result.JobID, "mode", c.session.State)
		return
	}
	c.logger.Debug("Job finished", "jobID", result.JobID, "elapsed", result.Elapsed, "error", result.Err)
	c.reset()
}

func (c *Controller) reset() {
	c.session = Session{State: Idle}
	c.setMode(Idle)
}

func (c *Controller) setMode(m Mode) {
	if c.Mode() == m {
		return
	}
	c.presenter.SetState(m)
	c.mode.Store(int32(m))
}
