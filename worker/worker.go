package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bosley/dictate/audio"
	"github.com/bosley/dictate/history"
)

// ErrBusy is returned by Submit while a job is in flight.
var ErrBusy = errors.New("transcription already in progress")

const DefaultTimeout = 2 * time.Minute

const (
	TitleProgress = "Whisper"
	TitleResult   = "Whisper Result"
	TitleError    = "Whisper Error"
)

// Job is one finished capture waiting to be transcribed
type Job struct {
	ID              uuid.UUID
	Audio           []byte
	DurationSeconds float64
	CreatedAt       time.Time
}

// Result is reported once per job after it has been fully handled
type Result struct {
	JobID   uuid.UUID
	Text    string
	Err     error
	Elapsed time.Duration
}

type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type History interface {
	Append(entry history.Entry) error
}

type Presenter interface {
	Notify(title, message string)
	CopyAndPaste(text string)
}

// Publisher is implemented by presenters that want every stored transcript.
type Publisher interface {
	Publish(entry history.Entry)
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithTimeout(d time.Duration) Option {
	return func(w *Worker) { w.timeout = d }
}

func WithTempDir(dir string) Option {
	return func(w *Worker) { w.tempDir = dir }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// Worker transcribes at most one job at a time.
type Worker struct {
	backend   Transcriber
	history   History
	presenter Presenter
	onDone    func(Result)

	logger  *slog.Logger
	timeout time.Duration
	tempDir string
	now     func() time.Time

	jobs     chan Job
	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// New creates a worker. onDone is called after each job, once the worker is
// ready to accept the next one.
func New(backend Transcriber, hist History, presenter Presenter, onDone func(Result), opts ...Option) *Worker {
	w := &Worker{
		backend:   backend,
		history:   hist,
		presenter: presenter,
		onDone:    onDone,
		logger:    slog.Default(),
		timeout:   DefaultTimeout,
		now:       time.Now,
		jobs:      make(chan Job, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Busy reports whether a job is in flight.
func (w *Worker) Busy() bool {
	return w.inFlight.Load()
}

// Submit hands job to the worker. It never queues: a second job while one is
// in flight is rejected with ErrBusy.
func (w *Worker) Submit(job Job) error {
	if !w.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	w.jobs <- job
	return nil
}

// Start runs the processing loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		w.logger.Debug("Worker starting")
		defer func() {
			w.logger.Debug("Worker shutting down")
			w.wg.Done()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case job := <-w.jobs:
				result := w.process(ctx, job)
				w.inFlight.Store(false)
				if w.onDone != nil {
					w.onDone(result)
				}
			}
		}
	}()
}

// Wait blocks until the loop started by Start has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) process(ctx context.Context, job Job) Result {
	started := time.Now()
	result := Result{JobID: job.ID}

	w.logger.Info("Processing transcription job",
		"jobID", job.ID,
		"durationSeconds", job.DurationSeconds,
		"bytes", len(job.Audio))

	w.presenter.Notify(TitleProgress, fmt.Sprintf("Transcribing %.2f seconds...", job.DurationSeconds))

	text, err := w.transcribe(ctx, job)
	result.Elapsed = time.Since(started)
	if err != nil {
		w.logger.Error("Failed to transcribe audio", "error", err, "jobID", job.ID)
		w.presenter.Notify(TitleError, err.Error())
		result.Err = err
		return result
	}
	result.Text = text

	entry := history.NewEntry(w.now(), text)
	if err := w.history.Append(entry); err != nil {
		w.logger.Error("Failed to append history", "error", err, "jobID", job.ID)
	}
	if p, ok := w.presenter.(Publisher); ok {
		p.Publish(entry)
	}

	w.presenter.Notify(TitleResult, text)
	if strings.TrimSpace(text) != "" {
		w.presenter.CopyAndPaste(text)
	}

	w.logger.Info("Successfully transcribed audio",
		"jobID", job.ID,
		"elapsed", result.Elapsed,
		"text", text)
	return result
}

func (w *Worker) transcribe(ctx context.Context, job Job) (string, error) {
	path, err := audio.WriteTempWav(w.tempDir, job.Audio)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Failed to remove temp clip", "error", err, "path", path)
		}
	}()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	return w.backend.Transcribe(ctx, path)
}
