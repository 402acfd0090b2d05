package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/dictate/audio"
	"github.com/bosley/dictate/history"
)

type fakeBackend struct {
	mu      sync.Mutex
	text    string
	err     error
	block   chan struct{}
	paths   []string
	existed []bool
}

func (f *fakeBackend) Transcribe(ctx context.Context, wavPath string) (string, error) {
	_, statErr := os.Stat(wavPath)
	f.mu.Lock()
	f.paths = append(f.paths, wavPath)
	f.existed = append(f.existed, statErr == nil)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type notice struct {
	title, message string
}

type fakePresenter struct {
	mu        sync.Mutex
	notices   []notice
	pasted    []string
	published []history.Entry
}

func (p *fakePresenter) Notify(title, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, notice{title, message})
}

func (p *fakePresenter) CopyAndPaste(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pasted = append(p.pasted, text)
}

func (p *fakePresenter) Publish(entry history.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, entry)
}

func (p *fakePresenter) snapshot() ([]notice, []string, []history.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notice(nil), p.notices...), append([]string(nil), p.pasted...), append([]history.Entry(nil), p.published...)
}

type failingHistory struct{}

func (failingHistory) Append(history.Entry) error { return errors.New("disk full") }

func newJob(seconds float64) Job {
	samples := make([]int16, int(seconds*audio.SampleRate))
	pcm := audio.PCMBytes(samples)
	return Job{
		ID:              uuid.New(),
		Audio:           pcm,
		DurationSeconds: audio.Duration(pcm),
		CreatedAt:       time.Now(),
	}
}

type harness struct {
	worker    *Worker
	backend   *fakeBackend
	presenter *fakePresenter
	store     *history.Store
	tempDir   string
	results   chan Result
}

func newHarness(t *testing.T, backend *fakeBackend, hist History) *harness {
	t.Helper()
	h := &harness{
		backend:   backend,
		presenter: &fakePresenter{},
		tempDir:   t.TempDir(),
		results:   make(chan Result, 4),
	}
	if hist == nil {
		h.store = history.New(filepath.Join(t.TempDir(), history.DefaultFile), nil)
		hist = h.store
	}
	h.worker = New(backend, hist, h.presenter, func(r Result) { h.results <- r },
		WithTempDir(h.tempDir),
		WithTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	h.worker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		h.worker.Wait()
	})
	return h
}

func (h *harness) result(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestSuccessfulJob(t *testing.T) {
	h := newHarness(t, &fakeBackend{text: "hello world"}, nil)

	job := newJob(2)
	require.NoError(t, h.worker.Submit(job))
	r := h.result(t)

	assert.Equal(t, job.ID, r.JobID)
	assert.Equal(t, "hello world", r.Text)
	assert.NoError(t, r.Err)
	assert.False(t, h.worker.Busy())

	entries := h.store.LoadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello world", entries[0].Text)

	notices, pasted, published := h.presenter.snapshot()
	assert.Equal(t, []notice{
		{"Whisper", "Transcribing 2.00 seconds..."},
		{TitleResult, "hello world"},
	}, notices)
	assert.Equal(t, []string{"hello world"}, pasted)
	assert.Equal(t, entries, published)
}

func TestTempFileRemoved(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	h := newHarness(t, backend, nil)

	require.NoError(t, h.worker.Submit(newJob(0.5)))
	h.result(t)

	require.Len(t, backend.paths, 1)
	assert.True(t, backend.existed[0], "backend must see the clip on disk")
	assert.Equal(t, h.tempDir, filepath.Dir(backend.paths[0]))
	assert.NoFileExists(t, backend.paths[0])

	files, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestBackendErrorSkipsHistory(t *testing.T) {
	backend := &fakeBackend{err: errors.New("Authentication failed")}
	h := newHarness(t, backend, nil)

	require.NoError(t, h.worker.Submit(newJob(1)))
	r := h.result(t)

	assert.Error(t, r.Err)
	assert.Empty(t, h.store.LoadAll())
	assert.NoFileExists(t, backend.paths[0])

	notices, pasted, published := h.presenter.snapshot()
	require.Len(t, notices, 2)
	assert.Equal(t, notice{TitleError, "Authentication failed"}, notices[1])
	assert.Empty(t, pasted)
	assert.Empty(t, published)
}

func TestBlankTextStoredNotPasted(t *testing.T) {
	h := newHarness(t, &fakeBackend{text: "  "}, nil)

	require.NoError(t, h.worker.Submit(newJob(1)))
	h.result(t)

	assert.Len(t, h.store.LoadAll(), 1)
	_, pasted, _ := h.presenter.snapshot()
	assert.Empty(t, pasted)
}

func TestHistoryFailureNotFatal(t *testing.T) {
	h := newHarness(t, &fakeBackend{text: "kept"}, failingHistory{})

	require.NoError(t, h.worker.Submit(newJob(1)))
	r := h.result(t)

	assert.NoError(t, r.Err)
	_, pasted, _ := h.presenter.snapshot()
	assert.Equal(t, []string{"kept"}, pasted)
}

func TestSingleFlight(t *testing.T) {
	backend := &fakeBackend{text: "first", block: make(chan struct{})}
	h := newHarness(t, backend, nil)

	require.NoError(t, h.worker.Submit(newJob(1)))
	assert.True(t, h.worker.Busy())
	assert.ErrorIs(t, h.worker.Submit(newJob(1)), ErrBusy)

	close(backend.block)
	h.result(t)

	require.NoError(t, h.worker.Submit(newJob(1)))
	h.result(t)

	assert.Len(t, backend.paths, 2)
	assert.Len(t, h.store.LoadAll(), 2)
}

func TestTimeout(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	presenter := &fakePresenter{}
	results := make(chan Result, 1)

	w := New(backend, history.New(filepath.Join(t.TempDir(), history.DefaultFile), nil), presenter,
		func(r Result) { results <- r },
		WithTempDir(t.TempDir()),
		WithTimeout(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		w.Wait()
	}()
	w.Start(ctx)

	require.NoError(t, w.Submit(newJob(0.1)))
	select {
	case r := <-results:
		assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}
