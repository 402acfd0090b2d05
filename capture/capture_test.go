package capture

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	closed   bool
	startErr error
	closeErr error
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

type fakeSource struct {
	openErr  error
	startErr error
	closeErr error
	deliver  func([]int16)
	stream   *fakeStream
	opened   int
}

func (f *fakeSource) Open(cfg Config, deliver func([]int16)) (Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	f.deliver = deliver
	f.stream = &fakeStream{startErr: f.startErr, closeErr: f.closeErr}
	return f.stream, nil
}

func TestCaptureCollectsBlocksInOrder(t *testing.T) {
	src := &fakeSource{}
	c := New(src, DefaultConfig(), nil)

	require.NoError(t, c.Begin())
	assert.True(t, c.Active())

	block := []int16{1, 2, 3}
	src.deliver(block)
	block[0] = 99 // the callback buffer is reused by the driver
	src.deliver([]int16{4, 5})

	clip, err := c.End()
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4, 5}, clip.Samples)
	assert.Equal(t, 2, clip.Blocks)
	assert.Zero(t, clip.Dropped)
	assert.False(t, clip.Empty())
	assert.False(t, c.Active())
	assert.True(t, src.stream.stopped)
	assert.True(t, src.stream.closed)
}

func TestCaptureEmptyClip(t *testing.T) {
	src := &fakeSource{}
	c := New(src, DefaultConfig(), nil)

	require.NoError(t, c.Begin())
	clip, err := c.End()
	require.NoError(t, err)
	assert.True(t, clip.Empty())
	assert.Zero(t, clip.Level())
}

func TestCaptureDropsWhenQueueFull(t *testing.T) {
	src := &fakeSource{}
	c := New(src, Config{QueueDepth: 1}, nil)

	require.NoError(t, c.Begin())
	for i := 0; i < 200; i++ {
		src.deliver([]int16{int16(i)})
	}

	clip, err := c.End()
	require.NoError(t, err)
	assert.Equal(t, 200, clip.Blocks+clip.Dropped)
	assert.Equal(t, clip.Blocks, len(clip.Samples))
}

func TestCaptureBeginTwice(t *testing.T) {
	src := &fakeSource{}
	c := New(src, DefaultConfig(), nil)

	require.NoError(t, c.Begin())
	assert.ErrorIs(t, c.Begin(), ErrAlreadyCapturing)
	assert.Equal(t, 1, src.opened)
	require.NoError(t, c.Discard())
}

func TestCaptureEndWhileIdle(t *testing.T) {
	c := New(&fakeSource{}, DefaultConfig(), nil)

	_, err := c.End()
	assert.ErrorIs(t, err, ErrNotCapturing)
	assert.ErrorIs(t, c.Discard(), ErrNotCapturing)
}

func TestCaptureDiscard(t *testing.T) {
	src := &fakeSource{}
	c := New(src, DefaultConfig(), nil)

	require.NoError(t, c.Begin())
	src.deliver([]int16{7, 7, 7})
	require.NoError(t, c.Discard())
	assert.False(t, c.Active())

	require.NoError(t, c.Begin())
	clip, err := c.End()
	require.NoError(t, err)
	assert.True(t, clip.Empty(), "discarded audio must not leak into the next capture")
}

func TestCaptureDeviceErrors(t *testing.T) {
	openErr := errors.New("no device")
	c := New(&fakeSource{openErr: openErr}, DefaultConfig(), nil)

	err := c.Begin()
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "open", capErr.Op)
	assert.ErrorIs(t, err, openErr)
	assert.False(t, c.Active())

	src := &fakeSource{startErr: errors.New("busy")}
	c = New(src, DefaultConfig(), nil)
	err = c.Begin()
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "start", capErr.Op)
	assert.True(t, src.stream.closed)
	assert.False(t, c.Active())
}

func TestCaptureStartFailureKeepsCloseError(t *testing.T) {
	startErr := errors.New("busy")
	closeErr := errors.New("close failed")
	c := New(&fakeSource{startErr: startErr, closeErr: closeErr}, DefaultConfig(), nil)

	err := c.Begin()
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "start", capErr.Op)
	assert.ErrorIs(t, err, startErr)
	assert.ErrorIs(t, err, closeErr)
	assert.False(t, c.Active())

	// a failed Begin leaves the capture usable
	_, err = c.End()
	assert.ErrorIs(t, err, ErrNotCapturing)
}

func TestClipLevel(t *testing.T) {
	clip := Clip{Samples: []int16{-100, 100, -300, 300}}
	assert.InDelta(t, 200.0, clip.Level(), 1e-9)
}
