package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const playbackFrames = 1024

// Play decodes a clip written by WriteWav and sends it to the default output
// device. It returns once the clip has been played or ctx is cancelled.
func Play(ctx context.Context, filename string) error {
	pcm, err := ReadWav(filename)
	if err != nil {
		return err
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	slog.Info("Playing clip", "file", filename, "seconds", Duration(pcm))
	return PlaySamples(ctx, Samples(pcm))
}

// PlaySamples plays mono samples at SampleRate. PortAudio must already be
// initialized.
func PlaySamples(ctx context.Context, samples []int16) error {
	finished := make(chan struct{})
	var once sync.Once
	pos := 0

	stream, err := portaudio.OpenDefaultStream(0, 1, SampleRate, playbackFrames, func(out []int16) {
		n := copy(out, samples[pos:])
		pos += n
		clear(out[n:])
		if pos >= len(samples) {
			once.Do(func() { close(finished) })
		}
	})
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	select {
	case <-finished:
	case <-ctx.Done():
	}

	return stream.Stop()
}
