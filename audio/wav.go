package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/youpy/go-wav"
)

const (
	SampleRate    = 16000 // Rate required by Whisper
	Channels      = 1     // Mono audio
	BitsPerSample = 16    // Using int16 for samples

	bytesPerSample = BitsPerSample / 8

	// TempPrefix marks clip artifacts written for upload
	TempPrefix = "RecordTemp_"
)

// ErrUnsupportedFormat is returned by ReadWav for anything other than
// 16 kHz mono 16-bit PCM.
var ErrUnsupportedFormat = errors.New("unsupported wav format")

// PCMBytes packs samples as little-endian signed 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// Samples unpacks little-endian signed 16-bit PCM. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/bytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
	}
	return out
}

// Duration returns the playback length of a PCM buffer in seconds.
func Duration(pcm []byte) float64 {
	return float64(len(pcm)/bytesPerSample) / float64(SampleRate)
}

// WriteWav encodes pcm as a complete WAV stream.
func WriteWav(w io.Writer, pcm []byte) error {
	samples := Samples(pcm)
	writer := wav.NewWriter(w, uint32(len(samples)), Channels, SampleRate, BitsPerSample)

	frames := make([]wav.Sample, len(samples))
	for i, s := range samples {
		frames[i].Values[0] = int(s)
	}
	if err := writer.WriteSamples(frames); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	return nil
}

// WriteTempWav writes pcm to a new RecordTemp_<id>.wav file in dir and
// returns its path. The caller owns the file and must remove it.
func WriteTempWav(dir string, pcm []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	path := filepath.Join(dir, TempPrefix+id+".wav")

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create temp wav: %w", err)
	}

	if err := WriteWav(file, pcm); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp wav: %w", err)
	}
	return path, nil
}

// ReadWav loads a 16 kHz mono 16-bit WAV file and returns its PCM payload.
func ReadWav(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav: %w", err)
	}

	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to parse wav header: %w", err)
	}
	if format.NumChannels != Channels || format.SampleRate != SampleRate || format.BitsPerSample != BitsPerSample {
		return nil, fmt.Errorf("%w: %d Hz, %d channel(s), %d bit",
			ErrUnsupportedFormat, format.SampleRate, format.NumChannels, format.BitsPerSample)
	}

	var samples []int16
	for {
		chunk, err := reader.ReadSamples(4096)
		for _, s := range chunk {
			samples = append(samples, int16(s.Values[0]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav samples: %w", err)
		}
	}
	return PCMBytes(samples), nil
}

// CleanupTemp removes RecordTemp_* leftovers from a previous run.
func CleanupTemp(dir string) {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Debug("Failed to read temp dir", "error", err, "path", dir)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to remove stale clip", "error", err, "path", path)
			continue
		}
		slog.Debug("Removed stale clip", "path", path)
	}
}
