package capture

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// PortAudio opens input streams on the default device, or on DeviceID when it
// is non-zero. portaudio.Initialize must have been called by the process.
type PortAudio struct {
	DeviceID int
}

func (p PortAudio) Open(cfg Config, deliver func([]int16)) (Stream, error) {
	device, err := p.device()
	if err != nil {
		return nil, err
	}

	slog.Debug("Opening audio device",
		"deviceName", device.Name,
		"defaultSampleRate", device.DefaultSampleRate,
		"inputChannels", device.MaxInputChannels)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		deliver(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	return stream, nil
}

func (p PortAudio) device() (*portaudio.DeviceInfo, error) {
	if p.DeviceID <= 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	if p.DeviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID %d", p.DeviceID)
	}

	device := devices[p.DeviceID]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an input device", p.DeviceID, device.Name)
	}
	return device, nil
}

// Device describes an input device by its index in portaudio.Devices().
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// ListDevices initializes PortAudio on its own and returns the input devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]Device, 0)
	for i, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, Device{
				ID:                i,
				Name:              device.Name,
				MaxInputChannels:  device.MaxInputChannels,
				DefaultSampleRate: device.DefaultSampleRate,
			})
		}
	}
	return inputDevices, nil
}
