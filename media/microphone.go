package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	defaultSampleRate      = 44100
	defaultChannels        = 1
	defaultFramesPerBuffer = 1024
)

// MicrophoneSource is a live PortAudio input stream delivering int16
// chunks to the OnSamples callback supplied at start.
type MicrophoneSource struct {
	stream *portaudio.Stream

	mu      sync.Mutex
	stopped bool

	SampleRate int
	Channels   int
}

func startMicrophone(ctx context.Context, c Constraints) (*MicrophoneSource, error) {
	if c.OnSamples == nil {
		return nil, fmt.Errorf("no sample callback configured")
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = defaultChannels
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = defaultFramesPerBuffer
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize PortAudio: %w", err)
	}

	params, err := inputParams(c)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &MicrophoneSource{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
	}

	onSamples := c.OnSamples
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		onSamples(in)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start audio stream: %w", err)
	}

	s.stream = stream
	return s, nil
}

func inputParams(c Constraints) (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if c.DeviceID > 0 {
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("list audio devices: %w", err)
		}
		if c.DeviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", c.DeviceID)
		}
		device = devices[c.DeviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", c.DeviceID, device.Name)
		}
		slog.Info("Using specified audio device",
			"deviceID", c.DeviceID,
			"deviceName", device.Name,
			"inputChannels", device.MaxInputChannels)
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("default input device: %w", err)
		}
		slog.Info("Using default audio device", "deviceName", device.Name)
	}

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: c.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.SampleRate),
		FramesPerBuffer: c.FramesPerBuffer,
	}, nil
}

func (s *MicrophoneSource) Kind() Kind { return KindMicrophone }

// Stop halts capture and releases the device. Idempotent.
func (s *MicrophoneSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if err := s.stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}
	if err := s.stream.Close(); err != nil {
		slog.Error("Failed to close audio stream", "error", err)
	}
	portaudio.Terminate()
}

// ListInputDevices enumerates the available audio input devices.
func ListInputDevices() ([]portaudio.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	inputs := make([]portaudio.DeviceInfo, 0)
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, *d)
		}
	}
	return inputs, nil
}
