package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scenelingua/engine/media"
)

// MicrophoneError reports that recording could not start because the
// microphone was unavailable. The recorder stays idle.
type MicrophoneError struct {
	Err error
}

func (e *MicrophoneError) Error() string {
	return fmt.Sprintf("recording unavailable: %v", e.Err)
}

func (e *MicrophoneError) Unwrap() error { return e.Err }

// MicSource is a live microphone stream owned by the recorder.
type MicSource interface {
	Stop()
}

// MicOpener acquires a microphone stream that delivers int16 chunks to
// onSamples. It returns the stream and its sample rate.
type MicOpener func(ctx context.Context, onSamples func([]int16)) (MicSource, int, error)

// ArenaMic adapts a media arena into a MicOpener.
func ArenaMic(arena *media.Arena, deviceID int) MicOpener {
	return func(ctx context.Context, onSamples func([]int16)) (MicSource, int, error) {
		src, err := arena.Start(ctx, media.KindMicrophone, media.Constraints{
			DeviceID:  deviceID,
			OnSamples: onSamples,
		})
		if err != nil {
			return nil, 0, err
		}
		mic := src.(*media.MicrophoneSource)
		return arenaMicSource{arena: arena}, mic.SampleRate, nil
	}
}

type arenaMicSource struct {
	arena *media.Arena
}

// Stop releases through the arena so it never holds a stale handle.
func (s arenaMicSource) Stop() { s.arena.Stop(media.KindMicrophone) }

// Recorder buffers microphone audio into a single clip per start/stop
// span. States: idle, recording.
type Recorder struct {
	open MicOpener

	mu         sync.Mutex
	recording  bool
	samples    []int16
	src        MicSource
	sampleRate int
}

func New(open MicOpener) *Recorder {
	return &Recorder{open: open}
}

// Recording reports whether a span is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Start begins buffering from the microphone. Calling Start while
// already recording is a no-op. On acquisition failure the recorder
// stays idle and a *MicrophoneError is returned.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	src, rate, err := r.open(ctx, r.append)
	if err != nil {
		return &MicrophoneError{Err: err}
	}

	r.mu.Lock()
	r.recording = true
	r.samples = r.samples[:0]
	r.src = src
	r.sampleRate = rate
	r.mu.Unlock()

	slog.Debug("Recording started", "sampleRate", rate)
	return nil
}

// Stop flushes the buffered span into one AudioClip and releases the
// microphone. Stop while idle returns nil.
func (r *Recorder) Stop() *AudioClip {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	src := r.src
	r.src = nil
	samples := r.samples
	r.samples = nil
	rate := r.sampleRate
	r.mu.Unlock()

	src.Stop()

	clip, err := encodeClip(samples, rate)
	if err != nil {
		slog.Error("Failed to encode clip", "error", err)
		return nil
	}

	slog.Info("Recording stopped",
		"samples", len(samples),
		"bytes", len(clip.Data),
		"durationSeconds", clip.Duration.Seconds())
	return clip
}

func (r *Recorder) append(chunk []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.samples = append(r.samples, chunk...)
}
