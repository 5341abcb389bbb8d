package media

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// Kind selects which device stream an arena operation targets.
type Kind string

const (
	KindCamera     Kind = "camera"
	KindMicrophone Kind = "microphone"
)

// DeviceError reports that a device stream could not be acquired:
// the device is missing, busy, or access was denied.
type DeviceError struct {
	Kind Kind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s device unavailable: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Source is a live device stream held by the arena.
type Source interface {
	Kind() Kind
	Stop()
}

// FrameProvider exposes the current video frame of a camera source.
type FrameProvider interface {
	// Frame returns the most recent frame, or ok=false when none is
	// available yet.
	Frame() (image.Image, bool)
}

// Surface is a renderable target the live camera feed binds to. The
// presentation layer implements it; the arena binds on camera start and
// unbinds on stop.
type Surface interface {
	BindFrames(FrameProvider)
	Unbind()
}

// Constraints configures device acquisition. Camera sources read
// FrameDir; microphone sources read the audio fields.
type Constraints struct {
	FrameDir string

	DeviceID        int
	SampleRate      int
	Channels        int
	FramesPerBuffer int

	// OnSamples receives each captured audio chunk. The slice is only
	// valid for the duration of the call.
	OnSamples func([]int16)
}

// Arena owns at most one live stream per kind. Start always releases the
// existing stream of the same kind before acquiring a new one, so two
// concurrent camera (or microphone) streams can never exist.
type Arena struct {
	mu      sync.Mutex
	sources map[Kind]Source
	surface Surface
}

// NewArena creates an arena. surface may be nil when nothing renders the
// camera feed.
func NewArena(surface Surface) *Arena {
	return &Arena{
		sources: make(map[Kind]Source),
		surface: surface,
	}
}

// Start acquires a stream of the given kind, replacing any prior stream
// of that kind. Acquisition failures are reported as *DeviceError and
// leave the arena without a stream of that kind.
func (a *Arena) Start(ctx context.Context, kind Kind, c Constraints) (Source, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.sources[kind]; ok {
		slog.Debug("Replacing existing media source", "kind", kind)
		a.releaseLocked(kind, prev)
	}

	var src Source
	switch kind {
	case KindCamera:
		cam, err := startCamera(ctx, c)
		if err != nil {
			return nil, &DeviceError{Kind: kind, Err: err}
		}
		src = cam
	case KindMicrophone:
		mic, err := startMicrophone(ctx, c)
		if err != nil {
			return nil, &DeviceError{Kind: kind, Err: err}
		}
		src = mic
	default:
		return nil, &DeviceError{Kind: kind, Err: fmt.Errorf("unknown media kind %q", kind)}
	}

	a.sources[kind] = src
	if kind == KindCamera && a.surface != nil {
		if fp, ok := src.(FrameProvider); ok {
			a.surface.BindFrames(fp)
		}
	}
	slog.Debug("Media source started", "kind", kind)
	return src, nil
}

// Stop releases the stream of the given kind. Stopping a kind that is
// not running is a no-op.
func (a *Arena) Stop(kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src, ok := a.sources[kind]
	if !ok {
		return
	}
	a.releaseLocked(kind, src)
	slog.Debug("Media source stopped", "kind", kind)
}

// StopAll releases every held stream. Idempotent.
func (a *Arena) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for kind, src := range a.sources {
		a.releaseLocked(kind, src)
	}
}

// Active reports whether a stream of the given kind is currently held.
func (a *Arena) Active(kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sources[kind]
	return ok
}

func (a *Arena) releaseLocked(kind Kind, src Source) {
	if kind == KindCamera && a.surface != nil {
		a.surface.Unbind()
	}
	src.Stop()
	delete(a.sources, kind)
}
