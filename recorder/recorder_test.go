package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/youpy/go-wav"
)

type fakeMic struct {
	stopped int
}

func (f *fakeMic) Stop() { f.stopped++ }

// fakeOpener hands the sample callback back to the test so it can feed
// chunks as if they came from the device.
type fakeOpener struct {
	mic    *fakeMic
	rate   int
	err    error
	feed   func([]int16)
	opened int
}

func (f *fakeOpener) open(ctx context.Context, onSamples func([]int16)) (MicSource, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	f.opened++
	f.feed = onSamples
	return f.mic, f.rate, nil
}

func TestRecorderCapturesOneSpan(t *testing.T) {
	opener := &fakeOpener{mic: &fakeMic{}, rate: 16000}
	r := New(opener.open)

	if r.Recording() {
		t.Fatal("fresh recorder must be idle")
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.Recording() {
		t.Fatal("recorder must report recording after start")
	}

	opener.feed([]int16{0, 1000, -1000, 32767})
	opener.feed([]int16{-32768, 42})

	clip := r.Stop()
	if clip == nil {
		t.Fatal("expected a clip from the span")
	}
	if r.Recording() {
		t.Fatal("recorder must be idle after stop")
	}
	if opener.mic.stopped != 1 {
		t.Fatalf("microphone must be released exactly once, got %d", opener.mic.stopped)
	}

	if clip.Mime != MimeWAV {
		t.Fatalf("clip mime: got %q want %q", clip.Mime, MimeWAV)
	}
	if clip.SampleRate != 16000 {
		t.Fatalf("clip sample rate: got %d", clip.SampleRate)
	}
	wantDur := time.Duration(6) * time.Second / 16000
	if clip.Duration != wantDur {
		t.Fatalf("clip duration: got %v want %v", clip.Duration, wantDur)
	}

	// The payload must be a decodable WAV with the fed samples intact.
	reader := wav.NewReader(bytes.NewReader(clip.Data))
	format, err := reader.Format()
	if err != nil {
		t.Fatalf("read wav format: %v", err)
	}
	if format.SampleRate != 16000 || format.NumChannels != 1 || format.BitsPerSample != 16 {
		t.Fatalf("unexpected wav format: %+v", format)
	}
	var decoded []int
	for {
		samples, err := reader.ReadSamples()
		if err != nil {
			break
		}
		for _, s := range samples {
			decoded = append(decoded, reader.IntValue(s, 0))
		}
	}
	want := []int{0, 1000, -1000, 32767, -32768, 42}
	if len(decoded) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(want))
	}
	for i := range want {
		if decoded[i] != want[i] {
			t.Fatalf("sample %d: got %d want %d", i, decoded[i], want[i])
		}
	}
}

func TestStartWhileRecordingIsNoOp(t *testing.T) {
	opener := &fakeOpener{mic: &fakeMic{}, rate: 8000}
	r := New(opener.open)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("re-entrant start: %v", err)
	}
	if opener.opened != 1 {
		t.Fatalf("microphone must be acquired once, got %d", opener.opened)
	}
	r.Stop()
}

func TestStopWhileIdleReturnsNil(t *testing.T) {
	r := New((&fakeOpener{mic: &fakeMic{}, rate: 8000}).open)
	if clip := r.Stop(); clip != nil {
		t.Fatalf("stop while idle must return nil, got %+v", clip)
	}
}

func TestStartFailureLeavesRecorderIdle(t *testing.T) {
	opener := &fakeOpener{err: fmt.Errorf("device busy")}
	r := New(opener.open)

	err := r.Start(context.Background())
	if err == nil {
		t.Fatal("expected acquisition failure")
	}
	var micErr *MicrophoneError
	if !errors.As(err, &micErr) {
		t.Fatalf("expected *MicrophoneError, got %T", err)
	}
	if r.Recording() {
		t.Fatal("recorder must stay idle after a failed start")
	}

	// Recoverable: a later start with a working device succeeds.
	opener.err = nil
	opener.mic = &fakeMic{}
	opener.rate = 16000
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	r.Stop()
}

func TestSpansDoNotBleedTogether(t *testing.T) {
	opener := &fakeOpener{mic: &fakeMic{}, rate: 8000}
	r := New(opener.open)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	opener.feed([]int16{1, 2, 3})
	first := r.Stop()

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	opener.feed([]int16{9})
	second := r.Stop()

	if first == nil || second == nil {
		t.Fatal("both spans must produce clips")
	}
	firstDur := time.Duration(3) * time.Second / 8000
	secondDur := time.Duration(1) * time.Second / 8000
	if first.Duration != firstDur || second.Duration != secondDur {
		t.Fatalf("span durations bleed: first=%v second=%v", first.Duration, second.Duration)
	}
}

func TestLateSamplesAfterStopIgnored(t *testing.T) {
	opener := &fakeOpener{mic: &fakeMic{}, rate: 8000}
	r := New(opener.open)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	feed := opener.feed
	feed([]int16{1})
	r.Stop()

	// The device callback can race the stop; late chunks must be dropped.
	feed([]int16{2, 3})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	clip := r.Stop()
	if clip.Duration != 0 {
		t.Fatalf("late samples leaked into the next span: %v", clip.Duration)
	}
}
