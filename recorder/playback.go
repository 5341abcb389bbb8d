package recorder

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const playbackFramesPerBuffer = 1024

// PlayFile plays a WAV file on the default output device, blocking until
// the caller presses Enter. Used by the CLI to audition recorded clips.
func PlayFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	return play(file, true)
}

// PlayClip plays a finished clip on the default output device and
// returns when the clip ends.
func PlayClip(clip *AudioClip) error {
	if clip == nil {
		return nil
	}
	return play(bytes.NewReader(clip.Data), false)
}

func play(r io.Reader, waitForEnter bool) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("read WAV format: %w", err)
	}

	done := make(chan struct{})
	var finished bool

	stream, err := portaudio.OpenDefaultStream(
		0,
		int(format.NumChannels),
		float64(format.SampleRate),
		playbackFramesPerBuffer,
		func(out []int16) {
			samples, err := reader.ReadSamples(uint32(len(out)))
			if err == io.EOF {
				for i := range out {
					out[i] = 0
				}
				if !finished {
					finished = true
					close(done)
				}
				return
			}
			if err != nil {
				slog.Error("Error reading WAV samples", "error", err)
				return
			}

			for i := 0; i < len(samples) && i < len(out); i++ {
				out[i] = int16(samples[i].Values[0])
			}
			for i := len(samples); i < len(out); i++ {
				out[i] = 0
			}
		},
	)
	if err != nil {
		return fmt.Errorf("open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start audio stream: %w", err)
	}

	if waitForEnter {
		fmt.Println("Playing audio. Press Enter to stop...")
		fmt.Scanln()
	} else {
		<-done
	}

	return stream.Stop()
}
