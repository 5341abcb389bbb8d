package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenelingua/engine/capture"
	"github.com/scenelingua/engine/channel"
	"github.com/scenelingua/engine/config"
	"github.com/scenelingua/engine/media"
	"github.com/scenelingua/engine/protocol"
	"github.com/scenelingua/engine/recorder"
)

// State of the session controller.
type State string

const (
	StateIdle            State = "idle"
	StateActive          State = "active"
	StateAwaitingPlan    State = "awaiting_plan"
	StateChecklistActive State = "checklist_active"
)

const (
	SpeakerUser = "User"
	SpeakerLLM  = "LLM"
)

// TranscriptEntry is one finished line of the session transcript.
type TranscriptEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Transport is the session channel as the controller sees it. A
// transport is single-use; EnterActive creates a fresh one each time.
type Transport interface {
	Open(ctx context.Context) error
	Send(protocol.Envelope)
	Events() <-chan protocol.Envelope
	State() channel.State
	Close()
}

// Camera acquires and releases the camera stream.
type Camera interface {
	Start(ctx context.Context) (media.FrameProvider, error)
	Stop()
}

// AudioRecorder is the clip recorder. *recorder.Recorder satisfies it.
type AudioRecorder interface {
	Start(ctx context.Context) error
	Stop() *recorder.AudioClip
	Recording() bool
}

// Options wires a controller.
type Options struct {
	Config   config.SessionConfig
	Camera   Camera
	Recorder AudioRecorder

	// NewTransport builds a fresh channel per EnterActive call.
	NewTransport func() Transport

	// TranscribeURL is the REST fallback used when the channel is not
	// open at SendAudio time.
	TranscribeURL string
	HTTPClient    *http.Client

	Mirror         bool
	CaptureQuality int
	PreviewTTL     time.Duration
}

// Controller owns one practice session: the camera stream, the recorder,
// the channel, and the session state machine. All state mutation happens
// synchronously under one mutex; late async results are discarded by
// generation check after Exit.
type Controller struct {
	id   uuid.UUID
	opts Options

	mu        sync.Mutex
	state     State
	gen       uint64
	transport Transport
	frames    media.FrameProvider

	captureSeq  int64
	plan        []protocol.PlanItem
	checklist   *Checklist
	transcript  []TranscriptEntry
	streamBuf   strings.Builder
	pendingClip *recorder.AudioClip
	lastStatus  string

	previewMu sync.Mutex
	preview   *capture.Preview
}

func NewController(opts Options) (*Controller, error) {
	if opts.Camera == nil || opts.Recorder == nil || opts.NewTransport == nil {
		return nil, fmt.Errorf("camera, recorder and transport are all required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.PreviewTTL <= 0 {
		opts.PreviewTTL = capture.DefaultPreviewTTL
	}
	return &Controller{
		id:    uuid.New(),
		opts:  opts,
		state: StateIdle,
	}, nil
}

func (c *Controller) ID() uuid.UUID { return c.id }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnterActive starts the camera stream and opens the session channel.
// Both must succeed; on any failure the controller releases whatever it
// acquired and stays Idle.
func (c *Controller) EnterActive(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session is %s, not idle", c.state)
	}
	c.mu.Unlock()

	frames, err := c.opts.Camera.Start(ctx)
	if err != nil {
		return err
	}

	transport := c.opts.NewTransport()
	if err := transport.Open(ctx); err != nil {
		c.opts.Camera.Stop()
		return err
	}

	c.mu.Lock()
	c.transport = transport
	c.frames = frames
	c.state = StateActive
	gen := c.gen
	c.mu.Unlock()

	go c.consume(transport.Events(), gen)

	slog.Info("Session active", "sessionID", c.id)
	return nil
}

// Capture rasterizes the current frame, publishes a preview, and when
// the channel is open sends the image for analysis and moves to
// AwaitingPlan. With no frame available it is a silent no-op.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive && c.state != StateChecklistActive {
		return fmt.Errorf("capture not valid while session is %s", c.state)
	}

	still, ok := capture.Capture(c.frames, capture.Options{
		Mirror:  c.opts.Mirror,
		Quality: c.opts.CaptureQuality,
	})
	if !ok {
		return nil
	}

	c.captureSeq++
	seq := c.captureSeq
	c.publishPreview(still)

	if c.transport.State() != channel.StateOpen {
		slog.Debug("Channel not open, capture kept local", "seq", seq)
		return nil
	}

	env, err := protocol.NewEnvelope(protocol.TypeImage, protocol.ImagePayload{
		Seq:            seq,
		DataURL:        still.DataURL,
		Mime:           still.Mime,
		TargetLanguage: c.opts.Config.TargetLanguage,
		SourceLanguage: c.opts.Config.SourceLanguage,
		Location:       c.opts.Config.Location,
		Actions:        c.opts.Config.Actions,
	})
	if err != nil {
		return fmt.Errorf("build image message: %w", err)
	}
	c.transport.Send(env)
	c.state = StateAwaitingPlan

	slog.Debug("Capture sent", "seq", seq, "bytes", len(still.Bytes))
	return nil
}

// ToggleItem flips checklist item i.
func (c *Controller) ToggleItem(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checklist == nil {
		return fmt.Errorf("no active checklist")
	}
	return c.checklist.Toggle(i)
}

// Retake clears the plan, checklist and streaming state and returns to
// Active without touching the camera or the channel.
func (c *Controller) Retake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	c.plan = nil
	c.checklist = nil
	c.streamBuf.Reset()
	c.state = StateActive
	slog.Debug("Session retake", "sessionID", c.id)
}

// ToggleRecording starts a recording span, or ends it and holds the
// finished clip pending send.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("session is idle")
	}
	c.mu.Unlock()

	if c.opts.Recorder.Recording() {
		clip := c.opts.Recorder.Stop()
		c.mu.Lock()
		c.pendingClip = clip
		c.mu.Unlock()
		return nil
	}
	return c.opts.Recorder.Start(ctx)
}

// SendAudio transmits the pending clip over the channel as one
// audio_chunk followed by one audio_end. When the channel is not open it
// falls back to the REST transcription endpoint and appends the result
// directly as a User transcript entry. Either way the clip is consumed.
func (c *Controller) SendAudio(ctx context.Context) error {
	c.mu.Lock()
	clip := c.pendingClip
	c.pendingClip = nil
	transport := c.transport
	gen := c.gen
	c.mu.Unlock()

	if clip == nil {
		return nil
	}

	if transport != nil && transport.State() == channel.StateOpen {
		chunk, err := protocol.NewEnvelope(protocol.TypeAudioChunk, protocol.AudioChunkPayload{
			DataB64: base64.StdEncoding.EncodeToString(clip.Data),
			Mime:    clip.Mime,
		})
		if err != nil {
			return fmt.Errorf("build audio message: %w", err)
		}
		end, err := protocol.NewEnvelope(protocol.TypeAudioEnd, protocol.AudioEndPayload{})
		if err != nil {
			return fmt.Errorf("build audio end message: %w", err)
		}
		transport.Send(chunk)
		transport.Send(end)
		slog.Debug("Clip sent over channel", "bytes", len(clip.Data))
		return nil
	}

	text, err := c.transcribeFallback(ctx, clip)
	if err != nil {
		return fmt.Errorf("transcription fallback: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Session exited while the upload was in flight.
		return nil
	}
	c.transcript = append(c.transcript, TranscriptEntry{Speaker: SpeakerUser, Text: text})
	return nil
}

// Exit is the single resource-release funnel: it stops the camera, the
// recorder and the channel, releases the preview, and returns the
// controller to Idle. Safe to call any number of times from any state;
// async results arriving afterwards are ignored.
func (c *Controller) Exit() {
	c.mu.Lock()
	c.gen++
	c.state = StateIdle
	transport := c.transport
	c.transport = nil
	c.frames = nil
	c.plan = nil
	c.checklist = nil
	c.streamBuf.Reset()
	c.pendingClip = nil
	c.lastStatus = ""
	c.mu.Unlock()

	if c.opts.Recorder.Recording() {
		c.opts.Recorder.Stop()
	}
	c.opts.Camera.Stop()
	if transport != nil {
		transport.Close()
	}

	c.previewMu.Lock()
	preview := c.preview
	c.preview = nil
	c.previewMu.Unlock()
	if preview != nil {
		preview.Release()
	}

	slog.Debug("Session exited", "sessionID", c.id)
}

func (c *Controller) consume(events <-chan protocol.Envelope, gen uint64) {
	for env := range events {
		c.handle(env, gen)
	}
}

func (c *Controller) handle(env protocol.Envelope, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state == StateIdle {
		return
	}

	switch env.Type {
	case protocol.TypeStatus:
		var p protocol.StatusPayload
		if err := env.Into(&p); err != nil {
			slog.Debug("Dropping malformed status", "error", err)
			return
		}
		c.lastStatus = p.Status
		slog.Debug("Status from backend", "status", p.Status, "message", p.Message)

	case protocol.TypePlan:
		var p protocol.PlanPayload
		if err := env.Into(&p); err != nil {
			slog.Debug("Dropping malformed plan", "error", err)
			return
		}
		if p.Seq != 0 && p.Seq < c.captureSeq {
			// Analysis of a capture that a newer one has superseded.
			slog.Debug("Dropping stale plan", "planSeq", p.Seq, "captureSeq", c.captureSeq)
			return
		}
		c.plan = p.Objects
		c.checklist = NewChecklist(len(p.Objects))
		if p.SceneMessage != "" {
			c.transcript = append(c.transcript, TranscriptEntry{Speaker: SpeakerLLM, Text: p.SceneMessage})
		}
		c.state = StateChecklistActive
		slog.Info("Plan received", "items", len(p.Objects), "seq", p.Seq)

	case protocol.TypeASRFinal:
		var p protocol.ASRFinalPayload
		if err := env.Into(&p); err != nil {
			slog.Debug("Dropping malformed transcription", "error", err)
			return
		}
		c.transcript = append(c.transcript, TranscriptEntry{Speaker: SpeakerUser, Text: p.Text})
		// Close the loop: the transcription becomes the input for the
		// next reply.
		if reply, err := protocol.NewEnvelope(protocol.TypeText, protocol.TextPayload{Text: p.Text}); err == nil {
			c.transport.Send(reply)
		}

	case protocol.TypeLLMToken:
		var p protocol.LLMTokenPayload
		if err := env.Into(&p); err != nil {
			slog.Debug("Dropping malformed token", "error", err)
			return
		}
		c.streamBuf.WriteString(p.Token)

	case protocol.TypeLLMFinal:
		var p protocol.LLMFinalPayload
		if err := env.Into(&p); err != nil {
			slog.Debug("Dropping malformed reply", "error", err)
			c.streamBuf.Reset()
			return
		}
		if p.Text != "" {
			text := c.streamBuf.String()
			if text == "" {
				text = p.Text
			}
			c.transcript = append(c.transcript, TranscriptEntry{Speaker: SpeakerLLM, Text: text})
		}
		c.streamBuf.Reset()

	default:
		// Unrecognized message kinds are ignored, never fatal.
		slog.Debug("Ignoring unrecognized message", "type", env.Type)
	}
}

// publishPreview replaces the current preview, releasing the prior
// handle exactly once. Called with c.mu held; preview state has its own
// lock so the expiry callback never contends with session mutation.
func (c *Controller) publishPreview(still *capture.Still) {
	var p *capture.Preview
	p = capture.NewPreview(still, c.opts.PreviewTTL, func() {
		c.previewMu.Lock()
		if c.preview == p {
			c.preview = nil
		}
		c.previewMu.Unlock()
	})

	c.previewMu.Lock()
	old := c.preview
	c.preview = p
	c.previewMu.Unlock()
	if old != nil {
		old.Release()
	}
}

// Preview returns the live capture preview, if one has not expired.
func (c *Controller) Preview() (*capture.Still, bool) {
	c.previewMu.Lock()
	p := c.preview
	c.previewMu.Unlock()
	if p == nil {
		return nil, false
	}
	return p.Still()
}

// Transcript returns a copy of the finished transcript entries.
func (c *Controller) Transcript() []TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TranscriptEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// StreamingText is the in-progress reply accumulated from tokens.
func (c *Controller) StreamingText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamBuf.String()
}

// Plan returns a copy of the active plan's items.
func (c *Controller) Plan() []protocol.PlanItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.PlanItem, len(c.plan))
	copy(out, c.plan)
	return out
}

// ChecklistState is a point-in-time snapshot for the presentation layer.
type ChecklistState struct {
	Completed    []bool
	CurrentIndex int
}

func (c *Controller) ChecklistState() (ChecklistState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checklist == nil {
		return ChecklistState{}, false
	}
	return ChecklistState{
		Completed:    c.checklist.Completed(),
		CurrentIndex: c.checklist.CurrentIndex(),
	}, true
}

// LastStatus is the most recent informational status from the backend.
func (c *Controller) LastStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

// HasPendingClip reports whether a recorded clip is waiting to be sent.
func (c *Controller) HasPendingClip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingClip != nil
}
