package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scenelingua/engine/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxInboundBytes = 8 << 20 // captures arrive base64-inflated

	stubTranscription = "I can see the first object"
	stubSceneMessage  = "Here is what I found in your scene. Try each item!"
)

// practiceConn drives one session's side of the wire protocol.
type practiceConn struct {
	server    *Server
	conn      *websocket.Conn
	sessionID uuid.UUID

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	audioBuf  bytes.Buffer
	audioMime string
}

func newPracticeConn(s *Server, conn *websocket.Conn) *practiceConn {
	return &practiceConn{
		server:    s,
		conn:      conn,
		sessionID: uuid.New(),
		send:      make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

func (c *practiceConn) run(ctx context.Context) {
	slog.Info("Session connected", "sessionID", c.sessionID)
	defer slog.Info("Session disconnected", "sessionID", c.sessionID)

	go c.writePump()
	c.readLoop(ctx)
	c.close()
}

func (c *practiceConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *practiceConn) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Session read ended", "error", err, "sessionID", c.sessionID)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			slog.Debug("Dropping malformed frame", "error", err, "sessionID", c.sessionID)
			continue
		}

		if err := c.handle(ctx, env); err != nil {
			slog.Error("Failed to handle message",
				"error", err,
				"type", env.Type,
				"sessionID", c.sessionID)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *practiceConn) handle(ctx context.Context, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeControl:
		var p protocol.ControlPayload
		if err := env.Into(&p); err != nil {
			return err
		}
		if p.Action != protocol.ActionStart {
			return nil
		}
		if err := c.server.archive.AppendSession(ctx, c.sessionID.String()); err != nil {
			slog.Error("Failed to archive session", "error", err, "sessionID", c.sessionID)
		}
		return c.sendEnvelope(protocol.TypeStatus, protocol.StatusPayload{
			Status:  "ok",
			Message: "session started",
		})

	case protocol.TypeImage:
		var p protocol.ImagePayload
		if err := env.Into(&p); err != nil {
			return err
		}
		plan := buildPlan(p)
		c.archiveEntry(ctx, "LLM", plan.SceneMessage)
		slog.Info("Capture analyzed",
			"sessionID", c.sessionID,
			"seq", p.Seq,
			"location", p.Location,
			"items", len(plan.Objects))
		return c.sendEnvelope(protocol.TypePlan, plan)

	case protocol.TypeAudioChunk:
		var p protocol.AudioChunkPayload
		if err := env.Into(&p); err != nil {
			return err
		}
		data, err := base64.StdEncoding.DecodeString(p.DataB64)
		if err != nil {
			return fmt.Errorf("decode audio chunk: %w", err)
		}
		c.audioBuf.Write(data)
		c.audioMime = p.Mime
		return nil

	case protocol.TypeAudioEnd:
		slog.Info("Clip received",
			"sessionID", c.sessionID,
			"bytes", c.audioBuf.Len(),
			"mime", c.audioMime)
		c.audioBuf.Reset()
		c.audioMime = ""
		c.archiveEntry(ctx, "User", stubTranscription)
		return c.sendEnvelope(protocol.TypeASRFinal, protocol.ASRFinalPayload{
			Text: stubTranscription,
		})

	case protocol.TypeText:
		var p protocol.TextPayload
		if err := env.Into(&p); err != nil {
			return err
		}
		c.archiveEntry(ctx, "User", p.Text)
		return c.streamReply(ctx, replyTo(p.Text))

	default:
		slog.Debug("Ignoring unrecognized message", "type", env.Type, "sessionID", c.sessionID)
		return nil
	}
}

// streamReply delivers text token by token, then finalizes, the way the
// production backend streams model output.
func (c *practiceConn) streamReply(ctx context.Context, text string) error {
	words := strings.Fields(text)
	for i, word := range words {
		token := word
		if i > 0 {
			token = " " + word
		}
		if err := c.sendEnvelope(protocol.TypeLLMToken, protocol.LLMTokenPayload{Token: token}); err != nil {
			return err
		}
	}
	c.archiveEntry(ctx, "LLM", text)
	return c.sendEnvelope(protocol.TypeLLMFinal, protocol.LLMFinalPayload{Text: text})
}

func (c *practiceConn) sendEnvelope(msgType string, payload any) error {
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropping %s", msgType)
	}
}

func (c *practiceConn) archiveEntry(ctx context.Context, speaker, text string) {
	if text == "" {
		return
	}
	if err := c.server.archive.AppendEntry(ctx, c.sessionID.String(), speaker, text); err != nil {
		slog.Error("Failed to archive transcript entry",
			"error", err,
			"sessionID", c.sessionID)
	}
}

func (c *practiceConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sceneVocabulary is the stub's stand-in for scene analysis: a small
// Spanish vocabulary per known location.
var sceneVocabulary = map[string][]protocol.PlanItem{
	"kitchen": {
		{SourceName: "cup", TargetName: "la taza"},
		{SourceName: "plate", TargetName: "el plato"},
		{SourceName: "spoon", TargetName: "la cuchara"},
	},
	"classroom": {
		{SourceName: "book", TargetName: "el libro"},
		{SourceName: "pencil", TargetName: "el lápiz"},
		{SourceName: "chair", TargetName: "la silla"},
	},
	"street": {
		{SourceName: "car", TargetName: "el coche"},
		{SourceName: "tree", TargetName: "el árbol"},
		{SourceName: "sign", TargetName: "la señal"},
	},
}

var defaultVocabulary = []protocol.PlanItem{
	{SourceName: "door", TargetName: "la puerta"},
	{SourceName: "window", TargetName: "la ventana"},
	{SourceName: "table", TargetName: "la mesa"},
}

// buildPlan synthesizes a plan from the capture's configuration snapshot,
// echoing the capture sequence so the client can reject stale results.
func buildPlan(p protocol.ImagePayload) protocol.PlanPayload {
	items, ok := sceneVocabulary[strings.ToLower(p.Location)]
	if !ok {
		items = defaultVocabulary
	}

	objects := make([]protocol.PlanItem, len(items))
	copy(objects, items)
	for i := range objects {
		if len(p.Actions) > 0 {
			objects[i].Action = p.Actions[i%len(p.Actions)]
		} else {
			objects[i].Action = "find"
		}
	}

	return protocol.PlanPayload{
		Seq:          p.Seq,
		Objects:      objects,
		SceneMessage: stubSceneMessage,
	}
}

// replyTo is the stub's conversational model.
func replyTo(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "I did not catch that. Try again!"
	}
	return fmt.Sprintf("You said %q. Well done, keep practicing!", trimmed)
}
