package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/scenelingua/engine/config"
	"github.com/scenelingua/engine/media"
	"github.com/scenelingua/engine/recorder"
	"github.com/scenelingua/engine/server"
	"github.com/scenelingua/engine/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "Path to YAML config file")
	serveMode := flag.Bool("serve", false, "Run the practice backend stub")
	serverURL := flag.String("server", "", "Practice backend WebSocket URL (overrides config)")
	frameDir := flag.String("frames", "", "Camera frame directory (overrides config)")
	deviceID := flag.Int("device", 0, "Audio input device ID to use")
	playFile := flag.String("play", "", "Play a recorded WAV clip")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	flag.Parse()

	if *playFile != "" {
		if err := recorder.PlayFile(*playFile); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listDevices {
		devices, err := media.ListInputDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Engine.ServerURL = *serverURL
	}
	if *frameDir != "" {
		cfg.Media.FrameDir = *frameDir
	}
	if *deviceID != 0 {
		cfg.Media.DeviceID = *deviceID
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if *serveMode {
		runServer(ctx, cfg)
		return
	}

	runEngine(ctx, cfg)
	slog.Debug("Program exiting")
}

func runServer(ctx context.Context, cfg config.Config) {
	srv, err := server.New(ctx, server.Config{
		Addr:        cfg.Server.Addr,
		ArchivePath: cfg.Server.ArchivePath,
	})
	if err != nil {
		slog.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("Server failed", "error", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		slog.Error("Failed to stop server", "error", err)
	}
}

// runEngine drives one practice session from stdin commands, standing in
// for the product's presentation layer.
func runEngine(ctx context.Context, cfg config.Config) {
	arena := media.NewArena(nil)
	defer arena.StopAll()

	rec := recorder.New(recorder.ArenaMic(arena, cfg.Media.DeviceID))

	ctrl, err := session.NewController(session.Options{
		Config:         cfg.Session,
		Camera:         session.ArenaCamera(arena, cfg.Media.FrameDir),
		Recorder:       rec,
		NewTransport:   session.DialTransport(cfg.Engine.ServerURL),
		TranscribeURL:  cfg.Engine.TranscribeURL,
		Mirror:         cfg.Engine.Mirror,
		CaptureQuality: cfg.Engine.CaptureQuality,
	})
	if err != nil {
		slog.Error("Failed to build session controller", "error", err)
		os.Exit(1)
	}
	defer ctrl.Exit()

	if err := ctrl.EnterActive(ctx); err != nil {
		slog.Error("Failed to start session", "error", err)
		os.Exit(1)
	}

	fmt.Println("Session active. Commands: capture, toggle <i>, retake, record, send, transcript, exit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := runCommand(ctx, ctrl, line); done {
				return
			}
		}
	}
}

func runCommand(ctx context.Context, ctrl *session.Controller, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "capture":
		if err := ctrl.Capture(ctx); err != nil {
			slog.Error("Capture failed", "error", err)
		}

	case "toggle":
		if len(fields) < 2 {
			fmt.Println("usage: toggle <index>")
			return false
		}
		i, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("usage: toggle <index>")
			return false
		}
		if err := ctrl.ToggleItem(i); err != nil {
			slog.Error("Toggle failed", "error", err)
		} else if state, ok := ctrl.ChecklistState(); ok {
			fmt.Printf("checklist: %v current: %d\n", state.Completed, state.CurrentIndex)
		}

	case "retake":
		ctrl.Retake()

	case "record":
		if err := ctrl.ToggleRecording(ctx); err != nil {
			slog.Error("Recording failed", "error", err)
		}

	case "send":
		if err := ctrl.SendAudio(ctx); err != nil {
			slog.Error("Send failed", "error", err)
		}

	case "transcript":
		for _, entry := range ctrl.Transcript() {
			fmt.Printf("%s: %s\n", entry.Speaker, entry.Text)
		}
		if text := ctrl.StreamingText(); text != "" {
			fmt.Printf("LLM (in progress): %s\n", text)
		}

	case "exit", "quit":
		ctrl.Exit()
		return true

	default:
		fmt.Println("Commands: capture, toggle <i>, retake, record, send, transcript, exit")
	}
	return false
}
