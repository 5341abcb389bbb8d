package media

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CameraSource is the camera stream. Go has no portable camera API, so
// the feed is a directory a capture daemon writes frame files into; the
// newest complete image file is the current frame. The source watches
// the directory and keeps the latest decoded frame in memory.
type CameraSource struct {
	dir     string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	frame   image.Image
	stopped bool

	done chan struct{}
}

func startCamera(ctx context.Context, c Constraints) (*CameraSource, error) {
	if c.FrameDir == "" {
		return nil, fmt.Errorf("no frame directory configured")
	}

	info, err := os.Stat(c.FrameDir)
	if err != nil {
		return nil, fmt.Errorf("frame directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame path %s is not a directory", c.FrameDir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(c.FrameDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch frame directory: %w", err)
	}

	s := &CameraSource{
		dir:     c.FrameDir,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	// Pick up the newest frame already on disk so Frame() works
	// immediately after start.
	if path, ok := newestFrameFile(c.FrameDir); ok {
		s.loadFrame(path)
	}

	go s.watchFrames(ctx)

	slog.Info("Camera frame feed started", "dir", c.FrameDir)
	return s, nil
}

func (s *CameraSource) Kind() Kind { return KindCamera }

// Frame returns the most recently decoded frame.
func (s *CameraSource) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

// Stop releases the watcher and drops the held frame. Idempotent.
func (s *CameraSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.frame = nil
	s.mu.Unlock()

	close(s.done)
	if err := s.watcher.Close(); err != nil {
		slog.Error("Failed to close frame watcher", "error", err)
	}
}

func (s *CameraSource) watchFrames(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isFrameFile(event.Name) {
				continue
			}
			s.loadFrame(event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Frame watcher error", "error", err)
		}
	}
}

func (s *CameraSource) loadFrame(path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("Frame not readable", "path", path, "error", err)
		return
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		// Likely a partially written file; the next write event
		// will carry the complete frame.
		slog.Debug("Frame not decodable", "path", path, "error", err)
		return
	}

	s.mu.Lock()
	if !s.stopped {
		s.frame = img
	}
	s.mu.Unlock()
}

func isFrameFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func newestFrameFile(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	type candidate struct {
		path string
		mod  int64
	}
	var frames []candidate
	for _, e := range entries {
		if e.IsDir() || !isFrameFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		frames = append(frames, candidate{
			path: filepath.Join(dir, e.Name()),
			mod:  info.ModTime().UnixNano(),
		})
	}
	if len(frames) == 0 {
		return "", false
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].mod > frames[j].mod })
	return frames[0].path, true
}
