package session

import (
	"context"

	"github.com/scenelingua/engine/channel"
	"github.com/scenelingua/engine/media"
)

// ArenaCamera adapts a media arena into the controller's Camera
// dependency, acquiring the camera frame feed from frameDir.
func ArenaCamera(arena *media.Arena, frameDir string) Camera {
	return &arenaCamera{arena: arena, frameDir: frameDir}
}

type arenaCamera struct {
	arena    *media.Arena
	frameDir string
}

func (a *arenaCamera) Start(ctx context.Context) (media.FrameProvider, error) {
	src, err := a.arena.Start(ctx, media.KindCamera, media.Constraints{FrameDir: a.frameDir})
	if err != nil {
		return nil, err
	}
	return src.(*media.CameraSource), nil
}

func (a *arenaCamera) Stop() { a.arena.Stop(media.KindCamera) }

// DialTransport builds fresh single-use channels to url, one per
// EnterActive call.
func DialTransport(url string) func() Transport {
	return func() Transport { return channel.New(url) }
}
