package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/composer"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/internal/websocket"
)

// Composer is the part of *composer.Composer the compose worker uses
type Composer interface {
	Available() bool
	Compose(ctx context.Context, in composer.Input) (string, error)
}

// ComposeWorker lays a voice track, and an optional music bed, over a generated video
type ComposeWorker struct {
	base
	composer Composer
}

func NewComposeWorker(media *service.MediaService, hub *websocket.Hub, storage client.StorageClient, c Composer) *ComposeWorker {
	return &ComposeWorker{
		base:     base{media: media, hub: hub, storage: storage},
		composer: c,
	}
}

// ProcessTask handles media:compose
func (w *ComposeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return err
	}
	if err := w.begin(ctx, p); err != nil {
		return err
	}

	if p.VideoPath == "" || p.AudioPath == "" {
		return w.failJob(ctx, p, fmt.Errorf("compose needs both a video and an audio track"))
	}

	output := mockMP4
	if w.composer != nil && w.composer.Available() {
		output, err = w.compose(ctx, p.MediaID, composer.Input{
			VideoPath:   p.VideoPath,
			AudioPath:   p.AudioPath,
			AudioDelay:  p.AudioDelay,
			MusicPath:   p.MusicPath,
			MusicVolume: p.MusicVolume,
		})
		if err != nil {
			return w.failJob(ctx, p, err)
		}
	}

	location, err := w.save(ctx, p, ".mp4", "video/mp4", output)
	if err != nil {
		return w.failJob(ctx, p, err)
	}
	return w.complete(ctx, p, location)
}

func (w *ComposeWorker) compose(ctx context.Context, mediaID string, in composer.Input) ([]byte, error) {
	dir, err := os.MkdirTemp("", "mediaflow_out_")
	if err != nil {
		return nil, fmt.Errorf("could not create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	in.OutputPath = filepath.Join(dir, mediaID+".mp4")
	if ffLog, err := w.composer.Compose(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: %s", err, tail(ffLog, 400))
	}
	return os.ReadFile(in.OutputPath)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
