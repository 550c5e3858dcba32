package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/internal/websocket"
)

// mockMP4 is an ftyp box; the placeholder is recognisable but not playable
var mockMP4 = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

// VideoWorker renders task videos by animating the portrait image, and
// uploaded-audio videos through the avatar provider's start and status loop.
type VideoWorker struct {
	base
	gen          client.VideoGenerator
	animator     client.ImageAnimator
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewVideoWorker(media *service.MediaService, hub *websocket.Hub, storage client.StorageClient, gen client.VideoGenerator, animator client.ImageAnimator, pollInterval, maxWait time.Duration) *VideoWorker {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	return &VideoWorker{
		base:         base{media: media, hub: hub, storage: storage},
		gen:          gen,
		animator:     animator,
		pollInterval: pollInterval,
		maxWait:      maxWait,
	}
}

// ProcessTask handles media:video
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return err
	}
	if err := w.begin(ctx, p); err != nil {
		return err
	}

	video := mockMP4
	switch {
	case p.AudioPath == "" && w.animator != nil && w.animator.IsConfigured():
		video, err = w.animate(ctx, p.ImagePath, p.Prompt)
	case p.AudioPath != "" && w.gen != nil && w.gen.IsConfigured():
		video, err = w.generate(ctx, p.AudioPath, p.ImagePath, p.Prompt)
	}
	if err != nil {
		return w.failJob(ctx, p, err)
	}

	location, err := w.save(ctx, p, ".mp4", "video/mp4", video)
	if err != nil {
		return w.failJob(ctx, p, err)
	}
	return w.complete(ctx, p, location)
}

// animate needs no voice track, so it can run while voice is still in flight
func (w *VideoWorker) animate(ctx context.Context, image, prompt string) ([]byte, error) {
	if image == "" {
		return nil, errors.New("no image to animate")
	}
	return w.animator.Animate(ctx, image, prompt)
}

func (w *VideoWorker) generate(ctx context.Context, audio, image, prompt string) ([]byte, error) {
	if !isURL(audio) || !isURL(image) {
		return nil, fmt.Errorf("video provider needs public URLs for audio and image; configure R2 storage")
	}

	videoID, err := w.gen.GenerateVideo(ctx, &client.GenerateVideoRequest{
		AudioURL: audio,
		ImageURL: image,
		Prompt:   prompt,
	})
	if err != nil {
		return nil, err
	}

	result, err := w.gen.PollVideoStatus(ctx, videoID, w.pollInterval, w.maxWait)
	if err != nil {
		return nil, err
	}
	return w.gen.Download(ctx, result.VideoURL)
}
