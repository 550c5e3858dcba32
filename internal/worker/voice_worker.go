package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/internal/websocket"
)

// mockMP3 is an ID3 header with no frames, enough for players to accept the file
var mockMP3 = []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// VoiceWorker reads a task's approved copy aloud
type VoiceWorker struct {
	base
	tts client.SpeechSynthesizer
}

func NewVoiceWorker(media *service.MediaService, hub *websocket.Hub, storage client.StorageClient, tts client.SpeechSynthesizer) *VoiceWorker {
	return &VoiceWorker{
		base: base{media: media, hub: hub, storage: storage},
		tts:  tts,
	}
}

// ProcessTask handles media:voice
func (w *VoiceWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return err
	}
	if err := w.begin(ctx, p); err != nil {
		return err
	}

	text, err := w.media.TaskContent(ctx, p.TaskID)
	if err != nil {
		return w.failJob(ctx, p, err)
	}

	audio := mockMP3
	if w.tts != nil && w.tts.IsConfigured() {
		audio, err = w.tts.Synthesize(ctx, text)
		if err != nil {
			return w.failJob(ctx, p, err)
		}
	}

	location, err := w.save(ctx, p, ".mp3", "audio/mpeg", audio)
	if err != nil {
		return w.failJob(ctx, p, err)
	}
	return w.complete(ctx, p, location)
}
