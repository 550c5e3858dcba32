// Package worker runs the queued voice, video and compose jobs.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/internal/websocket"
)

// base carries what every media worker shares: the record bookkeeping,
// the subscriber hub and artifact storage.
type base struct {
	media   *service.MediaService
	hub     *websocket.Hub
	storage client.StorageClient
}

func decodePayload(t *asynq.Task) (*model.MediaJobPayload, error) {
	var p model.MediaJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %w: %v", asynq.SkipRetry, err)
	}
	if p.TaskID == "" || p.MediaID == "" {
		return nil, fmt.Errorf("payload missing task or media id: %w", asynq.SkipRetry)
	}
	return &p, nil
}

// begin marks the record processing and tells subscribers
func (b *base) begin(ctx context.Context, p *model.MediaJobPayload) error {
	job, err := b.media.MarkProcessing(ctx, p.MediaID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("media %s already %s: %w", p.MediaID, job.Status, asynq.SkipRetry)
	}
	log.Printf("[Worker] Starting %s job %s (task=%s)", p.Kind, p.MediaID, p.TaskID)
	b.hub.BroadcastStatus(job)
	return nil
}

// save writes an artifact to <kind>/<taskId><ext> and returns its location
func (b *base) save(ctx context.Context, p *model.MediaJobPayload, ext, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s%s", p.Kind, p.TaskID, ext)
	location, err := b.storage.Upload(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", p.Kind, err)
	}
	return location, nil
}

func (b *base) complete(ctx context.Context, p *model.MediaJobPayload, location string) error {
	job, err := b.media.Complete(ctx, p.MediaID, location)
	if err != nil {
		return err
	}
	b.hub.BroadcastStatus(job)
	log.Printf("[Worker] %s job %s completed: %s", p.Kind, p.MediaID, location)
	return nil
}

// failJob records the failure and returns an error asynq will not retry
func (b *base) failJob(ctx context.Context, p *model.MediaJobPayload, cause error) error {
	log.Printf("[Worker] %s job %s failed: %v", p.Kind, p.MediaID, cause)

	job, err := b.media.Fail(ctx, p.MediaID, cause.Error())
	if err != nil {
		log.Printf("[Worker] Failed to mark job as failed: %v", err)
	} else {
		b.hub.BroadcastStatus(job)
	}
	b.hub.BroadcastError(p.TaskID, strings.ToUpper(string(p.Kind))+"_FAILED", cause.Error())

	return fmt.Errorf("%s job %s: %v: %w", p.Kind, p.MediaID, cause, asynq.SkipRetry)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
