package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/store"
)

const (
	TaskTypeVoice   = "media:voice"
	TaskTypeVideo   = "media:video"
	TaskTypeCompose = "media:compose"

	MediaQueue = "media"
)

// Enqueuer is the part of *asynq.Client the media service needs
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MediaService starts media jobs and records their progress
type MediaService struct {
	store *store.Store
	queue Enqueuer
}

func NewMediaService(st *store.Store, queue Enqueuer) *MediaService {
	return &MediaService{store: st, queue: queue}
}

// StartVoice queues speech synthesis of an approved task's content
func (s *MediaService) StartVoice(ctx context.Context, taskID string) (*model.MediaResponse, error) {
	task, err := s.approvedTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Content) == "" {
		return nil, ErrEmptyContent
	}

	return s.start(ctx, task, model.TaskStatusGeneratingVoice, &model.MediaJobPayload{
		TaskID: task.ID,
		Kind:   model.MediaKindVoice,
	}, TaskTypeVoice)
}

// StartVideo queues a video job. A task video animates the image alone and
// does not wait for the task's voice; composition merges the two later. With
// an audio path and no task, a standalone approved task is created so the
// avatar job stays addressable by task id.
func (s *MediaService) StartVideo(ctx context.Context, req *model.VideoJobRequest) (*model.MediaResponse, error) {
	var task *model.Task
	var err error

	if req.TaskID != "" {
		task, err = s.approvedTask(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
	} else {
		task = &model.Task{
			ID:        newID("task"),
			Status:    model.TaskStatusApproved,
			Topic:     "uploaded audio",
			Style:     string(model.StyleSpeech),
			Length:    string(model.LengthShort),
			CreatedAt: time.Now(),
		}
		if err := s.store.SaveTask(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
	}

	return s.start(ctx, task, model.TaskStatusGeneratingVideo, &model.MediaJobPayload{
		TaskID:    task.ID,
		Kind:      model.MediaKindVideo,
		ImagePath: req.ImagePath,
		AudioPath: req.AudioPath,
		Prompt:    req.Prompt,
	}, TaskTypeVideo)
}

// StartCompose queues the merge of a video with a voice track. Missing
// paths default to the task's newest completed records.
func (s *MediaService) StartCompose(ctx context.Context, req *model.ComposeJobRequest) (*model.MediaResponse, error) {
	task, err := s.approvedTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	videoPath, audioPath := req.VideoPath, req.AudioPath
	if videoPath == "" {
		rec, err := s.store.LatestCompleted(ctx, task.ID, model.MediaKindVideo)
		if err != nil {
			return nil, fmt.Errorf("%w: video", ErrMissingInput)
		}
		videoPath = rec.FilePath
	}
	if audioPath == "" {
		rec, err := s.store.LatestCompleted(ctx, task.ID, model.MediaKindVoice)
		if err != nil {
			return nil, fmt.Errorf("%w: voice", ErrMissingInput)
		}
		audioPath = rec.FilePath
	}

	return s.start(ctx, task, model.TaskStatusGeneratingVideo, &model.MediaJobPayload{
		TaskID:      task.ID,
		Kind:        model.MediaKindComposed,
		VideoPath:   videoPath,
		AudioPath:   audioPath,
		AudioDelay:  req.AudioDelay,
		MusicPath:   req.MusicPath,
		MusicVolume: req.MusicVolume,
	}, TaskTypeCompose)
}

func (s *MediaService) start(ctx context.Context, task *model.Task, marker model.TaskStatus, payload *model.MediaJobPayload, taskType string) (*model.MediaResponse, error) {
	job := &model.MediaJob{
		ID:        newID("media"),
		TaskID:    task.ID,
		Kind:      payload.Kind,
		Status:    model.MediaStatusPending,
		CreatedAt: time.Now(),
	}
	payload.MediaID = job.ID

	if err := s.store.CreateMedia(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save media record: %w", err)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.queue.Enqueue(asynq.NewTask(taskType, payloadBytes),
		asynq.Queue(MediaQueue),
		asynq.MaxRetry(2),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		s.store.UpdateMedia(ctx, job.ID, func(j *model.MediaJob) {
			j.Status = model.MediaStatusFailed
			j.Error = "failed to enqueue"
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	// a completed task keeps its status while a rerun is in flight
	if _, err := s.store.UpdateTask(ctx, task.ID, func(t *model.Task) {
		if t.Status != model.TaskStatusCompleted {
			t.Status = marker
		}
	}); err != nil {
		return nil, err
	}

	log.Printf("[Media] Queued %s %s for %s", payload.Kind, job.ID, task.ID)

	return &model.MediaResponse{
		Success:   true,
		TaskID:    task.ID,
		MediaID:   job.ID,
		MediaType: payload.Kind,
		Status:    job.Status,
		Message:   fmt.Sprintf("%s generation started", payload.Kind),
	}, nil
}

// Status lists the media records of a task in creation order
func (s *MediaService) Status(ctx context.Context, taskID string) (*model.MediaStatusResponse, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListMedia(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &model.MediaStatusResponse{
		Success:      true,
		TaskStatus:   task.Status,
		MediaRecords: records,
	}, nil
}

// TaskContent returns the copy a voice job should read
func (s *MediaService) TaskContent(ctx context.Context, taskID string) (string, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(task.Content) == "" {
		return "", ErrEmptyContent
	}
	return task.Content, nil
}

// MarkProcessing records that a worker picked the job up
func (s *MediaService) MarkProcessing(ctx context.Context, mediaID string) (*model.MediaJob, error) {
	return s.updateMedia(ctx, mediaID, func(j *model.MediaJob) {
		now := time.Now()
		j.Status = model.MediaStatusProcessing
		j.StartedAt = &now
	})
}

// Complete stores the artifact location and advances the task. Status only
// moves forward: a voice finishing after the video leaves the task completed.
func (s *MediaService) Complete(ctx context.Context, mediaID, filePath string) (*model.MediaJob, error) {
	job, err := s.updateMedia(ctx, mediaID, func(j *model.MediaJob) {
		j.Status = model.MediaStatusCompleted
		j.FilePath = filePath
		j.Error = ""
	})
	if err != nil {
		return nil, err
	}

	if job.Kind == model.MediaKindVoice {
		s.settle(ctx, job.TaskID)
	} else {
		s.setTaskStatus(ctx, job.TaskID, model.TaskStatusCompleted)
	}
	return job, nil
}

// Fail records a generation error. The task returns to approved so it can be
// retried, unless another job of the task is still running.
func (s *MediaService) Fail(ctx context.Context, mediaID, reason string) (*model.MediaJob, error) {
	job, err := s.updateMedia(ctx, mediaID, func(j *model.MediaJob) {
		j.Status = model.MediaStatusFailed
		j.Error = reason
	})
	if err != nil {
		return nil, err
	}
	s.settle(ctx, job.TaskID)
	return job, nil
}

// settle drops a generating_* marker back to approved once no job of the
// task is pending or processing. A completed task stays completed.
func (s *MediaService) settle(ctx context.Context, taskID string) {
	records, err := s.store.ListMedia(ctx, taskID)
	if err != nil {
		log.Printf("[Media] Failed to list media of %s: %v", taskID, err)
		return
	}
	for _, r := range records {
		if !r.Status.Terminal() {
			return
		}
	}
	s.advanceTask(ctx, taskID, func(t *model.Task) {
		if t.Status != model.TaskStatusCompleted {
			t.Status = model.TaskStatusApproved
		}
	})
}

func (s *MediaService) updateMedia(ctx context.Context, mediaID string, fn func(j *model.MediaJob)) (*model.MediaJob, error) {
	job, err := s.store.UpdateMedia(ctx, mediaID, fn)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMediaNotFound
	}
	return job, err
}

func (s *MediaService) setTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) {
	s.advanceTask(ctx, taskID, func(t *model.Task) { t.Status = status })
}

func (s *MediaService) advanceTask(ctx context.Context, taskID string, fn func(t *model.Task)) {
	if _, err := s.store.UpdateTask(ctx, taskID, fn); err != nil {
		log.Printf("[Media] Failed to update task %s: %v", taskID, err)
	}
}

func (s *MediaService) approvedTask(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if !task.Status.Launchable() {
		return nil, ErrTaskNotApproved
	}
	return task, nil
}
