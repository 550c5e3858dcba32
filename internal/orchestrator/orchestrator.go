// Package orchestrator drives the content → approval → voice ∥ video →
// composition pipeline against the staff backend and detects completion
// of the remote jobs by bounded status polling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/model"
)

// Gateway is the set of remote pipeline actions the orchestrator uses
type Gateway interface {
	StatusFetcher
	CreateTask(ctx context.Context, topic, style, length string) (*model.Task, error)
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	Approve(ctx context.Context, taskID string) error
	StartVoiceJob(ctx context.Context, taskID string) (*model.JobRef, error)
	StartVideoJob(ctx context.Context, req model.VideoJobRequest) (*model.JobRef, error)
	StartComposeJob(ctx context.Context, req model.ComposeJobRequest) (*model.JobRef, error)
}

// Options tune polling and approval
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	AutoApprove  bool
	Wait         WaitFunc
}

// Orchestrator is the surface the UI modules talk to
type Orchestrator struct {
	gw       Gateway
	pc       *PipelineContext
	gate     *Gate
	poller   *Poller
	launcher *Launcher
	sink     *FanoutSink
}

func New(gw Gateway, opts Options) *Orchestrator {
	pc := NewPipelineContext()
	sink := NewFanoutSink()
	gate := NewGate(gw, pc, opts.AutoApprove)
	poller := NewPoller(gw, opts.PollInterval, opts.MaxAttempts, opts.Wait)

	return &Orchestrator{
		gw:       gw,
		pc:       pc,
		gate:     gate,
		poller:   poller,
		launcher: NewLauncher(gw, pc, gate, poller, sink),
		sink:     sink,
	}
}

// Context exposes the session state
func (o *Orchestrator) Context() *PipelineContext { return o.pc }

// ObserveStatus subscribes a sink to every resolution and rejection.
// The returned function unsubscribes it.
func (o *Orchestrator) ObserveStatus(sink ResultSink) func() {
	return o.sink.Subscribe(sink)
}

func (o *Orchestrator) ProvideUploadedAsset(kind model.AssetKind, path string) error {
	return o.pc.ProvideUploadedAsset(kind, path)
}

func (o *Orchestrator) ProvideUpstreamTaskID(stage Stage, id string) {
	o.pc.ProvideUpstreamTaskID(stage, id)
}

// RequestTaskCreation drafts a new task and makes it the current content task
func (o *Orchestrator) RequestTaskCreation(ctx context.Context, topic, style, length string) (*model.Task, error) {
	task, err := o.gw.CreateTask(ctx, topic, style, length)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			o.sink.OnRejected(StageContent, err)
		}
		return nil, err
	}

	o.pc.RememberTask(task)
	o.pc.Registry.SetCurrent(StageContent, task.ID)
	log.Printf("[Orchestrator] Task %s created (%s)", task.ID, task.Status)
	return task, nil
}

// RequestApproval approves a task; an empty id means the current content task
func (o *Orchestrator) RequestApproval(ctx context.Context, taskID string) error {
	if taskID == "" {
		taskID = o.pc.Registry.Current(StageContent)
	}
	if taskID == "" {
		err := apperr.Validation("request approval", "no task to approve")
		o.sink.OnRejected(StageContent, err)
		return err
	}

	if err := o.gw.Approve(ctx, taskID); err != nil {
		return err
	}
	o.pc.setTaskStatus(taskID, model.TaskStatusApproved)
	log.Printf("[Orchestrator] Task %s approved", taskID)
	return nil
}

// RequestVoice launches a voice job. The poll runs until ctx is done,
// the job resolves, or the handle is cancelled.
func (o *Orchestrator) RequestVoice(ctx context.Context, taskID string) (*PollHandle, error) {
	return o.launcher.LaunchVoice(ctx, taskID)
}

func (o *Orchestrator) RequestVideo(ctx context.Context, in VideoLaunch) (*PollHandle, error) {
	return o.launcher.LaunchVideo(ctx, in)
}

func (o *Orchestrator) RequestComposition(ctx context.Context, in ComposeLaunch) (*PollHandle, error) {
	return o.launcher.LaunchCompose(ctx, in)
}

// PipelineRequest describes a full run
type PipelineRequest struct {
	Topic      string
	Style      string
	Length     string
	ImagePath  string
	AudioPath  string
	Prompt     string
	Compose    bool
	AudioDelay float64
	MusicPath  string
}

// PipelineResult collects the artifacts of a run
type PipelineResult struct {
	TaskID   string
	Voice    string
	Video    string
	Composed string
}

// RunPipeline creates and approves a task, runs voice and video side by
// side, and optionally composes the two results.
func (o *Orchestrator) RunPipeline(ctx context.Context, req PipelineRequest) (*PipelineResult, error) {
	if req.AudioPath != "" {
		if err := o.ProvideUploadedAsset(model.AssetKindAudio, req.AudioPath); err != nil {
			return nil, err
		}
	}
	if req.ImagePath != "" {
		if err := o.ProvideUploadedAsset(model.AssetKindImage, req.ImagePath); err != nil {
			return nil, err
		}
	}

	task, err := o.RequestTaskCreation(ctx, req.Topic, req.Style, req.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if err := o.RequestApproval(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("failed to approve task: %w", err)
	}

	result := &PipelineResult{TaskID: task.ID}
	var voiceErr, videoErr error

	var wg conc.WaitGroup
	wg.Go(func() {
		h, err := o.RequestVoice(ctx, task.ID)
		if err != nil {
			voiceErr = err
			return
		}
		result.Voice, voiceErr = h.Result()
	})
	wg.Go(func() {
		h, err := o.RequestVideo(ctx, VideoLaunch{TaskID: task.ID, Prompt: req.Prompt})
		if err != nil {
			videoErr = err
			return
		}
		result.Video, videoErr = h.Result()
	})
	wg.Wait()

	if err := errors.Join(wrapStage(StageVoice, voiceErr), wrapStage(StageVideo, videoErr)); err != nil {
		return result, err
	}

	if !req.Compose {
		return result, nil
	}

	h, err := o.RequestComposition(ctx, ComposeLaunch{
		TaskID:     task.ID,
		VideoPath:  result.Video,
		AudioPath:  result.Voice,
		AudioDelay: req.AudioDelay,
		MusicPath:  req.MusicPath,
	})
	if err != nil {
		return result, wrapStage(StageComposed, err)
	}
	result.Composed, err = h.Result()
	return result, wrapStage(StageComposed, err)
}

func wrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s stage: %w", stage, err)
}
