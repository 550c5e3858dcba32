package orchestrator

import (
	"context"
	"log"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/model"
)

// VideoLaunch carries the caller-supplied inputs of a video launch.
// Empty fields fall back to the pipeline context.
type VideoLaunch struct {
	TaskID    string
	ImagePath string
	Prompt    string
}

// ComposeLaunch carries the inputs of a composition launch
type ComposeLaunch struct {
	TaskID      string
	VideoPath   string
	AudioPath   string
	AudioDelay  float64
	MusicPath   string
	MusicVolume float64
}

// Launcher starts media jobs and hands each accepted job to a poller
type Launcher struct {
	gw     Gateway
	pc     *PipelineContext
	gate   *Gate
	poller *Poller
	sink   ResultSink
}

func NewLauncher(gw Gateway, pc *PipelineContext, gate *Gate, poller *Poller, sink ResultSink) *Launcher {
	return &Launcher{gw: gw, pc: pc, gate: gate, poller: poller, sink: sink}
}

// LaunchVoice starts speech synthesis for an approved task.
// An empty taskID means the current content task.
func (l *Launcher) LaunchVoice(ctx context.Context, taskID string) (*PollHandle, error) {
	const op = "launch voice"
	if taskID == "" {
		taskID = l.pc.Registry.Current(StageContent)
	}
	if taskID == "" {
		return nil, l.reject(StageVoice, apperr.Validation(op, "no content task to voice"))
	}

	if _, err := l.gate.EnsureApproved(ctx, taskID); err != nil {
		return nil, l.reject(StageVoice, err)
	}

	ref, err := l.gw.StartVoiceJob(ctx, taskID)
	if err != nil {
		return nil, l.reject(StageVoice, err)
	}

	return l.track(ctx, StageVoice, ref), nil
}

// LaunchVideo starts video synthesis. An uploaded audio asset takes
// precedence over any task id; without either the launch is refused
// before anything is sent. The audio asset is used by one accepted launch
// only, so a later launch falls back to its task.
func (l *Launcher) LaunchVideo(ctx context.Context, in VideoLaunch) (*PollHandle, error) {
	const op = "launch video"

	imagePath := in.ImagePath
	if imagePath == "" {
		if img, ok := l.pc.Asset(model.AssetKindImage); ok {
			imagePath = img.Path
		}
	}

	req := model.VideoJobRequest{ImagePath: imagePath, Prompt: in.Prompt}
	if audio, ok := l.pc.Asset(model.AssetKindAudio); ok {
		req.AudioPath = audio.Path
	} else {
		req.TaskID = l.derivedTaskID(in.TaskID)
	}

	if req.AudioPath == "" && req.TaskID == "" {
		return nil, l.reject(StageVideo, apperr.Validation(op, "missing required asset: upload audio or create a task first"))
	}
	if imagePath == "" {
		return nil, l.reject(StageVideo, apperr.Validation(op, "missing required asset: image"))
	}

	if req.TaskID != "" {
		if _, err := l.gate.EnsureApproved(ctx, req.TaskID); err != nil {
			return nil, l.reject(StageVideo, err)
		}
	}

	ref, err := l.gw.StartVideoJob(ctx, req)
	if err != nil {
		return nil, l.reject(StageVideo, err)
	}
	if req.AudioPath != "" {
		l.pc.releaseAsset(model.AssetKindAudio, req.AudioPath)
	}

	return l.track(ctx, StageVideo, ref), nil
}

// LaunchCompose merges a finished video with a voice track
func (l *Launcher) LaunchCompose(ctx context.Context, in ComposeLaunch) (*PollHandle, error) {
	const op = "launch compose"

	taskID := in.TaskID
	if taskID == "" {
		taskID = l.pc.Registry.Current(StageContent)
	}
	if taskID == "" {
		taskID = l.pc.Registry.Current(StageVideo)
	}
	if taskID == "" {
		return nil, l.reject(StageComposed, apperr.Validation(op, "no task to compose"))
	}

	if _, err := l.gate.EnsureApproved(ctx, taskID); err != nil {
		return nil, l.reject(StageComposed, err)
	}

	ref, err := l.gw.StartComposeJob(ctx, model.ComposeJobRequest{
		TaskID:      taskID,
		VideoPath:   in.VideoPath,
		AudioPath:   in.AudioPath,
		AudioDelay:  in.AudioDelay,
		MusicPath:   in.MusicPath,
		MusicVolume: in.MusicVolume,
	})
	if err != nil {
		return nil, l.reject(StageComposed, err)
	}

	return l.track(ctx, StageComposed, ref), nil
}

// derivedTaskID resolves the task a video is generated from:
// explicit id, then the voice stage, then the content stage.
func (l *Launcher) derivedTaskID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := l.pc.Registry.Current(StageVoice); id != "" {
		return id
	}
	return l.pc.Registry.Current(StageContent)
}

// track records the job id for its stage and starts its poller.
// The registry only ever points at the newest job; older pollers keep
// their own ref.
func (l *Launcher) track(ctx context.Context, stage Stage, ref *model.JobRef) *PollHandle {
	l.pc.Registry.SetCurrent(stage, ref.ID)
	log.Printf("[Launcher] %s job accepted (job=%s media=%s), polling", stage, ref.ID, ref.MediaID)
	return l.poller.Start(ctx, *ref, l.sink)
}

func (l *Launcher) reject(stage Stage, err error) error {
	log.Printf("[Launcher] %s launch refused: %v", stage, err)
	if l.sink != nil {
		l.sink.OnRejected(stage, err)
	}
	return err
}
