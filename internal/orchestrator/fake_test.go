package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/model"
)

// statusStep is one scripted FetchStatus answer
type statusStep struct {
	jobs []model.MediaJob
	err  error
}

// fakeGateway records every call and answers status fetches from a script
type fakeGateway struct {
	mu sync.Mutex

	tasks    map[string]*model.Task
	nextTask int

	calls       map[string]int
	videoReqs   []model.VideoJobRequest
	composeReqs []model.ComposeJobRequest

	// per job id; the last step repeats once the script runs out
	scripts map[string][]statusStep
	fetches map[string]int

	startVoiceErr error
	approveErr    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tasks:   make(map[string]*model.Task),
		calls:   make(map[string]int),
		scripts: make(map[string][]statusStep),
		fetches: make(map[string]int),
	}
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeGateway) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeGateway) fetchCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[jobID]
}

func (f *fakeGateway) script(jobID string, steps ...statusStep) {
	f.mu.Lock()
	f.scripts[jobID] = steps
	f.mu.Unlock()
}

func (f *fakeGateway) addTask(id string, status model.TaskStatus) {
	f.mu.Lock()
	f.tasks[id] = &model.Task{ID: id, Status: status, CreatedAt: time.Now()}
	f.mu.Unlock()
}

func (f *fakeGateway) CreateTask(ctx context.Context, topic, style, length string) (*model.Task, error) {
	if topic == "" {
		return nil, apperr.Validation("create task", "topic is required")
	}
	f.record("CreateTask")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTask++
	id := fmt.Sprintf("task%d23", f.nextTask)
	t := &model.Task{ID: id, Status: model.TaskStatusDraft, Topic: topic, Style: style, Length: length, CreatedAt: time.Now()}
	f.tasks[id] = t
	cp := *t
	return &cp, nil
}

func (f *fakeGateway) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	f.record("GetTask")
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, &apperr.Error{Kind: apperr.KindNotFound, Op: "get task", Message: "unknown task"}
	}
	cp := *t
	return &cp, nil
}

func (f *fakeGateway) Approve(ctx context.Context, taskID string) error {
	f.record("Approve")
	if f.approveErr != nil {
		return f.approveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return &apperr.Error{Kind: apperr.KindNotFound, Op: "approve task", Message: "unknown task"}
	}
	t.Status = model.TaskStatusApproved
	return nil
}

func (f *fakeGateway) StartVoiceJob(ctx context.Context, taskID string) (*model.JobRef, error) {
	f.record("StartVoiceJob")
	if f.startVoiceErr != nil {
		return nil, f.startVoiceErr
	}
	return &model.JobRef{ID: taskID, Kind: model.MediaKindVoice}, nil
}

func (f *fakeGateway) StartVideoJob(ctx context.Context, req model.VideoJobRequest) (*model.JobRef, error) {
	f.record("StartVideoJob")
	f.mu.Lock()
	f.videoReqs = append(f.videoReqs, req)
	f.mu.Unlock()

	id := req.TaskID
	if id == "" {
		id = "task_audio"
	}
	return &model.JobRef{ID: id, Kind: model.MediaKindVideo}, nil
}

func (f *fakeGateway) StartComposeJob(ctx context.Context, req model.ComposeJobRequest) (*model.JobRef, error) {
	f.record("StartComposeJob")
	f.mu.Lock()
	f.composeReqs = append(f.composeReqs, req)
	f.mu.Unlock()
	return &model.JobRef{ID: req.TaskID, Kind: model.MediaKindComposed}, nil
}

func (f *fakeGateway) FetchStatus(ctx context.Context, jobID string) ([]model.MediaJob, error) {
	f.record("FetchStatus")
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.fetches[jobID]
	f.fetches[jobID] = n + 1

	steps := f.scripts[jobID]
	if len(steps) == 0 {
		return nil, nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	return steps[n].jobs, steps[n].err
}

// noWait makes pollers spin without timers
func noWait(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// sinkEvent is one recorded Result Sink call
type sinkEvent struct {
	stage    Stage
	filePath string
	err      error
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
	ch     chan sinkEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan sinkEvent, 16)}
}

func (s *recordingSink) OnResolved(stage Stage, filePath string) {
	s.add(sinkEvent{stage: stage, filePath: filePath})
}

func (s *recordingSink) OnRejected(stage Stage, err error) {
	s.add(sinkEvent{stage: stage, err: err})
}

func (s *recordingSink) add(e sinkEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.ch <- e
}

func (s *recordingSink) all() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEvent(nil), s.events...)
}

func processing(kind model.MediaKind) statusStep {
	return statusStep{jobs: []model.MediaJob{{ID: "m_" + string(kind), Kind: kind, Status: model.MediaStatusProcessing}}}
}

func completed(kind model.MediaKind, path string) statusStep {
	return statusStep{jobs: []model.MediaJob{{ID: "m_" + string(kind), Kind: kind, Status: model.MediaStatusCompleted, FilePath: path}}}
}
