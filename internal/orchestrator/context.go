package orchestrator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/model"
)

// PipelineContext is the per-session state shared by the stages: the
// registry of current ids, the uploaded assets and the last-known copy
// of every task this session has seen.
type PipelineContext struct {
	Registry *Registry

	mu     sync.RWMutex
	assets map[model.AssetKind]model.UploadedAsset
	tasks  map[string]model.Task
}

func NewPipelineContext() *PipelineContext {
	return &PipelineContext{
		Registry: NewRegistry(),
		assets:   make(map[model.AssetKind]model.UploadedAsset),
		tasks:    make(map[string]model.Task),
	}
}

// ProvideUploadedAsset records the path handed over by the upload collaborator.
// One asset per kind is kept; a new upload replaces the old one.
func (p *PipelineContext) ProvideUploadedAsset(kind model.AssetKind, path string) error {
	const op = "provide uploaded asset"
	if kind != model.AssetKindAudio && kind != model.AssetKindImage {
		return apperr.Validation(op, fmt.Sprintf("unknown asset kind %q", kind))
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return apperr.Validation(op, "asset path is required")
	}

	p.mu.Lock()
	p.assets[kind] = model.UploadedAsset{Path: path, Kind: kind}
	p.mu.Unlock()
	return nil
}

// Asset returns a snapshot of the uploaded asset of the given kind
func (p *PipelineContext) Asset(kind model.AssetKind) (model.UploadedAsset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.assets[kind]
	return a, ok
}

// ClearAsset forgets an uploaded asset
func (p *PipelineContext) ClearAsset(kind model.AssetKind) {
	p.mu.Lock()
	delete(p.assets, kind)
	p.mu.Unlock()
}

// releaseAsset forgets the asset of kind if it still points at path.
// An upload that replaced it in the meantime is kept.
func (p *PipelineContext) releaseAsset(kind model.AssetKind, path string) {
	p.mu.Lock()
	if a, ok := p.assets[kind]; ok && a.Path == path {
		delete(p.assets, kind)
	}
	p.mu.Unlock()
}

// ProvideUpstreamTaskID lets another module hand over an id it produced
func (p *PipelineContext) ProvideUpstreamTaskID(stage Stage, id string) {
	p.Registry.SetCurrent(stage, id)
}

// RememberTask stores a copy of task as the last-known state
func (p *PipelineContext) RememberTask(task *model.Task) {
	if task == nil || task.ID == "" {
		return
	}
	p.mu.Lock()
	p.tasks[task.ID] = *task
	p.mu.Unlock()
}

// Task returns the last-known copy of a task
func (p *PipelineContext) Task(id string) (*model.Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (p *PipelineContext) setTaskStatus(id string, status model.TaskStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok {
		t = model.Task{ID: id}
	}
	t.Status = status
	p.tasks[id] = t
}
