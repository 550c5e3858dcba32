package orchestrator

import (
	"sync"

	"github.com/pais-staff/mediaflow/internal/model"
)

// Stage names one step of the pipeline
type Stage string

const (
	StageContent  Stage = "content"
	StageVoice    Stage = "voice"
	StageVideo    Stage = "video"
	StageComposed Stage = "composed"
)

// StageOf maps a media kind to the stage that produces it
func StageOf(kind model.MediaKind) Stage {
	switch kind {
	case model.MediaKindVoice:
		return StageVoice
	case model.MediaKindVideo:
		return StageVideo
	case model.MediaKindComposed:
		return StageComposed
	}
	return Stage(kind)
}

// Registry holds the most recent identifier per stage.
// A later SetCurrent overwrites the previous id; pollers that captured
// the old id keep working with it.
type Registry struct {
	mu  sync.RWMutex
	ids map[Stage]string
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[Stage]string)}
}

func (r *Registry) SetCurrent(stage Stage, id string) {
	r.mu.Lock()
	r.ids[stage] = id
	r.mu.Unlock()
}

// Current returns the last id set for stage, or "" when none was set
func (r *Registry) Current(stage Stage) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ids[stage]
}
