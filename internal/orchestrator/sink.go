package orchestrator

import (
	"sync"
)

// ResultSink receives finished artifact references and terminal errors.
// The orchestrator never presents anything itself.
type ResultSink interface {
	OnResolved(stage Stage, filePath string)
	OnRejected(stage Stage, err error)
}

// SinkFuncs adapts plain functions to a ResultSink; nil fields are ignored
type SinkFuncs struct {
	Resolved func(stage Stage, filePath string)
	Rejected func(stage Stage, err error)
}

func (s SinkFuncs) OnResolved(stage Stage, filePath string) {
	if s.Resolved != nil {
		s.Resolved(stage, filePath)
	}
}

func (s SinkFuncs) OnRejected(stage Stage, err error) {
	if s.Rejected != nil {
		s.Rejected(stage, err)
	}
}

// FanoutSink forwards every event to all current subscribers
type FanoutSink struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]ResultSink
}

func NewFanoutSink() *FanoutSink {
	return &FanoutSink{subs: make(map[int]ResultSink)}
}

// Subscribe registers s and returns a function that removes it
func (f *FanoutSink) Subscribe(s ResultSink) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *FanoutSink) OnResolved(stage Stage, filePath string) {
	for _, s := range f.snapshot() {
		s.OnResolved(stage, filePath)
	}
}

func (f *FanoutSink) OnRejected(stage Stage, err error) {
	for _, s := range f.snapshot() {
		s.OnRejected(stage, err)
	}
}

func (f *FanoutSink) snapshot() []ResultSink {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ResultSink, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out
}
