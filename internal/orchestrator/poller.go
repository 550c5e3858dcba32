package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/model"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 120
)

// StatusFetcher is the part of the gateway a poller needs
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) ([]model.MediaJob, error)
}

// WaitFunc blocks for d or until ctx is done
type WaitFunc func(ctx context.Context, d time.Duration) error

// SleepWait waits on a real timer
func SleepWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller queries job status until a terminal state or the attempt budget runs out
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int
	wait        WaitFunc
}

func NewPoller(fetcher StatusFetcher, interval time.Duration, maxAttempts int, wait WaitFunc) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if wait == nil {
		wait = SleepWait
	}
	return &Poller{fetcher: fetcher, interval: interval, maxAttempts: maxAttempts, wait: wait}
}

// session is the ephemeral state of one poll
type session struct {
	mu  sync.Mutex
	job model.MediaJob
}

func (s *session) update(fn func(j *model.MediaJob)) {
	s.mu.Lock()
	fn(&s.job)
	s.mu.Unlock()
}

func (s *session) snapshot() model.MediaJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// Poll blocks until the job referenced by ref reaches a terminal state.
// Each attempt issues exactly one status fetch. Network and 5xx failures
// use up an attempt and the next one is scheduled; auth and not-found
// failures stop the poll.
func (p *Poller) Poll(ctx context.Context, ref model.JobRef) (string, error) {
	return p.poll(ctx, ref, newSession(ref))
}

func newSession(ref model.JobRef) *session {
	now := time.Now()
	return &session{job: model.MediaJob{
		ID:        ref.MediaID,
		TaskID:    ref.ID,
		Kind:      ref.Kind,
		Status:    model.MediaStatusPending,
		CreatedAt: now,
		StartedAt: &now,
	}}
}

func (p *Poller) poll(ctx context.Context, ref model.JobRef, s *session) (string, error) {
	op := fmt.Sprintf("poll %s job %s", ref.Kind, ref.ID)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.wait(ctx, p.interval); err != nil {
				return "", err
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		s.update(func(j *model.MediaJob) { j.Attempts = attempt })

		jobs, err := p.fetcher.FetchStatus(ctx, ref.ID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if apperr.Transient(err) {
				log.Printf("[Poller] #%d %s %s: transient error, retrying: %v", attempt, ref.Kind, ref.ID, err)
				continue
			}
			log.Printf("[Poller] #%d %s %s: giving up: %v", attempt, ref.Kind, ref.ID, err)
			p.finish(s, model.MediaStatusFailed, "", err.Error())
			return "", err
		}

		rec := locate(jobs, ref)
		if rec == nil {
			continue
		}

		switch rec.Status {
		case model.MediaStatusCompleted:
			if rec.FilePath == "" {
				// completed without an artifact is not usable yet
				continue
			}
			log.Printf("[Poller] #%d %s %s: completed → %s", attempt, ref.Kind, ref.ID, rec.FilePath)
			p.finish(s, model.MediaStatusCompleted, rec.FilePath, "")
			return rec.FilePath, nil
		case model.MediaStatusFailed:
			msg := rec.Error
			if msg == "" {
				msg = "generation failed"
			}
			log.Printf("[Poller] #%d %s %s: failed: %s", attempt, ref.Kind, ref.ID, msg)
			p.finish(s, model.MediaStatusFailed, "", msg)
			return "", apperr.ExternalService(op, msg)
		default:
			s.update(func(j *model.MediaJob) {
				if rec.ID != "" {
					j.ID = rec.ID
				}
				j.Status = model.MediaStatusProcessing
			})
		}
	}

	log.Printf("[Poller] %s %s: no terminal status after %d attempts", ref.Kind, ref.ID, p.maxAttempts)
	p.finish(s, model.MediaStatusTimedOut, "", "")
	return "", apperr.TimedOut(op, p.maxAttempts)
}

func (p *Poller) finish(s *session, status model.MediaStatus, filePath, errMsg string) {
	s.update(func(j *model.MediaJob) {
		now := time.Now()
		j.Status = status
		j.FilePath = filePath
		j.Error = errMsg
		j.UpdatedAt = &now
	})
}

// locate picks the record a poll is waiting on: the exact media id when
// known, otherwise the newest record of the wanted kind.
func locate(jobs []model.MediaJob, ref model.JobRef) *model.MediaJob {
	var found *model.MediaJob
	for i := range jobs {
		j := &jobs[i]
		if ref.MediaID != "" {
			if j.ID == ref.MediaID {
				return j
			}
			continue
		}
		if j.Kind != ref.Kind {
			continue
		}
		if found == nil || !j.CreatedAt.Before(found.CreatedAt) {
			found = j
		}
	}
	return found
}

// PollHandle controls a poll running in the background
type PollHandle struct {
	ref     model.JobRef
	session *session
	cancel  context.CancelFunc
	done    chan struct{}

	filePath string
	err      error
}

// Start runs a poll in its own goroutine and reports the outcome to sink.
// A cancelled poll reports nothing.
func (p *Poller) Start(ctx context.Context, ref model.JobRef, sink ResultSink) *PollHandle {
	pctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{
		ref:     ref,
		session: newSession(ref),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()

		filePath, err := p.poll(pctx, ref, h.session)
		h.filePath, h.err = filePath, err

		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			log.Printf("[Poller] %s %s: stopped", ref.Kind, ref.ID)
			return
		}
		if sink == nil {
			return
		}
		if err != nil {
			sink.OnRejected(StageOf(ref.Kind), err)
			return
		}
		sink.OnResolved(StageOf(ref.Kind), filePath)
	}()

	return h
}

// Ref returns the job reference this handle polls
func (h *PollHandle) Ref() model.JobRef { return h.ref }

// Cancel stops the poll; no sink call follows
func (h *PollHandle) Cancel() { h.cancel() }

// Done is closed once the poll has finished or been cancelled
func (h *PollHandle) Done() <-chan struct{} { return h.done }

// Result waits for the poll and returns the artifact path or the terminal error
func (h *PollHandle) Result() (string, error) {
	<-h.done
	return h.filePath, h.err
}

// Job returns a snapshot of the tracked media job
func (h *PollHandle) Job() model.MediaJob { return h.session.snapshot() }
