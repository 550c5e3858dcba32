package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/model"
)

// Gate refuses downstream launches for tasks that are not approved.
// It fails closed: when approval cannot be confirmed, no launch happens.
type Gate struct {
	gw          Gateway
	pc          *PipelineContext
	autoApprove bool
}

func NewGate(gw Gateway, pc *PipelineContext, autoApprove bool) *Gate {
	return &Gate{gw: gw, pc: pc, autoApprove: autoApprove}
}

// EnsureApproved returns the task once it is known to be launchable.
// A locally held task is checked without any network request.
func (g *Gate) EnsureApproved(ctx context.Context, taskID string) (*model.Task, error) {
	const op = "ensure approved"
	if taskID == "" {
		return nil, apperr.Validation(op, "task id is required")
	}

	task, held := g.pc.Task(taskID)
	if !held {
		fetched, err := g.gw.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		g.pc.RememberTask(fetched)
		task = fetched
	}

	if task.Status.Launchable() {
		return task, nil
	}

	if !g.autoApprove {
		return nil, apperr.Validation(op, fmt.Sprintf("task %s is %s, approve it first", taskID, statusLabel(task.Status)))
	}

	log.Printf("[Gate] Auto-approving task %s (was %s)", taskID, statusLabel(task.Status))
	if err := g.gw.Approve(ctx, taskID); err != nil {
		return nil, err
	}
	g.pc.setTaskStatus(taskID, model.TaskStatusApproved)

	approved, _ := g.pc.Task(taskID)
	return approved, nil
}

func statusLabel(s model.TaskStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}
