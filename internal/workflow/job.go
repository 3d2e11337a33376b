package workflow

import (
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/policy"
)

var jobEdges = map[models.JobStatus][]models.JobStatus{
	models.JobAssigned:      {models.JobInProgress},
	models.JobInProgress:    {models.JobPendingReview},
	models.JobPendingReview: {models.JobCompleted, models.JobInProgress},
}

// CanAdvanceJob validates a job transition. Completed is terminal; the only backward
// edge is PendingReview -> InProgress (sent back for rework).
func CanAdvanceJob(from, to models.JobStatus) error {
	if !to.Valid() {
		return calerr.Validation("unknown job status %q", to)
	}
	if from == models.JobCompleted {
		return calerr.InvalidTransition("job order is completed")
	}
	for _, s := range jobEdges[from] {
		if s == to {
			return nil
		}
	}
	return calerr.InvalidTransition("cannot move job order from %s to %s", from, to)
}

// JobTransitionAction names the policy action guarding a transition.
func JobTransitionAction(from, to models.JobStatus) policy.Action {
	if from == models.JobPendingReview && to == models.JobInProgress {
		return policy.ReturnJob
	}
	if to == models.JobCompleted {
		return policy.RecordResult
	}
	return policy.WorkJob
}
