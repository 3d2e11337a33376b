package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/CalibBox/internal/broker/messages"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/policy"
	"github.com/BearBump/CalibBox/internal/services/events"
	"github.com/BearBump/CalibBox/internal/workflow"
	"go.uber.org/zap"
)

const maxNotesLen = 8000

type Repository interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error)
	CreateJobOrder(ctx context.Context, j models.JobOrder) (*models.JobOrder, error)
	GetJobOrder(ctx context.Context, id int64) (*models.JobOrder, error)
	GetJobOrderByRequest(ctx context.Context, requestID int64) (*models.JobOrder, error)
	UpdateJobTechnician(ctx context.Context, id int64, technicianID int64) (*models.JobOrder, error)
	UpdateJobStatus(ctx context.Context, id int64, from, to models.JobStatus) (*models.JobOrder, error)
	UpdateJobNotes(ctx context.Context, id int64, notes string) (*models.JobOrder, error)
	ListJobs(ctx context.Context, f models.JobFilter, limit, offset int) ([]*models.JobOrder, error)
}

type Dispatcher struct {
	repo   Repository
	events *events.Emitter
	log    *zap.Logger
	now    func() time.Time
}

func New(repo Repository, ev *events.Emitter, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{repo: repo, events: ev, log: log, now: time.Now}
}

// CreateFromRequest turns an approved request into its job order. The store's unique
// constraint on the request decides races; the lookup below only answers early.
func (d *Dispatcher) CreateFromRequest(ctx context.Context, actor models.Actor, requestID int64, in models.JobCreateInput) (*models.JobOrder, error) {
	if err := policy.Check(actor, policy.DispatchJob, policy.Resource{}); err != nil {
		return nil, err
	}
	r, err := d.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.RequestApproved {
		return nil, calerr.InvalidTransition("request %d is %s, only approved requests are dispatched", r.ID, r.Status)
	}
	if existing, err := d.repo.GetJobOrderByRequest(ctx, requestID); err == nil {
		return nil, calerr.Conflict("request %d already has job order %d", requestID, existing.ID)
	} else if !calerr.Is(err, calerr.KindNotFound) {
		return nil, err
	}
	if in.TechnicianID != nil {
		if err := d.checkTechnician(ctx, *in.TechnicianID); err != nil {
			return nil, err
		}
	}

	var scheduled *time.Time
	if in.ScheduledDate != nil {
		s := models.CalendarDate(*in.ScheduledDate)
		scheduled = &s
	}
	j, err := d.repo.CreateJobOrder(ctx, models.JobOrder{
		RequestID:     r.ID,
		TechnicianID:  in.TechnicianID,
		AssignedDate:  d.now().UTC(),
		ScheduledDate: scheduled,
		Status:        models.JobAssigned,
	})
	if err != nil {
		return nil, err
	}
	d.events.Emit(ctx, messages.CalibrationEvent{
		Type:        messages.JobCreated,
		ActorID:     actor.AccountID,
		EquipmentID: r.EquipmentID,
		RequestID:   r.ID,
		JobID:       j.ID,
		Status:      string(j.Status),
	})
	d.log.Info("job order created", zap.Int64("job_id", j.ID), zap.Int64("request_id", r.ID))
	return j, nil
}

func (d *Dispatcher) checkTechnician(ctx context.Context, id int64) error {
	a, err := d.repo.GetAccount(ctx, id)
	if calerr.Is(err, calerr.KindNotFound) {
		return calerr.Validation("technician %d does not exist", id)
	}
	if err != nil {
		return err
	}
	if a.Role != models.RoleTechnician {
		return calerr.Validation("account %d has role %s, not %s", id, a.Role, models.RoleTechnician)
	}
	return nil
}

// AssignTechnician sets or replaces the assignee of an open job order.
func (d *Dispatcher) AssignTechnician(ctx context.Context, actor models.Actor, jobID, technicianID int64) (*models.JobOrder, error) {
	if err := policy.Check(actor, policy.AssignTechnician, policy.Resource{}); err != nil {
		return nil, err
	}
	cur, err := d.repo.GetJobOrder(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cur.Status == models.JobCompleted {
		return nil, calerr.InvalidTransition("job order %d is completed", jobID)
	}
	if err := d.checkTechnician(ctx, technicianID); err != nil {
		return nil, err
	}
	j, err := d.repo.UpdateJobTechnician(ctx, jobID, technicianID)
	if err != nil {
		return nil, err
	}
	d.events.Emit(ctx, messages.CalibrationEvent{
		Type:      messages.JobTechnicianAssigned,
		ActorID:   actor.AccountID,
		RequestID: j.RequestID,
		JobID:     j.ID,
		Status:    string(j.Status),
	})
	d.log.Info("technician assigned", zap.Int64("job_id", jobID), zap.Int64("technician_id", technicianID))
	return j, nil
}

// Advance moves the job along Assigned -> InProgress -> PendingReview, or sends it back
// from PendingReview to InProgress. Completion happens when a result is recorded.
func (d *Dispatcher) Advance(ctx context.Context, actor models.Actor, jobID int64, to models.JobStatus) (*models.JobOrder, error) {
	cur, err := d.repo.GetJobOrder(ctx, jobID)
	if err != nil {
		return nil, err
	}
	action := workflow.JobTransitionAction(cur.Status, to)
	if err := policy.Check(actor, action, policy.Resource{TechnicianID: cur.TechnicianID}); err != nil {
		return nil, err
	}
	if err := workflow.CanAdvanceJob(cur.Status, to); err != nil {
		return nil, err
	}
	if to == models.JobCompleted {
		return nil, calerr.InvalidTransition("job order %d completes by recording its result", jobID)
	}
	if cur.Status == models.JobAssigned && cur.TechnicianID == nil {
		return nil, calerr.Validation("job order %d has no technician", jobID)
	}

	j, err := d.repo.UpdateJobStatus(ctx, jobID, cur.Status, to)
	if err != nil {
		return nil, err
	}
	d.events.Emit(ctx, messages.CalibrationEvent{
		Type:       messages.JobStatusChanged,
		ActorID:    actor.AccountID,
		RequestID:  j.RequestID,
		JobID:      j.ID,
		Status:     string(j.Status),
		PrevStatus: string(cur.Status),
	})
	d.log.Info("job order advanced",
		zap.Int64("job_id", jobID), zap.String("from", string(cur.Status)), zap.String("to", string(j.Status)))
	return j, nil
}

func (d *Dispatcher) UpdateNotes(ctx context.Context, actor models.Actor, jobID int64, notes string) (*models.JobOrder, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) > maxNotesLen {
		return nil, calerr.Validation("notes are longer than %d bytes", maxNotesLen)
	}
	cur, err := d.repo.GetJobOrder(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.WorkJob, policy.Resource{TechnicianID: cur.TechnicianID}); err != nil {
		return nil, err
	}
	return d.repo.UpdateJobNotes(ctx, jobID, notes)
}

func (d *Dispatcher) Get(ctx context.Context, actor models.Actor, jobID int64) (*models.JobOrder, error) {
	if err := policy.Check(actor, policy.ViewJob, policy.Resource{}); err != nil {
		return nil, err
	}
	return d.repo.GetJobOrder(ctx, jobID)
}

func (d *Dispatcher) GetByRequest(ctx context.Context, actor models.Actor, requestID int64) (*models.JobOrder, error) {
	if err := policy.Check(actor, policy.ViewJob, policy.Resource{}); err != nil {
		return nil, err
	}
	return d.repo.GetJobOrderByRequest(ctx, requestID)
}

// List is the work queue. A technician without an explicit filter gets their own jobs.
func (d *Dispatcher) List(ctx context.Context, actor models.Actor, f models.JobFilter, limit, offset int) ([]*models.JobOrder, error) {
	if err := policy.Check(actor, policy.ViewJob, policy.Resource{}); err != nil {
		return nil, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, calerr.Validation("unknown job status %q", *f.Status)
	}
	if f.TechnicianID != nil && f.Unassigned {
		return nil, calerr.Validation("technician and unassigned filters are exclusive")
	}
	if actor.Role == models.RoleTechnician && f.TechnicianID == nil && !f.Unassigned {
		self := actor.AccountID
		f.TechnicianID = &self
	}
	return d.repo.ListJobs(ctx, f, limit, offset)
}
