package results

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/BearBump/CalibBox/internal/broker/messages"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/policy"
	"github.com/BearBump/CalibBox/internal/services/events"
	"go.uber.org/zap"
)

type Repository interface {
	GetJobOrder(ctx context.Context, id int64) (*models.JobOrder, error)
	GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error)
	GetEquipment(ctx context.Context, id int64) (*models.Equipment, error)
	GetResult(ctx context.Context, id int64) (*models.CalibrationResult, error)
	GetResultByJob(ctx context.Context, jobID int64) (*models.CalibrationResult, error)
	RecordResult(ctx context.Context, w models.ResultWrite) (*models.CalibrationResult, error)
}

// Planner derives the calibration bookkeeping of the equipment and drops any cached
// copy after it changed. The equipment registry implements it.
type Planner interface {
	PlanCalibration(e *models.Equipment, at time.Time) models.CalibrationUpdate
	Forget(ctx context.Context, id int64)
}

type Outcome struct {
	Result      *models.CalibrationResult   `json:"result"`
	Calibration *models.CalibrationUpdate   `json:"calibration,omitempty"`
	Signal      *models.RecalibrationSignal `json:"signal,omitempty"`
}

type Recorder struct {
	repo    Repository
	planner Planner
	events  *events.Emitter
	log     *zap.Logger
	now     func() time.Time
}

func New(repo Repository, planner Planner, ev *events.Emitter, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{repo: repo, planner: planner, events: ev, log: log, now: time.Now}
}

// WithClock replaces the source of calibration timestamps.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record finalizes a job order in review. The result insert, the job completion and the
// due-date update of a passing verdict are persisted together.
func (r *Recorder) Record(ctx context.Context, actor models.Actor, jobID int64, in models.ResultRecordInput) (*Outcome, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	job, err := r.repo.GetJobOrder(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.RecordResult, policy.Resource{TechnicianID: job.TechnicianID}); err != nil {
		return nil, err
	}

	if existing, err := r.repo.GetResultByJob(ctx, jobID); err == nil {
		return nil, calerr.Conflict("job order %d already has result %d", jobID, existing.ID)
	} else if !calerr.Is(err, calerr.KindNotFound) {
		return nil, err
	}
	if job.Status != models.JobPendingReview {
		return nil, calerr.InvalidTransition("job order %d is %s, results are recorded in %s", jobID, job.Status, models.JobPendingReview)
	}

	req, err := r.repo.GetRequest(ctx, job.RequestID)
	if err != nil {
		return nil, err
	}
	eq, err := r.repo.GetEquipment(ctx, req.EquipmentID)
	if err != nil {
		return nil, err
	}
	ref, err := r.repo.GetEquipment(ctx, in.ReferenceStandardID)
	if err != nil {
		return nil, err
	}

	at := r.now().UTC()
	if err := checkTraceability(ref, at); err != nil {
		return nil, err
	}
	if ref.ID == eq.ID {
		return nil, calerr.Validation("equipment %d cannot be its own reference standard", eq.ID)
	}

	w := models.ResultWrite{Result: models.CalibrationResult{
		JobOrderID:          job.ID,
		Environment:         in.Environment,
		ReferenceStandardID: ref.ID,
		CalibrationDate:     at,
		TechnicalNotes:      strings.TrimSpace(in.Notes),
		Pass:                in.Pass,
	}}
	if in.Pass {
		upd := r.planner.PlanCalibration(eq, at)
		w.Calibration = &upd
	}

	res, err := r.repo.RecordResult(ctx, w)
	if err != nil {
		return nil, err
	}
	if w.Calibration != nil {
		r.planner.Forget(ctx, eq.ID)
	}

	out := &Outcome{Result: res, Calibration: w.Calibration}
	if !in.Pass {
		out.Signal = &models.RecalibrationSignal{
			EquipmentID:     eq.ID,
			SuggestedStatus: models.EquipmentOutOfService,
			Reason:          "calibration failed, equipment needs adjustment and a new request",
		}
	}

	pass := res.Pass
	ev := messages.CalibrationEvent{
		Type:        messages.ResultRecorded,
		ActorID:     actor.AccountID,
		EquipmentID: eq.ID,
		RequestID:   req.ID,
		JobID:       job.ID,
		ResultID:    res.ID,
		Status:      string(models.JobCompleted),
		PrevStatus:  string(job.Status),
		Pass:        &pass,
	}
	if w.Calibration != nil {
		due := w.Calibration.NextDueDate
		ev.DueDate = &due
	}
	r.events.Emit(ctx, ev)
	r.log.Info("result recorded",
		zap.Int64("result_id", res.ID), zap.Int64("job_id", job.ID),
		zap.Int64("equipment_id", eq.ID), zap.Int64("reference_id", ref.ID), zap.Bool("pass", res.Pass))
	return out, nil
}

func validateInput(in models.ResultRecordInput) error {
	if in.ReferenceStandardID <= 0 {
		return calerr.Validation("referenceStandardId is required")
	}
	t, h := in.Environment.Temperature, in.Environment.Humidity
	if math.IsNaN(t) || math.IsInf(t, 0) || t < -273.15 {
		return calerr.Validation("temperature %v is not a physical value", t)
	}
	if math.IsNaN(h) || h < 0 || h > 100 {
		return calerr.Validation("relative humidity %v is outside 0..100", h)
	}
	return nil
}

// checkTraceability requires the reference to be a reference standard that is itself in
// service and not overdue on the calibration day.
func checkTraceability(ref *models.Equipment, at time.Time) error {
	if ref.Category != models.CategoryReferenceStandard {
		return calerr.Traceability("equipment %d is %s, not a reference standard", ref.ID, ref.Category)
	}
	switch ref.Status {
	case models.EquipmentOutOfService, models.EquipmentScrapped:
		return calerr.Traceability("reference standard %d is %s", ref.ID, ref.Status)
	}
	if ref.NextDueDate != nil && ref.NextDueDate.Before(models.CalendarDate(at)) {
		return calerr.Traceability("reference standard %d was due on %s", ref.ID, ref.NextDueDate.Format(time.DateOnly))
	}
	return nil
}

func (r *Recorder) Get(ctx context.Context, actor models.Actor, id int64) (*models.CalibrationResult, error) {
	res, err := r.repo.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.authorizeView(ctx, actor, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Recorder) GetByJob(ctx context.Context, actor models.Actor, jobID int64) (*models.CalibrationResult, error) {
	res, err := r.repo.GetResultByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := r.authorizeView(ctx, actor, res); err != nil {
		return nil, err
	}
	return res, nil
}

// authorizeView lets staff read any result and a customer read results of equipment
// they own.
func (r *Recorder) authorizeView(ctx context.Context, actor models.Actor, res *models.CalibrationResult) error {
	if policy.Authorize(actor, policy.ViewResult, policy.Resource{}).Allowed {
		return nil
	}
	owner, err := OwnerOf(ctx, r.repo, res)
	if err != nil {
		return err
	}
	return policy.Check(actor, policy.ViewResult, policy.Resource{OwnerID: owner})
}

type ownerLookup interface {
	GetJobOrder(ctx context.Context, id int64) (*models.JobOrder, error)
	GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error)
	GetEquipment(ctx context.Context, id int64) (*models.Equipment, error)
}

// OwnerOf resolves the owner of the equipment a result was recorded for.
func OwnerOf(ctx context.Context, repo ownerLookup, res *models.CalibrationResult) (int64, error) {
	job, err := repo.GetJobOrder(ctx, res.JobOrderID)
	if err != nil {
		return 0, err
	}
	req, err := repo.GetRequest(ctx, job.RequestID)
	if err != nil {
		return 0, err
	}
	eq, err := repo.GetEquipment(ctx, req.EquipmentID)
	if err != nil {
		return 0, err
	}
	return eq.OwnerID, nil
}
