package requests

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
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxDescriptionLen = 4000

type Repository interface {
	GetEquipment(ctx context.Context, id int64) (*models.Equipment, error)
	CreateRequest(ctx context.Context, r models.CalibrationRequest) (*models.CalibrationRequest, error)
	GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error)
	UpdateRequestStatus(ctx context.Context, id int64, from, to models.RequestStatus) (*models.CalibrationRequest, error)
	ListRequests(ctx context.Context, f models.RequestFilter, limit, offset int) ([]*models.CalibrationRequest, error)
	GetJobOrderByRequest(ctx context.Context, requestID int64) (*models.JobOrder, error)
}

type Intake struct {
	repo    Repository
	events  *events.Emitter
	log     *zap.Logger
	now     func() time.Time
	newCode func() string
}

func New(repo Repository, ev *events.Emitter, log *zap.Logger) *Intake {
	if log == nil {
		log = zap.NewNop()
	}
	return &Intake{repo: repo, events: ev, log: log, now: time.Now, newCode: uuid.NewString}
}

// Create files a request on behalf of the actor, who must own the equipment or be staff.
func (s *Intake) Create(ctx context.Context, actor models.Actor, in models.RequestCreateInput) (*models.CalibrationRequest, error) {
	if in.EquipmentID <= 0 {
		return nil, calerr.Validation("equipmentId is required")
	}
	in.Description = strings.TrimSpace(in.Description)
	if len(in.Description) > maxDescriptionLen {
		return nil, calerr.Validation("description is longer than %d bytes", maxDescriptionLen)
	}

	e, err := s.repo.GetEquipment(ctx, in.EquipmentID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.CreateRequest, policy.Resource{OwnerID: e.OwnerID}); err != nil {
		return nil, err
	}
	if e.Status == models.EquipmentScrapped {
		return nil, calerr.Validation("equipment %d is scrapped", e.ID)
	}

	var desired *time.Time
	if in.DesiredDate != nil {
		d := models.CalendarDate(*in.DesiredDate)
		desired = &d
	}

	r, err := s.repo.CreateRequest(ctx, models.CalibrationRequest{
		TrackingCode: s.newCode(),
		EquipmentID:  e.ID,
		RequestedBy:  actor.AccountID,
		RequestDate:  s.now().UTC(),
		DesiredDate:  desired,
		Description:  in.Description,
		Status:       models.RequestPending,
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, messages.CalibrationEvent{
		Type:        messages.RequestCreated,
		ActorID:     actor.AccountID,
		EquipmentID: e.ID,
		RequestID:   r.ID,
		Status:      string(r.Status),
	})
	s.log.Info("request created", zap.Int64("request_id", r.ID), zap.String("tracking_code", r.TrackingCode))
	return r, nil
}

func (s *Intake) Get(ctx context.Context, actor models.Actor, id int64) (*models.CalibrationRequest, error) {
	r, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.ViewRequest, policy.Resource{OwnerID: r.RequestedBy}); err != nil {
		return nil, err
	}
	return r, nil
}

// Transition applies approve, reject or cancel. Once a job order exists the request
// status is frozen.
func (s *Intake) Transition(ctx context.Context, actor models.Actor, id int64, action models.RequestAction) (*models.CalibrationRequest, error) {
	r, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	switch action {
	case models.RequestApprove, models.RequestReject:
		err = policy.Check(actor, policy.ReviewRequest, policy.Resource{})
	case models.RequestCancel:
		err = policy.Check(actor, policy.CancelRequest, policy.Resource{OwnerID: r.RequestedBy})
	default:
		err = calerr.Validation("unknown request action %q", action)
	}
	if err != nil {
		return nil, err
	}

	dispatched := false
	if r.Status == models.RequestApproved {
		_, jerr := s.repo.GetJobOrderByRequest(ctx, id)
		switch {
		case jerr == nil:
			dispatched = true
		case !calerr.Is(jerr, calerr.KindNotFound):
			return nil, jerr
		}
	}

	next, err := workflow.NextRequestStatus(r.Status, action, dispatched)
	if err != nil {
		return nil, err
	}

	out, err := s.repo.UpdateRequestStatus(ctx, id, r.Status, next)
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, messages.CalibrationEvent{
		Type:        messages.RequestStatusChanged,
		ActorID:     actor.AccountID,
		EquipmentID: out.EquipmentID,
		RequestID:   out.ID,
		Status:      string(out.Status),
		PrevStatus:  string(r.Status),
	})
	s.log.Info("request transitioned",
		zap.Int64("request_id", id), zap.String("action", string(action)),
		zap.String("from", string(r.Status)), zap.String("to", string(out.Status)))
	return out, nil
}

// List is the request queue. Customers only ever see their own requests.
func (s *Intake) List(ctx context.Context, actor models.Actor, f models.RequestFilter, limit, offset int) ([]*models.CalibrationRequest, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, calerr.Validation("unknown request status %q", *f.Status)
	}
	if actor.Role == models.RoleCustomer {
		self := actor.AccountID
		f.RequestedBy = &self
	} else if err := policy.Check(actor, policy.ViewRequest, policy.Resource{}); err != nil {
		return nil, err
	}
	return s.repo.ListRequests(ctx, f, limit, offset)
}
