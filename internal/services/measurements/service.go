package measurements

import (
	"context"
	"math"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/policy"
	"github.com/BearBump/CalibBox/internal/report"
	"github.com/BearBump/CalibBox/internal/services/results"
	"go.uber.org/zap"
)

type Repository interface {
	GetResult(ctx context.Context, id int64) (*models.CalibrationResult, error)
	GetJobOrder(ctx context.Context, id int64) (*models.JobOrder, error)
	GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error)
	GetEquipment(ctx context.Context, id int64) (*models.Equipment, error)
	AddMeasurement(ctx context.Context, m models.MeasurementResult) (*models.MeasurementResult, error)
	GetMeasurement(ctx context.Context, id int64) (*models.MeasurementResult, error)
	UpdateMeasurement(ctx context.Context, m models.MeasurementResult) (*models.MeasurementResult, error)
	DeleteMeasurement(ctx context.Context, id int64) error
	ListMeasurements(ctx context.Context, resultID int64) ([]*models.MeasurementResult, error)
}

// Ledger keeps the measurement points of a result. The error of a point is always
// derived from its nominal and measured values in the write that sets them.
type Ledger struct {
	repo Repository
	log  *zap.Logger
}

func New(repo Repository, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{repo: repo, log: log}
}

func (l *Ledger) AddPoint(ctx context.Context, actor models.Actor, resultID int64, in models.MeasurementInput) (*models.MeasurementResult, error) {
	if err := validatePoint(in); err != nil {
		return nil, err
	}
	if err := l.authorizeEntry(ctx, actor, resultID); err != nil {
		return nil, err
	}
	m, err := l.repo.AddMeasurement(ctx, models.NewMeasurement(resultID, in))
	if err != nil {
		return nil, err
	}
	l.log.Debug("measurement added", zap.Int64("result_id", resultID), zap.Int64("point_id", m.ID), zap.Float64("error", m.Error))
	return m, nil
}

// UpdatePoint replaces the inputs of a point; its error is recomputed in the same write.
func (l *Ledger) UpdatePoint(ctx context.Context, actor models.Actor, pointID int64, in models.MeasurementInput) (*models.MeasurementResult, error) {
	if err := validatePoint(in); err != nil {
		return nil, err
	}
	cur, err := l.repo.GetMeasurement(ctx, pointID)
	if err != nil {
		return nil, err
	}
	if err := l.authorizeEntry(ctx, actor, cur.ResultID); err != nil {
		return nil, err
	}
	m := models.NewMeasurement(cur.ResultID, in)
	m.ID = pointID
	return l.repo.UpdateMeasurement(ctx, m)
}

func (l *Ledger) DeletePoint(ctx context.Context, actor models.Actor, pointID int64) error {
	cur, err := l.repo.GetMeasurement(ctx, pointID)
	if err != nil {
		return err
	}
	if err := l.authorizeEntry(ctx, actor, cur.ResultID); err != nil {
		return err
	}
	return l.repo.DeleteMeasurement(ctx, pointID)
}

// ListPoints returns the points of a result in insertion order.
func (l *Ledger) ListPoints(ctx context.Context, actor models.Actor, resultID int64) ([]*models.MeasurementResult, error) {
	if _, err := l.authorizeView(ctx, actor, resultID); err != nil {
		return nil, err
	}
	return l.repo.ListMeasurements(ctx, resultID)
}

// Export renders the measurement table of a result as an xlsx workbook.
func (l *Ledger) Export(ctx context.Context, actor models.Actor, resultID int64) ([]byte, error) {
	res, err := l.authorizeView(ctx, actor, resultID)
	if err != nil {
		return nil, err
	}
	points, err := l.repo.ListMeasurements(ctx, resultID)
	if err != nil {
		return nil, err
	}
	job, err := l.repo.GetJobOrder(ctx, res.JobOrderID)
	if err != nil {
		return nil, err
	}
	req, err := l.repo.GetRequest(ctx, job.RequestID)
	if err != nil {
		return nil, err
	}
	eq, err := l.repo.GetEquipment(ctx, req.EquipmentID)
	if err != nil {
		return nil, err
	}
	ref, err := l.repo.GetEquipment(ctx, res.ReferenceStandardID)
	if err != nil {
		return nil, err
	}
	b, err := report.MeasurementWorkbook(report.MeasurementTable{Equipment: eq, Reference: ref, Result: res, Points: points})
	if err != nil {
		return nil, calerr.Infra(err, "render measurement workbook")
	}
	return b, nil
}

func (l *Ledger) authorizeEntry(ctx context.Context, actor models.Actor, resultID int64) error {
	res, err := l.repo.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	job, err := l.repo.GetJobOrder(ctx, res.JobOrderID)
	if err != nil {
		return err
	}
	return policy.Check(actor, policy.EnterMeasurements, policy.Resource{TechnicianID: job.TechnicianID})
}

func (l *Ledger) authorizeView(ctx context.Context, actor models.Actor, resultID int64) (*models.CalibrationResult, error) {
	res, err := l.repo.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if policy.Authorize(actor, policy.ViewResult, policy.Resource{}).Allowed {
		return res, nil
	}
	owner, err := results.OwnerOf(ctx, l.repo, res)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.ViewResult, policy.Resource{OwnerID: owner}); err != nil {
		return nil, err
	}
	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validatePoint(in models.MeasurementInput) error {
	if !finite(in.Nominal) {
		return calerr.Validation("nominal value must be a finite number")
	}
	if !finite(in.Measured) {
		return calerr.Validation("measured value must be a finite number")
	}
	if u := in.Uncertainty; u != nil && (!finite(*u) || *u < 0) {
		return calerr.Validation("uncertainty must be a finite non-negative number")
	}
	return nil
}
