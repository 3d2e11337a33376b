package memcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

func (s *Storage) RecordResult(ctx context.Context, w models.ResultWrite) (*models.CalibrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := w.Result
	j, ok := s.jobs[r.JobOrderID]
	if !ok {
		return nil, calerr.NotFound("job order %d not found", r.JobOrderID)
	}
	for _, existing := range s.results {
		if existing.JobOrderID == r.JobOrderID {
			return nil, calerr.Conflict("job order %d already has result %d", r.JobOrderID, existing.ID)
		}
	}
	if j.Status != models.JobPendingReview {
		return nil, calerr.InvalidTransition("job order %d is %s, results are recorded in %s", r.JobOrderID, j.Status, models.JobPendingReview)
	}
	ref, ok := s.equipment[r.ReferenceStandardID]
	if !ok {
		return nil, calerr.NotFound("reference standard %d not found", r.ReferenceStandardID)
	}
	if ref.Category != models.CategoryReferenceStandard {
		return nil, calerr.Traceability("equipment %d is %s, not a reference standard", r.ReferenceStandardID, ref.Category)
	}
	var target *models.Equipment
	if c := w.Calibration; c != nil {
		target, ok = s.equipment[c.EquipmentID]
		if !ok {
			return nil, calerr.NotFound("equipment %d not found", c.EquipmentID)
		}
	}

	now := s.stamp()
	r.ID = s.nextID()
	r.CalibrationDate = r.CalibrationDate.UTC()
	s.results[r.ID] = &r

	j.Status = models.JobCompleted
	j.UpdatedAt = now

	if c := w.Calibration; c != nil {
		last := models.CalendarDate(c.LastCalibrationDate)
		next := models.CalendarDate(c.NextDueDate)
		target.LastCalibrationDate = &last
		target.NextDueDate = &next
		target.Status = c.Status
		target.NextNoticeAt = nil
		target.NoticeFailCount = 0
		target.UpdatedAt = now
	}
	return copyResult(&r), nil
}

func (s *Storage) GetResult(ctx context.Context, id int64) (*models.CalibrationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, calerr.NotFound("result %d not found", id)
	}
	return copyResult(r), nil
}

func (s *Storage) GetResultByJob(ctx context.Context, jobID int64) (*models.CalibrationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.results {
		if r.JobOrderID == jobID {
			return copyResult(r), nil
		}
	}
	return nil, calerr.NotFound("job order %d has no result", jobID)
}
