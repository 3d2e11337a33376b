package memcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

func (s *Storage) CreateRequest(ctx context.Context, r models.CalibrationRequest) (*models.CalibrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.equipment[r.EquipmentID]; !ok {
		return nil, calerr.NotFound("equipment %d not found", r.EquipmentID)
	}
	for _, other := range s.requests {
		if other.TrackingCode == r.TrackingCode {
			return nil, calerr.Conflict("tracking code %q already issued", r.TrackingCode)
		}
	}
	if r.RequestedBy != 0 {
		if _, ok := s.accounts[r.RequestedBy]; !ok {
			return nil, calerr.Validation("requester %d does not exist", r.RequestedBy)
		}
	}

	now := s.stamp()
	if r.RequestDate.IsZero() {
		r.RequestDate = now
	}
	r.ID = s.nextID()
	r.DesiredDate = cloneTime(r.DesiredDate)
	r.UpdatedAt = now
	s.requests[r.ID] = &r
	return copyRequest(&r), nil
}

func (s *Storage) GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, calerr.NotFound("request %d not found", id)
	}
	return copyRequest(r), nil
}

func (s *Storage) jobForRequest(requestID int64) *models.JobOrder {
	for _, j := range s.jobs {
		if j.RequestID == requestID {
			return j
		}
	}
	return nil
}

func (s *Storage) UpdateRequestStatus(ctx context.Context, id int64, from, to models.RequestStatus) (*models.CalibrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, calerr.NotFound("request %d not found", id)
	}
	if r.Status != from || s.jobForRequest(id) != nil {
		return nil, calerr.InvalidTransition("request %d is %s, expected %s without a job order", id, r.Status, from)
	}
	r.Status = to
	r.UpdatedAt = s.stamp()
	return copyRequest(r), nil
}

func (s *Storage) ListRequests(ctx context.Context, f models.RequestFilter, limit, offset int) ([]*models.CalibrationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match []*models.CalibrationRequest
	for _, id := range sortedIDs(s.requests) {
		r := s.requests[id]
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.EquipmentID != nil && r.EquipmentID != *f.EquipmentID {
			continue
		}
		if f.RequestedBy != nil && r.RequestedBy != *f.RequestedBy {
			continue
		}
		match = append(match, r)
	}
	out := make([]*models.CalibrationRequest, 0)
	for _, r := range page(match, limit, offset) {
		out = append(out, copyRequest(r))
	}
	return out, nil
}
