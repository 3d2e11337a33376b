package memcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

func (s *Storage) CreateJobOrder(ctx context.Context, j models.JobOrder) (*models.JobOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[j.RequestID]
	if !ok {
		return nil, calerr.NotFound("request %d not found", j.RequestID)
	}
	if r.Status != models.RequestApproved {
		return nil, calerr.InvalidTransition("request %d is %s, only approved requests are dispatched", j.RequestID, r.Status)
	}
	if s.jobForRequest(j.RequestID) != nil {
		return nil, calerr.Conflict("request %d already has a job order", j.RequestID)
	}
	if j.TechnicianID != nil {
		if _, ok := s.accounts[*j.TechnicianID]; !ok {
			return nil, calerr.Validation("technician does not exist")
		}
	}

	now := s.stamp()
	if j.AssignedDate.IsZero() {
		j.AssignedDate = now
	}
	j.ID = s.nextID()
	j.TechnicianID = cloneID(j.TechnicianID)
	j.ScheduledDate = cloneTime(j.ScheduledDate)
	j.UpdatedAt = now
	s.jobs[j.ID] = &j
	return copyJob(&j), nil
}

func (s *Storage) GetJobOrder(ctx context.Context, id int64) (*models.JobOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, calerr.NotFound("job order %d not found", id)
	}
	return copyJob(j), nil
}

func (s *Storage) GetJobOrderByRequest(ctx context.Context, requestID int64) (*models.JobOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if j := s.jobForRequest(requestID); j != nil {
		return copyJob(j), nil
	}
	return nil, calerr.NotFound("request %d has no job order", requestID)
}

func (s *Storage) updateOpenJob(id int64, fn func(j *models.JobOrder) error) (*models.JobOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, calerr.NotFound("job order %d not found", id)
	}
	if j.Status == models.JobCompleted {
		return nil, calerr.InvalidTransition("job order %d is completed", id)
	}
	if err := fn(j); err != nil {
		return nil, err
	}
	j.UpdatedAt = s.stamp()
	return copyJob(j), nil
}

func (s *Storage) UpdateJobTechnician(ctx context.Context, id int64, technicianID int64) (*models.JobOrder, error) {
	return s.updateOpenJob(id, func(j *models.JobOrder) error {
		if _, ok := s.accounts[technicianID]; !ok {
			return calerr.Validation("technician %d does not exist", technicianID)
		}
		j.TechnicianID = &technicianID
		return nil
	})
}

func (s *Storage) UpdateJobStatus(ctx context.Context, id int64, from, to models.JobStatus) (*models.JobOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, calerr.NotFound("job order %d not found", id)
	}
	if j.Status != from {
		return nil, calerr.InvalidTransition("job order %d is %s, expected %s", id, j.Status, from)
	}
	j.Status = to
	j.UpdatedAt = s.stamp()
	return copyJob(j), nil
}

func (s *Storage) UpdateJobNotes(ctx context.Context, id int64, notes string) (*models.JobOrder, error) {
	return s.updateOpenJob(id, func(j *models.JobOrder) error {
		j.TechnicianNotes = notes
		return nil
	})
}

func (s *Storage) ListJobs(ctx context.Context, f models.JobFilter, limit, offset int) ([]*models.JobOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match []*models.JobOrder
	for _, id := range sortedIDs(s.jobs) {
		j := s.jobs[id]
		if f.TechnicianID != nil && (j.TechnicianID == nil || *j.TechnicianID != *f.TechnicianID) {
			continue
		}
		if f.Unassigned && j.TechnicianID != nil {
			continue
		}
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		match = append(match, j)
	}
	out := make([]*models.JobOrder, 0)
	for _, j := range page(match, limit, offset) {
		out = append(out, copyJob(j))
	}
	return out, nil
}
