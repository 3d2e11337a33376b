package memcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

func (s *Storage) AddMeasurement(ctx context.Context, m models.MeasurementResult) (*models.MeasurementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[m.ResultID]; !ok {
		return nil, calerr.NotFound("result %d not found", m.ResultID)
	}
	m.ID = s.nextID()
	m.Error = models.MeasurementError(m.Nominal, m.Measured)
	s.measurements[m.ID] = copyMeasurement(&m)
	return copyMeasurement(&m), nil
}

func (s *Storage) UpdateMeasurement(ctx context.Context, m models.MeasurementResult) (*models.MeasurementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.measurements[m.ID]
	if !ok {
		return nil, calerr.NotFound("measurement %d not found", m.ID)
	}
	cur.Nominal = m.Nominal
	cur.Measured = m.Measured
	cur.Error = models.MeasurementError(m.Nominal, m.Measured)
	cur.Uncertainty = copyMeasurement(&m).Uncertainty
	return copyMeasurement(cur), nil
}

func (s *Storage) GetMeasurement(ctx context.Context, id int64) (*models.MeasurementResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.measurements[id]
	if !ok {
		return nil, calerr.NotFound("measurement %d not found", id)
	}
	return copyMeasurement(m), nil
}

func (s *Storage) ListMeasurements(ctx context.Context, resultID int64) ([]*models.MeasurementResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.MeasurementResult, 0)
	for _, id := range sortedIDs(s.measurements) {
		if m := s.measurements[id]; m.ResultID == resultID {
			out = append(out, copyMeasurement(m))
		}
	}
	return out, nil
}

func (s *Storage) DeleteMeasurement(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.measurements[id]; !ok {
		return calerr.NotFound("measurement %d not found", id)
	}
	delete(s.measurements, id)
	return nil
}
