// Package memcalib is an in-memory store with the same constraint behaviour as pgcalib.
// It serves tests and single-process runs without a database.
package memcalib

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

type Storage struct {
	mu  sync.RWMutex
	now func() time.Time

	accounts     map[int64]*models.Account
	equipment    map[int64]*models.Equipment
	requests     map[int64]*models.CalibrationRequest
	jobs         map[int64]*models.JobOrder
	results      map[int64]*models.CalibrationResult
	measurements map[int64]*models.MeasurementResult

	seq int64
}

func New() *Storage {
	return &Storage{
		now:          time.Now,
		accounts:     map[int64]*models.Account{},
		equipment:    map[int64]*models.Equipment{},
		requests:     map[int64]*models.CalibrationRequest{},
		jobs:         map[int64]*models.JobOrder{},
		results:      map[int64]*models.CalibrationResult{},
		measurements: map[int64]*models.MeasurementResult{},
	}
}

func (s *Storage) Close() {}

func (s *Storage) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Storage) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Storage) stamp() time.Time { return s.now().UTC() }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneAttributes(in map[string]any) (map[string]any, error) {
	if in == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, calerr.Validation("technical attributes are not a JSON document: %v", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, calerr.Validation("technical attributes are not a JSON document: %v", err)
	}
	return out, nil
}

func copyEquipment(e *models.Equipment) *models.Equipment {
	c := *e
	c.LastCalibrationDate = cloneTime(e.LastCalibrationDate)
	c.NextDueDate = cloneTime(e.NextDueDate)
	c.NextNoticeAt = cloneTime(e.NextNoticeAt)
	c.Attributes, _ = cloneAttributes(e.Attributes)
	return &c
}

func copyRequest(r *models.CalibrationRequest) *models.CalibrationRequest {
	c := *r
	c.DesiredDate = cloneTime(r.DesiredDate)
	return &c
}

func copyJob(j *models.JobOrder) *models.JobOrder {
	c := *j
	c.TechnicianID = cloneID(j.TechnicianID)
	c.ScheduledDate = cloneTime(j.ScheduledDate)
	return &c
}

func copyResult(r *models.CalibrationResult) *models.CalibrationResult {
	c := *r
	return &c
}

func copyMeasurement(m *models.MeasurementResult) *models.MeasurementResult {
	c := *m
	if m.Uncertainty != nil {
		u := *m.Uncertainty
		c.Uncertainty = &u
	}
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return make([]T, 0)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
