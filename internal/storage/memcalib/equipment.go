package memcalib

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

func (s *Storage) CreateEquipment(ctx context.Context, e models.Equipment) (*models.Equipment, error) {
	attrs, err := cloneAttributes(e.Attributes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[e.OwnerID]; !ok {
		return nil, calerr.Validation("owner %d does not exist", e.OwnerID)
	}
	for _, other := range s.equipment {
		if other.SerialNumber == e.SerialNumber {
			return nil, calerr.Validation("serial number %q is already registered", e.SerialNumber)
		}
	}
	if e.IntervalDays <= 0 {
		return nil, calerr.Validation("calibration interval must be positive")
	}

	now := s.stamp()
	e.ID = s.nextID()
	e.Attributes = attrs
	e.LastCalibrationDate, e.NextDueDate, e.NextNoticeAt = nil, nil, nil
	e.NoticeFailCount = 0
	e.CreatedAt, e.UpdatedAt = now, now
	s.equipment[e.ID] = &e
	return copyEquipment(&e), nil
}

func (s *Storage) GetEquipment(ctx context.Context, id int64) (*models.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.equipment[id]
	if !ok {
		return nil, calerr.NotFound("equipment %d not found", id)
	}
	return copyEquipment(e), nil
}

func (s *Storage) GetEquipmentBySerial(ctx context.Context, serial string) (*models.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.equipment {
		if e.SerialNumber == serial {
			return copyEquipment(e), nil
		}
	}
	return nil, calerr.NotFound("equipment with serial %q not found", serial)
}

func (s *Storage) updateEquipment(id int64, fn func(e *models.Equipment) error) (*models.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.equipment[id]
	if !ok {
		return nil, calerr.NotFound("equipment %d not found", id)
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = s.stamp()
	return copyEquipment(e), nil
}

func (s *Storage) UpdateEquipmentStatus(ctx context.Context, id int64, status models.EquipmentStatus) (*models.Equipment, error) {
	return s.updateEquipment(id, func(e *models.Equipment) error {
		e.Status = status
		return nil
	})
}

func (s *Storage) UpdateEquipmentAttributes(ctx context.Context, id int64, attrs map[string]any) (*models.Equipment, error) {
	clean, err := cloneAttributes(attrs)
	if err != nil {
		return nil, err
	}
	return s.updateEquipment(id, func(e *models.Equipment) error {
		e.Attributes = clean
		return nil
	})
}

func (s *Storage) UpdateEquipmentCategory(ctx context.Context, id int64, category models.EquipmentCategory) (*models.Equipment, error) {
	return s.updateEquipment(id, func(e *models.Equipment) error {
		if n := s.referenceUses(id); n > 0 {
			return calerr.Traceability("equipment %d is the reference standard of %d recorded results", id, n)
		}
		e.Category = category
		return nil
	})
}

func (s *Storage) referenceUses(equipmentID int64) int {
	n := 0
	for _, r := range s.results {
		if r.ReferenceStandardID == equipmentID {
			n++
		}
	}
	return n
}

func (s *Storage) CountReferenceUses(ctx context.Context, equipmentID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referenceUses(equipmentID), nil
}

func (s *Storage) DeleteEquipment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.equipment[id]; !ok {
		return calerr.NotFound("equipment %d not found", id)
	}
	requests := 0
	for _, r := range s.requests {
		if r.EquipmentID == id {
			requests++
		}
	}
	if requests > 0 {
		return calerr.Conflict("equipment %d has %d calibration requests", id, requests)
	}
	if s.referenceUses(id) > 0 {
		return calerr.Conflict("equipment %d is referenced by recorded results", id)
	}
	delete(s.equipment, id)
	return nil
}

func (s *Storage) dueBefore(day time.Time, onlyActive bool) []*models.Equipment {
	var out []*models.Equipment
	for _, e := range s.equipment {
		if e.NextDueDate == nil || e.NextDueDate.After(day) {
			continue
		}
		if e.Status == models.EquipmentScrapped {
			continue
		}
		if onlyActive && e.Status != models.EquipmentActive {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDueDate.Equal(*out[j].NextDueDate) {
			return out[i].NextDueDate.Before(*out[j].NextDueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Storage) ListDueEquipment(ctx context.Context, before time.Time, limit, offset int) ([]*models.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := page(s.dueBefore(models.CalendarDate(before), false), limit, offset)
	out := make([]*models.Equipment, 0, len(due))
	for _, e := range due {
		out = append(out, copyEquipment(e))
	}
	return out, nil
}

func (s *Storage) ClaimDueEquipment(ctx context.Context, now time.Time, horizon time.Duration, limit int, lease time.Duration) ([]*models.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leaseUntil := now.UTC().Add(lease)
	out := make([]*models.Equipment, 0)
	for _, e := range s.dueBefore(models.CalendarDate(now.Add(horizon)), true) {
		if len(out) >= limit {
			break
		}
		if e.NextNoticeAt != nil && e.NextNoticeAt.After(now) {
			continue
		}
		t := leaseUntil
		e.NextNoticeAt = &t
		out = append(out, copyEquipment(e))
	}
	return out, nil
}

func (s *Storage) ScheduleDueNotice(ctx context.Context, upd models.DueNoticeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.equipment[upd.EquipmentID]
	if !ok {
		return calerr.NotFound("equipment %d not found", upd.EquipmentID)
	}
	t := upd.NextNoticeAt.UTC()
	e.NextNoticeAt = &t
	e.NoticeFailCount = upd.FailCount
	return nil
}
