package memcalib

import (
	"context"
	"sort"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

func (s *Storage) UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.accounts {
		if id != a.ID && other.Username == a.Username {
			return nil, calerr.Conflict("username %q is taken", a.Username)
		}
	}
	now := s.stamp()
	if cur, ok := s.accounts[a.ID]; ok {
		a.CreatedAt = cur.CreatedAt
	} else {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.ID > s.seq {
		s.seq = a.ID
	}
	s.accounts[a.ID] = &a
	out := a
	return &out, nil
}

func (s *Storage) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, calerr.NotFound("account %d not found", id)
	}
	out := *a
	return &out, nil
}

func (s *Storage) OwnedEquipmentIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, e := range s.equipment {
		if e.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DeleteAccount mirrors the foreign keys of the relational schema: owned equipment
// cascades, requesters and technicians are cleared, and a reference standard still used
// by a result blocks the whole deletion.
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return calerr.NotFound("account %d not found", id)
	}

	var owned []int64
	for eid, e := range s.equipment {
		if e.OwnerID == id {
			owned = append(owned, eid)
		}
	}
	doomed := s.cascadeFromEquipment(owned)
	for _, r := range s.results {
		if _, gone := doomed.results[r.ID]; gone {
			continue
		}
		for _, eid := range owned {
			if r.ReferenceStandardID == eid {
				return calerr.Conflict("account %d owns a reference standard used by recorded results", id)
			}
		}
	}

	s.apply(doomed)
	for _, eid := range owned {
		delete(s.equipment, eid)
	}
	for _, r := range s.requests {
		if r.RequestedBy == id {
			r.RequestedBy = 0
		}
	}
	for _, j := range s.jobs {
		if j.TechnicianID != nil && *j.TechnicianID == id {
			j.TechnicianID = nil
		}
	}
	delete(s.accounts, id)
	return nil
}

type cascade struct {
	requests     map[int64]struct{}
	jobs         map[int64]struct{}
	results      map[int64]struct{}
	measurements map[int64]struct{}
}

func (s *Storage) cascadeFromEquipment(equipmentIDs []int64) cascade {
	c := cascade{
		requests:     map[int64]struct{}{},
		jobs:         map[int64]struct{}{},
		results:      map[int64]struct{}{},
		measurements: map[int64]struct{}{},
	}
	set := map[int64]struct{}{}
	for _, id := range equipmentIDs {
		set[id] = struct{}{}
	}
	for _, r := range s.requests {
		if _, ok := set[r.EquipmentID]; ok {
			c.requests[r.ID] = struct{}{}
		}
	}
	for _, j := range s.jobs {
		if _, ok := c.requests[j.RequestID]; ok {
			c.jobs[j.ID] = struct{}{}
		}
	}
	for _, r := range s.results {
		if _, ok := c.jobs[r.JobOrderID]; ok {
			c.results[r.ID] = struct{}{}
		}
	}
	for _, m := range s.measurements {
		if _, ok := c.results[m.ResultID]; ok {
			c.measurements[m.ID] = struct{}{}
		}
	}
	return c
}

func (s *Storage) apply(c cascade) {
	for id := range c.measurements {
		delete(s.measurements, id)
	}
	for id := range c.results {
		delete(s.results, id)
	}
	for id := range c.jobs {
		delete(s.jobs, id)
	}
	for id := range c.requests {
		delete(s.requests, id)
	}
}
