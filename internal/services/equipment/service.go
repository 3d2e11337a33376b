package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/CalibBox/internal/broker/messages"
	"github.com/BearBump/CalibBox/internal/cache"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/policy"
	"github.com/BearBump/CalibBox/internal/services/events"
	"go.uber.org/zap"
)

type Repository interface {
	CreateEquipment(ctx context.Context, e models.Equipment) (*models.Equipment, error)
	GetEquipment(ctx context.Context, id int64) (*models.Equipment, error)
	UpdateEquipmentStatus(ctx context.Context, id int64, status models.EquipmentStatus) (*models.Equipment, error)
	UpdateEquipmentAttributes(ctx context.Context, id int64, attrs map[string]any) (*models.Equipment, error)
	UpdateEquipmentCategory(ctx context.Context, id int64, category models.EquipmentCategory) (*models.Equipment, error)
	CountReferenceUses(ctx context.Context, equipmentID int64) (int, error)
	DeleteEquipment(ctx context.Context, id int64) error
	ListDueEquipment(ctx context.Context, before time.Time, limit, offset int) ([]*models.Equipment, error)
}

type Registry struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
	events     *events.Emitter
	log        *zap.Logger
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration, ev *events.Emitter, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{repo: repo, cache: c, currentTTL: currentTTL, events: ev, log: log}
}

func (r *Registry) Register(ctx context.Context, actor models.Actor, in models.EquipmentCreateInput) (*models.Equipment, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	if in.Name == "" {
		return nil, calerr.Validation("name is required")
	}
	if in.SerialNumber == "" {
		return nil, calerr.Validation("serialNumber is required")
	}
	if in.OwnerID <= 0 {
		return nil, calerr.Validation("ownerId is required")
	}
	if in.Category == "" {
		in.Category = models.CategoryCustomerAsset
	}
	if !in.Category.Valid() {
		return nil, calerr.Validation("unknown category %q", in.Category)
	}
	if in.IntervalDays == 0 {
		in.IntervalDays = models.DefaultCalibrationIntervalDays
	}
	if in.IntervalDays < 0 {
		return nil, calerr.Validation("calibration interval must be positive")
	}

	action := policy.RegisterEquipment
	if in.Category == models.CategoryReferenceStandard {
		action = policy.RegisterReference
	}
	if err := policy.Check(actor, action, policy.Resource{OwnerID: in.OwnerID}); err != nil {
		return nil, err
	}

	e, err := r.repo.CreateEquipment(ctx, models.Equipment{
		Name:         in.Name,
		SerialNumber: in.SerialNumber,
		Manufacturer: strings.TrimSpace(in.Manufacturer),
		ModelNumber:  strings.TrimSpace(in.ModelNumber),
		OwnerID:      in.OwnerID,
		Category:     in.Category,
		IntervalDays: in.IntervalDays,
		Status:       models.EquipmentActive,
		Attributes:   in.Attributes,
	})
	if err != nil {
		return nil, err
	}
	r.remember(ctx, e)
	r.log.Info("equipment registered",
		zap.Int64("equipment_id", e.ID), zap.String("serial", e.SerialNumber), zap.String("category", string(e.Category)))
	return e, nil
}

func (r *Registry) Get(ctx context.Context, actor models.Actor, id int64) (*models.Equipment, error) {
	e, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.ViewEquipment, policy.Resource{OwnerID: e.OwnerID}); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateLifecycle sets the status. Equipment status is informational, so any status may
// follow any other.
func (r *Registry) UpdateLifecycle(ctx context.Context, actor models.Actor, id int64, status models.EquipmentStatus) (*models.Equipment, error) {
	if !status.Valid() {
		return nil, calerr.Validation("unknown equipment status %q", status)
	}
	cur, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.UpdateEquipment, policy.Resource{OwnerID: cur.OwnerID}); err != nil {
		return nil, err
	}
	if cur.Status == status {
		return cur, nil
	}
	e, err := r.repo.UpdateEquipmentStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, e)
	r.events.Emit(ctx, messages.CalibrationEvent{
		Type:        messages.EquipmentStatusChanged,
		ActorID:     actor.AccountID,
		EquipmentID: e.ID,
		Status:      string(e.Status),
		PrevStatus:  string(cur.Status),
	})
	return e, nil
}

func (r *Registry) UpdateAttributes(ctx context.Context, actor models.Actor, id int64, attrs map[string]any) (*models.Equipment, error) {
	cur, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.UpdateEquipment, policy.Resource{OwnerID: cur.OwnerID}); err != nil {
		return nil, err
	}
	e, err := r.repo.UpdateEquipmentAttributes(ctx, id, attrs)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, e)
	return e, nil
}

// ChangeCategory is refused once a result used the equipment as its reference standard,
// since flipping it would silently change the traceability of those results.
func (r *Registry) ChangeCategory(ctx context.Context, actor models.Actor, id int64, category models.EquipmentCategory) (*models.Equipment, error) {
	if !category.Valid() {
		return nil, calerr.Validation("unknown category %q", category)
	}
	if err := policy.Check(actor, policy.ChangeCategory, policy.Resource{}); err != nil {
		return nil, err
	}
	cur, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Category == category {
		return cur, nil
	}
	uses, err := r.repo.CountReferenceUses(ctx, id)
	if err != nil {
		return nil, err
	}
	if uses > 0 {
		return nil, calerr.Traceability("equipment %d is the reference standard of %d recorded results", id, uses)
	}
	e, err := r.repo.UpdateEquipmentCategory(ctx, id, category)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, e)
	r.log.Info("equipment category changed",
		zap.Int64("equipment_id", id), zap.String("from", string(cur.Category)), zap.String("to", string(category)))
	return e, nil
}

func (r *Registry) Delete(ctx context.Context, actor models.Actor, id int64) error {
	cur, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Check(actor, policy.DeleteEquipment, policy.Resource{OwnerID: cur.OwnerID}); err != nil {
		return err
	}
	if err := r.repo.DeleteEquipment(ctx, id); err != nil {
		return err
	}
	r.Forget(ctx, id)
	r.log.Info("equipment deleted", zap.Int64("equipment_id", id))
	return nil
}

// ListDue is the lab's due list: equipment whose next due date is on or before the given day.
func (r *Registry) ListDue(ctx context.Context, actor models.Actor, before time.Time, limit, offset int) ([]*models.Equipment, error) {
	if err := policy.Check(actor, policy.ViewEquipment, policy.Resource{}); err != nil {
		return nil, err
	}
	return r.repo.ListDueEquipment(ctx, before, limit, offset)
}

// PlanCalibration computes the bookkeeping of a passing calibration on the given date.
// It is the only place the due date is derived; the result recorder persists it together
// with the result.
func (r *Registry) PlanCalibration(e *models.Equipment, at time.Time) models.CalibrationUpdate {
	return PlanCalibration(e, at)
}

func PlanCalibration(e *models.Equipment, at time.Time) models.CalibrationUpdate {
	interval := e.IntervalDays
	if interval <= 0 {
		interval = models.DefaultCalibrationIntervalDays
	}
	day := models.CalendarDate(at)
	return models.CalibrationUpdate{
		EquipmentID:         e.ID,
		LastCalibrationDate: day,
		NextDueDate:         models.NextDueDate(day, interval),
		Status:              models.EquipmentActive,
	}
}

// ApplyFailPolicy moves equipment with a failed calibration to the given status on
// behalf of the system.
func (r *Registry) ApplyFailPolicy(ctx context.Context, equipmentID int64, status models.EquipmentStatus) error {
	if status == "" {
		return nil
	}
	e, err := r.UpdateLifecycle(ctx, models.SystemActor, equipmentID, status)
	if err != nil {
		return err
	}
	r.log.Info("fail policy applied", zap.Int64("equipment_id", e.ID), zap.String("status", string(e.Status)))
	return nil
}

// Forget drops the cached copy after a write made elsewhere.
func (r *Registry) Forget(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, currentKey(id)); err != nil {
		r.log.Warn("cache del", zap.Int64("equipment_id", id), zap.Error(err))
	}
}

func (r *Registry) load(ctx context.Context, id int64) (*models.Equipment, error) {
	if id <= 0 {
		return nil, calerr.Validation("equipment id is required")
	}
	if r.cache != nil && r.currentTTL > 0 {
		b, ok, err := r.cache.Get(ctx, currentKey(id))
		if err == nil && ok {
			var e models.Equipment
			if json.Unmarshal(b, &e) == nil {
				return &e, nil
			}
		}
	}
	e, err := r.repo.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, e)
	return e, nil
}

func (r *Registry) remember(ctx context.Context, e *models.Equipment) {
	if r.cache == nil || r.currentTTL <= 0 {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, currentKey(e.ID), b, r.currentTTL)
}

func currentKey(id int64) string {
	return fmt.Sprintf("equipment:%d:current", id)
}
