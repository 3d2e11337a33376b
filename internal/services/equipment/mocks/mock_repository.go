package mocks

import (
	"context"
	"time"

	"github.com/BearBump/CalibBox/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func equipmentArg(args mock.Arguments) (*models.Equipment, error) {
	var e *models.Equipment
	if v := args.Get(0); v != nil {
		e = v.(*models.Equipment)
	}
	return e, args.Error(1)
}

func (m *MockRepository) CreateEquipment(ctx context.Context, e models.Equipment) (*models.Equipment, error) {
	return equipmentArg(m.Called(ctx, e))
}

func (m *MockRepository) GetEquipment(ctx context.Context, id int64) (*models.Equipment, error) {
	return equipmentArg(m.Called(ctx, id))
}

func (m *MockRepository) UpdateEquipmentStatus(ctx context.Context, id int64, status models.EquipmentStatus) (*models.Equipment, error) {
	return equipmentArg(m.Called(ctx, id, status))
}

func (m *MockRepository) UpdateEquipmentAttributes(ctx context.Context, id int64, attrs map[string]any) (*models.Equipment, error) {
	return equipmentArg(m.Called(ctx, id, attrs))
}

func (m *MockRepository) UpdateEquipmentCategory(ctx context.Context, id int64, category models.EquipmentCategory) (*models.Equipment, error) {
	return equipmentArg(m.Called(ctx, id, category))
}

func (m *MockRepository) CountReferenceUses(ctx context.Context, equipmentID int64) (int, error) {
	args := m.Called(ctx, equipmentID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) DeleteEquipment(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) ListDueEquipment(ctx context.Context, before time.Time, limit, offset int) ([]*models.Equipment, error) {
	args := m.Called(ctx, before, limit, offset)
	var out []*models.Equipment
	if v := args.Get(0); v != nil {
		out = v.([]*models.Equipment)
	}
	return out, args.Error(1)
}
