package equipment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	cachemocks "github.com/BearBump/CalibBox/internal/cache/mocks"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	equipmentmocks "github.com/BearBump/CalibBox/internal/services/equipment/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var (
	qm       = models.Actor{AccountID: 3, Role: models.RoleQualityManager}
	owner    = models.Actor{AccountID: 1, Role: models.RoleCustomer}
	stranger = models.Actor{AccountID: 2, Role: models.RoleCustomer}
)

type RegistrySuite struct {
	suite.Suite

	repo  *equipmentmocks.MockRepository
	cache *cachemocks.MockBytesCache
	svc   *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.repo = &equipmentmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.repo, s.cache, 10*time.Minute, nil, nil)
}

func (s *RegistrySuite) TestRegister_DefaultsAndCaches() {
	want := models.Equipment{
		Name: "Caliper", SerialNumber: "E-1", OwnerID: 1,
		Category: models.CategoryCustomerAsset, IntervalDays: 365, Status: models.EquipmentActive,
	}
	created := want
	created.ID = 7
	s.repo.On("CreateEquipment", mock.Anything, want).Return(&created, nil).Once()
	s.cache.On("Set", mock.Anything, "equipment:7:current", mock.Anything, 10*time.Minute).Return(nil).Once()

	out, err := s.svc.Register(context.Background(), owner, models.EquipmentCreateInput{
		Name: " Caliper ", SerialNumber: "E-1 ", OwnerID: 1,
	})
	s.Require().NoError(err)
	s.Require().EqualValues(7, out.ID)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *RegistrySuite) TestRegister_Validation() {
	ctx := context.Background()
	for _, in := range []models.EquipmentCreateInput{
		{SerialNumber: "E-1", OwnerID: 1},
		{Name: "x", OwnerID: 1},
		{Name: "x", SerialNumber: "E-1"},
		{Name: "x", SerialNumber: "E-1", OwnerID: 1, Category: "SPARE"},
		{Name: "x", SerialNumber: "E-1", OwnerID: 1, IntervalDays: -5},
	} {
		_, err := s.svc.Register(ctx, qm, in)
		s.Require().True(calerr.Is(err, calerr.KindValidation), "%+v", in)
	}
	s.repo.AssertNotCalled(s.T(), "CreateEquipment", mock.Anything, mock.Anything)
}

func (s *RegistrySuite) TestRegister_ReferenceNeedsStaff() {
	_, err := s.svc.Register(context.Background(), owner, models.EquipmentCreateInput{
		Name: "Gauge", SerialNumber: "S-1", OwnerID: 1, Category: models.CategoryReferenceStandard,
	})
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))

	_, err = s.svc.Register(context.Background(), stranger, models.EquipmentCreateInput{
		Name: "Caliper", SerialNumber: "E-1", OwnerID: 1,
	})
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))
}

func (s *RegistrySuite) TestRegister_DuplicateSerialFromStore() {
	s.repo.On("CreateEquipment", mock.Anything, mock.Anything).
		Return(nil, calerr.Validation("serial number %q is already registered", "E-1")).Once()

	_, err := s.svc.Register(context.Background(), qm, models.EquipmentCreateInput{Name: "x", SerialNumber: "E-1", OwnerID: 1})
	s.Require().True(calerr.Is(err, calerr.KindValidation))
}

func (s *RegistrySuite) TestGet_CacheHitSkipsRepo() {
	e := models.Equipment{ID: 7, OwnerID: 1, Name: "Caliper"}
	b, _ := json.Marshal(e)
	s.cache.On("Get", mock.Anything, "equipment:7:current").Return(b, true, nil).Once()

	out, err := s.svc.Get(context.Background(), owner, 7)
	s.Require().NoError(err)
	s.Require().Equal("Caliper", out.Name)
	s.repo.AssertNotCalled(s.T(), "GetEquipment", mock.Anything, mock.Anything)

	s.cache.On("Get", mock.Anything, "equipment:7:current").Return(b, true, nil).Once()
	_, err = s.svc.Get(context.Background(), stranger, 7)
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))
}

func (s *RegistrySuite) TestGet_CacheErrorFallsBackToRepo() {
	s.cache.On("Get", mock.Anything, "equipment:7:current").Return(nil, false, errors.New("redis down")).Once()
	s.repo.On("GetEquipment", mock.Anything, int64(7)).Return(&models.Equipment{ID: 7, OwnerID: 1}, nil).Once()
	s.cache.On("Set", mock.Anything, "equipment:7:current", mock.Anything, 10*time.Minute).Return(errors.New("redis down")).Once()

	out, err := s.svc.Get(context.Background(), qm, 7)
	s.Require().NoError(err)
	s.Require().EqualValues(7, out.ID)
}

func (s *RegistrySuite) TestChangeCategory_TraceabilityWhenReferenced() {
	s.cache.On("Get", mock.Anything, "equipment:9:current").Return(nil, false, nil).Once()
	s.repo.On("GetEquipment", mock.Anything, int64(9)).
		Return(&models.Equipment{ID: 9, Category: models.CategoryReferenceStandard}, nil).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s.repo.On("CountReferenceUses", mock.Anything, int64(9)).Return(2, nil).Once()

	_, err := s.svc.ChangeCategory(context.Background(), qm, 9, models.CategoryCustomerAsset)
	s.Require().True(calerr.Is(err, calerr.KindTraceability))
	s.repo.AssertNotCalled(s.T(), "UpdateEquipmentCategory", mock.Anything, mock.Anything, mock.Anything)
}

func (s *RegistrySuite) TestDelete_ForgetsCache() {
	s.cache.On("Get", mock.Anything, "equipment:7:current").Return(nil, false, nil).Once()
	s.repo.On("GetEquipment", mock.Anything, int64(7)).Return(&models.Equipment{ID: 7, OwnerID: 1}, nil).Once()
	s.cache.On("Set", mock.Anything, "equipment:7:current", mock.Anything, mock.Anything).Return(nil).Once()
	s.repo.On("DeleteEquipment", mock.Anything, int64(7)).Return(nil).Once()
	s.cache.On("Del", mock.Anything, "equipment:7:current").Return(nil).Once()

	s.Require().NoError(s.svc.Delete(context.Background(), owner, 7))
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *RegistrySuite) TestUpdateLifecycle_AnyToAny() {
	ctx := context.Background()
	s.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, nil)
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s.repo.On("GetEquipment", mock.Anything, int64(7)).
		Return(&models.Equipment{ID: 7, OwnerID: 1, Status: models.EquipmentScrapped}, nil).Once()
	s.repo.On("UpdateEquipmentStatus", mock.Anything, int64(7), models.EquipmentActive).
		Return(&models.Equipment{ID: 7, OwnerID: 1, Status: models.EquipmentActive}, nil).Once()

	out, err := s.svc.UpdateLifecycle(ctx, owner, 7, models.EquipmentActive)
	s.Require().NoError(err)
	s.Require().Equal(models.EquipmentActive, out.Status)

	_, err = s.svc.UpdateLifecycle(ctx, owner, 7, "BROKEN")
	s.Require().True(calerr.Is(err, calerr.KindValidation))
}

func (s *RegistrySuite) TestListDue_StaffOnly() {
	before := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	s.repo.On("ListDueEquipment", mock.Anything, before, 50, 0).Return([]*models.Equipment{{ID: 1}}, nil).Once()

	out, err := s.svc.ListDue(context.Background(), qm, before, 50, 0)
	s.Require().NoError(err)
	s.Require().Len(out, 1)

	_, err = s.svc.ListDue(context.Background(), owner, before, 50, 0)
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))
}

func (s *RegistrySuite) TestPlanCalibration() {
	e := &models.Equipment{ID: 5, IntervalDays: 365}
	upd := PlanCalibration(e, time.Date(2024, 1, 10, 16, 45, 0, 0, time.UTC))
	s.Require().Equal(int64(5), upd.EquipmentID)
	s.Require().Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), upd.LastCalibrationDate)
	s.Require().Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), upd.NextDueDate)
	s.Require().Equal(models.EquipmentActive, upd.Status)

	upd = PlanCalibration(&models.Equipment{ID: 5, IntervalDays: 90}, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	s.Require().Equal(time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC), upd.NextDueDate)
}
