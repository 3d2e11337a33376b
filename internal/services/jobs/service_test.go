package jobs

import (
	"context"
	"testing"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/storage/memcalib"
	"github.com/stretchr/testify/suite"
)

var (
	customer = models.Actor{AccountID: 1, Role: models.RoleCustomer}
	tech     = models.Actor{AccountID: 2, Role: models.RoleTechnician}
	qm       = models.Actor{AccountID: 3, Role: models.RoleQualityManager}
	tech2    = models.Actor{AccountID: 4, Role: models.RoleTechnician}
)

type DispatcherSuite struct {
	suite.Suite

	st  *memcalib.Storage
	svc *Dispatcher
	eq  *models.Equipment
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	ctx := context.Background()
	s.st = memcalib.New()
	for _, a := range []models.Account{
		{ID: customer.AccountID, Username: "acme", Role: customer.Role},
		{ID: tech.AccountID, Username: "tech", Role: tech.Role},
		{ID: qm.AccountID, Username: "lab", Role: qm.Role},
		{ID: tech2.AccountID, Username: "tech2", Role: tech2.Role},
	} {
		_, err := s.st.UpsertAccount(ctx, a)
		s.Require().NoError(err)
	}
	var err error
	s.eq, err = s.st.CreateEquipment(ctx, models.Equipment{
		Name: "Caliper", SerialNumber: "E-1", OwnerID: customer.AccountID,
		Category: models.CategoryCustomerAsset, IntervalDays: 365, Status: models.EquipmentActive,
	})
	s.Require().NoError(err)
	s.svc = New(s.st, nil, nil)
}

func (s *DispatcherSuite) request(code string, approve bool) *models.CalibrationRequest {
	ctx := context.Background()
	r, err := s.st.CreateRequest(ctx, models.CalibrationRequest{
		TrackingCode: code, EquipmentID: s.eq.ID, RequestedBy: customer.AccountID, Status: models.RequestPending,
	})
	s.Require().NoError(err)
	if approve {
		r, err = s.st.UpdateRequestStatus(ctx, r.ID, models.RequestPending, models.RequestApproved)
		s.Require().NoError(err)
	}
	return r
}

func (s *DispatcherSuite) TestCreateFromRequest_OnlyApproved() {
	ctx := context.Background()
	pending := s.request("trk-1", false)

	_, err := s.svc.CreateFromRequest(ctx, qm, pending.ID, models.JobCreateInput{})
	s.Require().True(calerr.Is(err, calerr.KindInvalidTransition))

	for _, status := range []models.RequestStatus{models.RequestRejected, models.RequestCanceled} {
		r := s.request("trk-"+string(status), false)
		_, err := s.st.UpdateRequestStatus(ctx, r.ID, models.RequestPending, status)
		s.Require().NoError(err)
		_, err = s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{})
		s.Require().True(calerr.Is(err, calerr.KindInvalidTransition), status)
	}

	_, err = s.svc.CreateFromRequest(ctx, qm, 9999, models.JobCreateInput{})
	s.Require().True(calerr.Is(err, calerr.KindNotFound))
}

func (s *DispatcherSuite) TestCreateFromRequest_OneToOne() {
	ctx := context.Background()
	r := s.request("trk-1", true)

	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{})
	s.Require().NoError(err)
	s.Require().Equal(models.JobAssigned, j.Status)
	s.Require().Nil(j.TechnicianID)
	s.Require().False(j.AssignedDate.IsZero())

	_, err = s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{})
	s.Require().True(calerr.Is(err, calerr.KindConflict))

	byReq, err := s.svc.GetByRequest(ctx, tech, r.ID)
	s.Require().NoError(err)
	s.Require().Equal(j.ID, byReq.ID)
}

func (s *DispatcherSuite) TestCreateFromRequest_Authorization() {
	r := s.request("trk-1", true)
	for _, a := range []models.Actor{customer, tech} {
		_, err := s.svc.CreateFromRequest(context.Background(), a, r.ID, models.JobCreateInput{})
		s.Require().True(calerr.Is(err, calerr.KindAuthorization))
	}
}

func (s *DispatcherSuite) TestAssignTechnician_RoleChecked() {
	ctx := context.Background()
	r := s.request("trk-1", true)
	techID := customer.AccountID
	_, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{TechnicianID: &techID})
	s.Require().True(calerr.Is(err, calerr.KindValidation))

	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{})
	s.Require().NoError(err)

	_, err = s.svc.AssignTechnician(ctx, qm, j.ID, qm.AccountID)
	s.Require().True(calerr.Is(err, calerr.KindValidation))
	_, err = s.svc.AssignTechnician(ctx, qm, j.ID, 404)
	s.Require().True(calerr.Is(err, calerr.KindValidation))
	_, err = s.svc.AssignTechnician(ctx, tech, j.ID, tech.AccountID)
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))

	j, err = s.svc.AssignTechnician(ctx, qm, j.ID, tech.AccountID)
	s.Require().NoError(err)
	s.Require().Equal(tech.AccountID, *j.TechnicianID)
}

func (s *DispatcherSuite) TestAdvance_Transitions() {
	ctx := context.Background()
	r := s.request("trk-1", true)
	techID := tech.AccountID
	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{TechnicianID: &techID})
	s.Require().NoError(err)

	_, err = s.svc.Advance(ctx, tech, j.ID, models.JobPendingReview)
	s.Require().True(calerr.Is(err, calerr.KindInvalidTransition), "no skipping")

	_, err = s.svc.Advance(ctx, tech2, j.ID, models.JobInProgress)
	s.Require().True(calerr.Is(err, calerr.KindAuthorization), "not the assignee")

	j, err = s.svc.Advance(ctx, tech, j.ID, models.JobInProgress)
	s.Require().NoError(err)
	_, err = s.svc.Advance(ctx, tech, j.ID, models.JobAssigned)
	s.Require().True(calerr.Is(err, calerr.KindInvalidTransition), "no backward move")

	j, err = s.svc.Advance(ctx, tech, j.ID, models.JobPendingReview)
	s.Require().NoError(err)

	_, err = s.svc.Advance(ctx, tech, j.ID, models.JobInProgress)
	s.Require().True(calerr.Is(err, calerr.KindAuthorization), "only reviewers send back")

	j, err = s.svc.Advance(ctx, qm, j.ID, models.JobInProgress)
	s.Require().NoError(err)
	s.Require().Equal(models.JobInProgress, j.Status)

	j, err = s.svc.Advance(ctx, tech, j.ID, models.JobPendingReview)
	s.Require().NoError(err)

	_, err = s.svc.Advance(ctx, qm, j.ID, models.JobCompleted)
	s.Require().True(calerr.Is(err, calerr.KindInvalidTransition), "completion goes through the recorder")

	_, err = s.svc.Advance(ctx, tech, j.ID, "DONE")
	s.Require().True(calerr.Is(err, calerr.KindValidation))
}

func (s *DispatcherSuite) TestAdvance_CompletedIsTerminal() {
	ctx := context.Background()
	r := s.request("trk-1", true)
	techID := tech.AccountID
	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{TechnicianID: &techID})
	s.Require().NoError(err)
	_, err = s.st.UpdateJobStatus(ctx, j.ID, models.JobAssigned, models.JobCompleted)
	s.Require().NoError(err)

	for _, to := range []models.JobStatus{models.JobAssigned, models.JobInProgress, models.JobPendingReview, models.JobCompleted} {
		_, err := s.svc.Advance(ctx, qm, j.ID, to)
		s.Require().True(calerr.Is(err, calerr.KindInvalidTransition), to)
	}
	_, err = s.svc.AssignTechnician(ctx, qm, j.ID, tech2.AccountID)
	s.Require().True(calerr.Is(err, calerr.KindInvalidTransition))
	_, err = s.svc.UpdateNotes(ctx, tech, j.ID, "late note")
	s.Require().True(calerr.Is(err, calerr.KindInvalidTransition))
}

func (s *DispatcherSuite) TestAdvance_UnassignedCannotStart() {
	ctx := context.Background()
	r := s.request("trk-1", true)
	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{})
	s.Require().NoError(err)

	_, err = s.svc.Advance(ctx, qm, j.ID, models.JobInProgress)
	s.Require().True(calerr.Is(err, calerr.KindValidation))
}

func (s *DispatcherSuite) TestTechnicianRemovalLeavesJobUnassigned() {
	ctx := context.Background()
	r := s.request("trk-1", true)
	techID := tech.AccountID
	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{TechnicianID: &techID})
	s.Require().NoError(err)
	j, err = s.svc.Advance(ctx, tech, j.ID, models.JobInProgress)
	s.Require().NoError(err)

	s.Require().NoError(s.st.DeleteAccount(ctx, tech.AccountID))

	got, err := s.svc.Get(ctx, qm, j.ID)
	s.Require().NoError(err)
	s.Require().Nil(got.TechnicianID)
	s.Require().Equal(models.JobInProgress, got.Status)

	queue, err := s.svc.List(ctx, qm, models.JobFilter{Unassigned: true}, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(queue, 1)

	_, err = s.svc.AssignTechnician(ctx, qm, j.ID, tech2.AccountID)
	s.Require().NoError(err)
	_, err = s.svc.Advance(ctx, tech2, j.ID, models.JobPendingReview)
	s.Require().NoError(err)
}

func (s *DispatcherSuite) TestList_TechnicianQueue() {
	ctx := context.Background()
	t1, t2 := tech.AccountID, tech2.AccountID
	for i, id := range []*int64{&t1, &t2, nil} {
		r := s.request("trk-"+string(rune('a'+i)), true)
		_, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{TechnicianID: id})
		s.Require().NoError(err)
	}

	mine, err := s.svc.List(ctx, tech, models.JobFilter{}, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Require().Equal(t1, *mine[0].TechnicianID)

	all, err := s.svc.List(ctx, qm, models.JobFilter{}, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)

	_, err = s.svc.List(ctx, customer, models.JobFilter{}, 10, 0)
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))

	_, err = s.svc.List(ctx, qm, models.JobFilter{TechnicianID: &t1, Unassigned: true}, 10, 0)
	s.Require().True(calerr.Is(err, calerr.KindValidation))
}

func (s *DispatcherSuite) TestUpdateNotes() {
	ctx := context.Background()
	r := s.request("trk-1", true)
	techID := tech.AccountID
	j, err := s.svc.CreateFromRequest(ctx, qm, r.ID, models.JobCreateInput{TechnicianID: &techID})
	s.Require().NoError(err)

	j, err = s.svc.UpdateNotes(ctx, tech, j.ID, "  jaws worn, cleaned  ")
	s.Require().NoError(err)
	s.Require().Equal("jaws worn, cleaned", j.TechnicianNotes)

	_, err = s.svc.UpdateNotes(ctx, tech2, j.ID, "not mine")
	s.Require().True(calerr.Is(err, calerr.KindAuthorization))
}
