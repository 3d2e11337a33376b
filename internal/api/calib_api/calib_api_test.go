package calib_api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/CalibBox/internal/api/authn"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/services/accounts"
	"github.com/BearBump/CalibBox/internal/services/equipment"
	"github.com/BearBump/CalibBox/internal/services/jobs"
	"github.com/BearBump/CalibBox/internal/services/measurements"
	"github.com/BearBump/CalibBox/internal/services/requests"
	"github.com/BearBump/CalibBox/internal/services/results"
	"github.com/BearBump/CalibBox/internal/storage/memcalib"
	"github.com/stretchr/testify/suite"
)

var (
	admin    = models.Actor{AccountID: 9, Role: models.RoleAdmin}
	customer = models.Actor{AccountID: 1, Role: models.RoleCustomer}
	other    = models.Actor{AccountID: 4, Role: models.RoleCustomer}
	tech     = models.Actor{AccountID: 2, Role: models.RoleTechnician}
	qm       = models.Actor{AccountID: 3, Role: models.RoleQualityManager}
)

type APISuite struct {
	suite.Suite
	auth *authn.Authenticator
	h    http.Handler
}

func (s *APISuite) SetupTest() {
	ctx := context.Background()
	st := memcalib.New()
	for _, a := range []models.Account{
		{ID: admin.AccountID, Username: "root", Role: admin.Role},
		{ID: customer.AccountID, Username: "acme", Role: customer.Role},
		{ID: other.AccountID, Username: "globex", Role: other.Role},
		{ID: tech.AccountID, Username: "tech", Role: tech.Role},
		{ID: qm.AccountID, Username: "lab", Role: qm.Role},
	} {
		_, err := st.UpsertAccount(ctx, a)
		s.Require().NoError(err)
	}

	registry := equipment.New(st, nil, 0, nil, nil)
	clock := func() time.Time { return time.Date(2024, 1, 10, 11, 20, 0, 0, time.UTC) }
	svc := Services{
		Accounts:     accounts.New(st, nil).WithEquipmentCache(registry),
		Equipment:    registry,
		Requests:     requests.New(st, nil, nil),
		Jobs:         jobs.New(st, nil, nil),
		Results:      results.New(st, registry, nil, nil).WithClock(clock),
		Measurements: measurements.New(st, nil),
	}
	s.auth = authn.New("test-secret", "calibbox")
	s.h = New(svc, s.auth, nil).Router("")
}

func (s *APISuite) call(actor *models.Actor, method, path string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		tok, err := s.auth.Issue(*actor, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func id(m map[string]any) int64 {
	return int64(m["id"].(float64))
}

func (s *APISuite) register(actor models.Actor, serial string, category models.EquipmentCategory) int64 {
	code, e := s.call(&actor, http.MethodPost, "/v1/equipment", map[string]any{
		"name": "Instrument " + serial, "serialNumber": serial, "ownerId": actor.AccountID,
		"category": category, "calibrationIntervalDays": 365,
	})
	s.Require().Equal(http.StatusCreated, code, e)
	return id(e)
}

// jobInReview drives a request for equipment through approval, dispatch and work.
func (s *APISuite) jobInReview(equipmentID int64) int64 {
	code, r := s.call(&customer, http.MethodPost, "/v1/requests", map[string]any{
		"equipmentId": equipmentID, "desiredDate": "2024-02-01", "description": "annual",
	})
	s.Require().Equal(http.StatusCreated, code, r)
	reqID := id(r)

	code, r = s.call(&qm, http.MethodPost, fmt.Sprintf("/v1/requests/%d/transitions", reqID), map[string]any{"action": "approve"})
	s.Require().Equal(http.StatusOK, code, r)
	s.Require().Equal("APPROVED", r["status"])

	code, j := s.call(&qm, http.MethodPost, fmt.Sprintf("/v1/requests/%d/job", reqID), map[string]any{"technicianId": tech.AccountID})
	s.Require().Equal(http.StatusCreated, code, j)
	jobID := id(j)

	for _, st := range []string{"IN_PROGRESS", "REVIEW"} {
		code, j = s.call(&tech, http.MethodPut, fmt.Sprintf("/v1/jobs/%d/status", jobID), map[string]any{"status": st})
		s.Require().Equal(http.StatusOK, code, j)
	}
	return jobID
}

func (s *APISuite) TestUnauthenticated() {
	code, _ := s.call(nil, http.MethodGet, "/v1/equipment/1", nil)
	s.Equal(http.StatusUnauthorized, code)

	code, body := s.call(nil, http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, code)
	s.Equal("ok", body["status"])
}

func (s *APISuite) TestAccounts() {
	code, acc := s.call(&admin, http.MethodPut, "/v1/accounts/20", map[string]any{"username": "newtech", "role": "TECHNICIAN"})
	s.Require().Equal(http.StatusOK, code, acc)
	s.Equal("newtech", acc["username"])

	code, _ = s.call(&customer, http.MethodPut, "/v1/accounts/21", map[string]any{"username": "x", "role": "ADMIN"})
	s.Equal(http.StatusForbidden, code)

	code, _ = s.call(&customer, http.MethodGet, "/v1/accounts/20", nil)
	s.Equal(http.StatusForbidden, code)

	code, _ = s.call(&admin, http.MethodDelete, "/v1/accounts/20", nil)
	s.Equal(http.StatusNoContent, code)

	code, _ = s.call(&admin, http.MethodGet, "/v1/accounts/20", nil)
	s.Equal(http.StatusNotFound, code)
}

func (s *APISuite) TestFullCalibrationFlow() {
	asset := s.register(customer, "E-100", models.CategoryCustomerAsset)
	ref := s.register(qm, "S-1", models.CategoryReferenceStandard)
	jobID := s.jobInReview(asset)

	code, out := s.call(&tech, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/result", jobID), map[string]any{
		"environment":         map[string]any{"temperature": 20.0, "humidity": 45.0},
		"referenceStandardId": ref,
		"pass":                true,
	})
	s.Require().Equal(http.StatusCreated, code, out)
	result := out["result"].(map[string]any)
	resultID := id(result)
	s.Nil(out["signal"])

	code, e := s.call(&customer, http.MethodGet, fmt.Sprintf("/v1/equipment/%d", asset), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("2025-01-10T00:00:00Z", e["nextDueDate"])

	code, j := s.call(&qm, http.MethodGet, fmt.Sprintf("/v1/jobs/%d", jobID), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("COMPLETED", j["status"])

	code, body := s.call(&tech, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/result", jobID), map[string]any{
		"environment": map[string]any{"temperature": 20.0, "humidity": 45.0}, "referenceStandardId": ref, "pass": true,
	})
	s.Equal(http.StatusConflict, code)
	s.Equal(string(calerr.KindConflict), body["kind"])

	code, m := s.call(&tech, http.MethodPost, fmt.Sprintf("/v1/results/%d/measurements", resultID), map[string]any{
		"nominalValue": 10.0, "measuredValue": 10.02, "uncertainty": 0.01,
	})
	s.Require().Equal(http.StatusCreated, code, m)
	s.InDelta(0.02, m["error"].(float64), 1e-9)

	code, m = s.call(&tech, http.MethodPut, fmt.Sprintf("/v1/measurements/%d", id(m)), map[string]any{
		"nominalValue": 10.0, "measuredValue": 9.97,
	})
	s.Require().Equal(http.StatusOK, code, m)
	s.InDelta(-0.03, m["error"].(float64), 1e-9)

	code, list := s.call(&customer, http.MethodGet, fmt.Sprintf("/v1/results/%d/measurements", resultID), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(list["items"], 1)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/results/%d/measurements/export", resultID), nil)
	tok, err := s.auth.Issue(qm, time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(xlsxContentType, rec.Header().Get("Content-Type"))
	s.Greater(rec.Body.Len(), 0)

	code, res := s.call(&customer, http.MethodGet, fmt.Sprintf("/v1/jobs/%d/result", jobID), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(float64(ref), res["referenceStandardId"])

	code, _ = s.call(&other, http.MethodGet, fmt.Sprintf("/v1/results/%d", resultID), nil)
	s.Equal(http.StatusForbidden, code)

	code, body = s.call(&qm, http.MethodPut, fmt.Sprintf("/v1/equipment/%d/category", ref), map[string]any{"category": "CUSTOMER"})
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Equal(string(calerr.KindTraceability), body["kind"])
}

func (s *APISuite) TestTraceabilityRejected() {
	asset := s.register(customer, "E-200", models.CategoryCustomerAsset)
	notRef := s.register(customer, "E-201", models.CategoryCustomerAsset)
	jobID := s.jobInReview(asset)

	code, body := s.call(&tech, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/result", jobID), map[string]any{
		"environment": map[string]any{"temperature": 21.0, "humidity": 40.0}, "referenceStandardId": notRef, "pass": true,
	})
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Equal(string(calerr.KindTraceability), body["kind"])

	code, j := s.call(&qm, http.MethodGet, fmt.Sprintf("/v1/jobs/%d", jobID), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("REVIEW", j["status"])
}

func (s *APISuite) TestRequestStateMachine() {
	asset := s.register(customer, "E-300", models.CategoryCustomerAsset)
	code, r := s.call(&customer, http.MethodPost, "/v1/requests", map[string]any{"equipmentId": asset})
	s.Require().Equal(http.StatusCreated, code, r)
	reqID := id(r)

	code, _ = s.call(&customer, http.MethodPost, fmt.Sprintf("/v1/requests/%d/transitions", reqID), map[string]any{"action": "approve"})
	s.Equal(http.StatusForbidden, code)

	code, _ = s.call(&other, http.MethodGet, fmt.Sprintf("/v1/requests/%d", reqID), nil)
	s.Equal(http.StatusForbidden, code)

	code, _ = s.call(&qm, http.MethodPost, fmt.Sprintf("/v1/requests/%d/job", reqID), nil)
	s.Equal(http.StatusConflict, code, "pending requests cannot be dispatched")

	code, r = s.call(&customer, http.MethodPost, fmt.Sprintf("/v1/requests/%d/transitions", reqID), map[string]any{"action": "cancel"})
	s.Require().Equal(http.StatusOK, code)
	s.Equal("CANCELED", r["status"])

	code, body := s.call(&qm, http.MethodPost, fmt.Sprintf("/v1/requests/%d/transitions", reqID), map[string]any{"action": "approve"})
	s.Equal(http.StatusConflict, code)
	s.Equal(string(calerr.KindInvalidTransition), body["kind"])

	code, list := s.call(&qm, http.MethodGet, "/v1/requests?status=CANCELED", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(list["items"], 1)

	code, _ = s.call(&qm, http.MethodGet, "/v1/requests?status=BOGUS", nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *APISuite) TestJobQueueAndValidation() {
	asset := s.register(customer, "E-400", models.CategoryCustomerAsset)
	jobID := s.jobInReview(asset)

	code, list := s.call(&tech, http.MethodGet, "/v1/jobs", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(list["items"], 1)

	code, _ = s.call(&tech, http.MethodPut, fmt.Sprintf("/v1/jobs/%d/status", jobID), map[string]any{"status": "COMPLETED"})
	s.Equal(http.StatusConflict, code)

	code, j := s.call(&tech, http.MethodPut, fmt.Sprintf("/v1/jobs/%d/notes", jobID), map[string]any{"technicianNotes": "zeroed"})
	s.Require().Equal(http.StatusOK, code, j)
	s.Equal("zeroed", j["technicianNotes"])

	code, _ = s.call(&customer, http.MethodPost, "/v1/equipment", map[string]any{"serialNumber": "X", "ownerId": customer.AccountID})
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.call(&customer, http.MethodGet, "/v1/equipment/abc", nil)
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.call(&qm, http.MethodGet, "/v1/equipment/999", nil)
	s.Equal(http.StatusNotFound, code)

	code, _ = s.call(&customer, http.MethodPost, "/v1/requests", nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *APISuite) TestDueList() {
	asset := s.register(customer, "E-500", models.CategoryCustomerAsset)
	ref := s.register(qm, "S-5", models.CategoryReferenceStandard)
	jobID := s.jobInReview(asset)
	code, out := s.call(&tech, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/result", jobID), map[string]any{
		"environment": map[string]any{"temperature": 20.0, "humidity": 50.0}, "referenceStandardId": ref, "pass": true,
	})
	s.Require().Equal(http.StatusCreated, code, out)

	code, list := s.call(&qm, http.MethodGet, "/v1/equipment/due?before=2025-02-01", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(list["items"], 1)

	code, list = s.call(&qm, http.MethodGet, "/v1/equipment/due?before=2024-12-01", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Len(list["items"], 0)

	code, _ = s.call(&customer, http.MethodGet, "/v1/equipment/due", nil)
	s.Equal(http.StatusForbidden, code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func TestStatusFor(t *testing.T) {
	cases := map[calerr.Kind]int{
		calerr.KindValidation:        http.StatusBadRequest,
		calerr.KindAuthorization:     http.StatusForbidden,
		calerr.KindInvalidTransition: http.StatusConflict,
		calerr.KindConflict:          http.StatusConflict,
		calerr.KindTraceability:      http.StatusUnprocessableEntity,
		calerr.KindNotFound:          http.StatusNotFound,
		calerr.KindInfrastructure:    http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := statusFor(k); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", k, got, want)
		}
	}
}
