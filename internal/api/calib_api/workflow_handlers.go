package calib_api

import (
	"net/http"
	"strconv"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

type createRequestBody struct {
	EquipmentID int64  `json:"equipmentId"`
	DesiredDate string `json:"desiredDate"`
	Description string `json:"description"`
}

func (a *API) createRequest(r *http.Request, actor models.Actor) (int, any, error) {
	var body createRequestBody
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	desired, err := parseDate(body.DesiredDate, "desiredDate")
	if err != nil {
		return 0, nil, err
	}
	req, err := a.svc.Requests.Create(r.Context(), actor, models.RequestCreateInput{
		EquipmentID: body.EquipmentID,
		DesiredDate: desired,
		Description: body.Description,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, req, nil
}

func (a *API) getRequest(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	req, err := a.svc.Requests.Get(r.Context(), actor, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, req, nil
}

func (a *API) transitionRequest(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		Action models.RequestAction `json:"action"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	req, err := a.svc.Requests.Transition(r.Context(), actor, id, body.Action)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, req, nil
}

func (a *API) listRequests(r *http.Request, actor models.Actor) (int, any, error) {
	var f models.RequestFilter
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.RequestStatus(s)
		if !st.Valid() {
			return 0, nil, calerr.Validation("unknown request status %q", s)
		}
		f.Status = &st
	}
	var err error
	if f.EquipmentID, err = queryID(r, "equipmentId"); err != nil {
		return 0, nil, err
	}
	if f.RequestedBy, err = queryID(r, "requestedBy"); err != nil {
		return 0, nil, err
	}
	items, err := a.svc.Requests.List(r.Context(), actor, f, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"items": items}, nil
}

type createJobBody struct {
	TechnicianID  *int64 `json:"technicianId"`
	ScheduledDate string `json:"scheduledDate"`
}

func (a *API) createJob(r *http.Request, actor models.Actor) (int, any, error) {
	requestID, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body createJobBody
	if err := readOptionalBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	scheduled, err := parseDate(body.ScheduledDate, "scheduledDate")
	if err != nil {
		return 0, nil, err
	}
	job, err := a.svc.Jobs.CreateFromRequest(r.Context(), actor, requestID, models.JobCreateInput{
		TechnicianID:  body.TechnicianID,
		ScheduledDate: scheduled,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, job, nil
}

func (a *API) getJobByRequest(r *http.Request, actor models.Actor) (int, any, error) {
	requestID, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	job, err := a.svc.Jobs.GetByRequest(r.Context(), actor, requestID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, job, nil
}

func (a *API) getJob(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	job, err := a.svc.Jobs.Get(r.Context(), actor, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, job, nil
}

func (a *API) listJobs(r *http.Request, actor models.Actor) (int, any, error) {
	var f models.JobFilter
	var err error
	if f.TechnicianID, err = queryID(r, "technicianId"); err != nil {
		return 0, nil, err
	}
	if s := r.URL.Query().Get("unassigned"); s != "" {
		if f.Unassigned, err = strconv.ParseBool(s); err != nil {
			return 0, nil, calerr.Validation("unassigned must be a boolean")
		}
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.JobStatus(s)
		if !st.Valid() {
			return 0, nil, calerr.Validation("unknown job status %q", s)
		}
		f.Status = &st
	}
	items, err := a.svc.Jobs.List(r.Context(), actor, f, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"items": items}, nil
}

func (a *API) assignTechnician(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		TechnicianID int64 `json:"technicianId"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	job, err := a.svc.Jobs.AssignTechnician(r.Context(), actor, id, body.TechnicianID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, job, nil
}

func (a *API) advanceJob(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		Status models.JobStatus `json:"status"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	job, err := a.svc.Jobs.Advance(r.Context(), actor, id, body.Status)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, job, nil
}

func (a *API) updateJobNotes(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		Notes string `json:"technicianNotes"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	job, err := a.svc.Jobs.UpdateNotes(r.Context(), actor, id, body.Notes)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, job, nil
}
