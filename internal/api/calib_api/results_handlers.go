package calib_api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/BearBump/CalibBox/internal/models"
)

type recordResultBody struct {
	Environment         models.Environment `json:"environment"`
	ReferenceStandardID int64              `json:"referenceStandardId"`
	Pass                bool               `json:"pass"`
	TechnicalNotes      string             `json:"technicalNotes"`
}

func (a *API) recordResult(r *http.Request, actor models.Actor) (int, any, error) {
	jobID, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body recordResultBody
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	out, err := a.svc.Results.Record(r.Context(), actor, jobID, models.ResultRecordInput{
		Environment:         body.Environment,
		ReferenceStandardID: body.ReferenceStandardID,
		Pass:                body.Pass,
		Notes:               body.TechnicalNotes,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, out, nil
}

func (a *API) getResult(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	res, err := a.svc.Results.Get(r.Context(), actor, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, res, nil
}

func (a *API) getResultByJob(r *http.Request, actor models.Actor) (int, any, error) {
	jobID, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	res, err := a.svc.Results.GetByJob(r.Context(), actor, jobID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, res, nil
}

type measurementBody struct {
	Nominal     float64  `json:"nominalValue"`
	Measured    float64  `json:"measuredValue"`
	Uncertainty *float64 `json:"uncertainty"`
}

func (b measurementBody) input() models.MeasurementInput {
	return models.MeasurementInput{Nominal: b.Nominal, Measured: b.Measured, Uncertainty: b.Uncertainty}
}

func (a *API) addMeasurement(r *http.Request, actor models.Actor) (int, any, error) {
	resultID, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body measurementBody
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	m, err := a.svc.Measurements.AddPoint(r.Context(), actor, resultID, body.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, m, nil
}

func (a *API) listMeasurements(r *http.Request, actor models.Actor) (int, any, error) {
	resultID, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	items, err := a.svc.Measurements.ListPoints(r.Context(), actor, resultID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"items": items}, nil
}

func (a *API) updateMeasurement(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body measurementBody
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	m, err := a.svc.Measurements.UpdatePoint(r.Context(), actor, id, body.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, m, nil
}

func (a *API) deleteMeasurement(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.svc.Measurements.DeletePoint(r.Context(), actor, id); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) exportMeasurements(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resultID, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	b, err := a.svc.Measurements.Export(r.Context(), actor, resultID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="result-%d-measurements.xlsx"`, resultID))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
