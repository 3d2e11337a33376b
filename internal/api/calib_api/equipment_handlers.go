package calib_api

import (
	"net/http"
	"time"

	"github.com/BearBump/CalibBox/internal/models"
)

type accountBody struct {
	Username    string      `json:"username"`
	Role        models.Role `json:"role"`
	CompanyName string      `json:"companyName"`
}

func (a *API) upsertAccount(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body accountBody
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	acc, err := a.svc.Accounts.Upsert(r.Context(), actor, models.Account{
		ID:          id,
		Username:    body.Username,
		Role:        body.Role,
		CompanyName: body.CompanyName,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, acc, nil
}

func (a *API) getAccount(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	acc, err := a.svc.Accounts.Get(r.Context(), actor, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, acc, nil
}

func (a *API) removeAccount(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.svc.Accounts.Remove(r.Context(), actor, id); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

type registerEquipmentBody struct {
	Name                    string                   `json:"name"`
	SerialNumber            string                   `json:"serialNumber"`
	Manufacturer            string                   `json:"manufacturer"`
	ModelNumber             string                   `json:"modelNumber"`
	OwnerID                 int64                    `json:"ownerId"`
	Category                models.EquipmentCategory `json:"category"`
	CalibrationIntervalDays int                      `json:"calibrationIntervalDays"`
	TechnicalAttributes     map[string]any           `json:"technicalAttributes"`
}

func (a *API) registerEquipment(r *http.Request, actor models.Actor) (int, any, error) {
	var body registerEquipmentBody
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	e, err := a.svc.Equipment.Register(r.Context(), actor, models.EquipmentCreateInput{
		Name:         body.Name,
		SerialNumber: body.SerialNumber,
		Manufacturer: body.Manufacturer,
		ModelNumber:  body.ModelNumber,
		OwnerID:      body.OwnerID,
		Category:     body.Category,
		IntervalDays: body.CalibrationIntervalDays,
		Attributes:   body.TechnicalAttributes,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, e, nil
}

func (a *API) getEquipment(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	e, err := a.svc.Equipment.Get(r.Context(), actor, id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, e, nil
}

func (a *API) deleteEquipment(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.svc.Equipment.Delete(r.Context(), actor, id); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

func (a *API) updateEquipmentStatus(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		Status models.EquipmentStatus `json:"status"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	e, err := a.svc.Equipment.UpdateLifecycle(r.Context(), actor, id, body.Status)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, e, nil
}

func (a *API) updateEquipmentAttributes(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		TechnicalAttributes map[string]any `json:"technicalAttributes"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	e, err := a.svc.Equipment.UpdateAttributes(r.Context(), actor, id, body.TechnicalAttributes)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, e, nil
}

func (a *API) changeEquipmentCategory(r *http.Request, actor models.Actor) (int, any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	var body struct {
		Category models.EquipmentCategory `json:"category"`
	}
	if err := readBodyJSON(r, &body); err != nil {
		return 0, nil, err
	}
	e, err := a.svc.Equipment.ChangeCategory(r.Context(), actor, id, body.Category)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, e, nil
}

// listDueEquipment defaults "before" to 30 days from today.
func (a *API) listDueEquipment(r *http.Request, actor models.Actor) (int, any, error) {
	before, err := parseDate(r.URL.Query().Get("before"), "before")
	if err != nil {
		return 0, nil, err
	}
	if before == nil {
		t := models.CalendarDate(time.Now()).AddDate(0, 0, 30)
		before = &t
	}
	items, err := a.svc.Equipment.ListDue(r.Context(), actor, *before, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"items": items}, nil
}
