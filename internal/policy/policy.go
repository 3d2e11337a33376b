// Package policy holds the single authorization decision point of the calibration core.
// Every service consults Authorize before mutating or exposing an entity.
package policy

import (
	"fmt"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

type Action string

const (
	ManageAccounts Action = "accounts.manage"

	RegisterEquipment Action = "equipment.register"
	RegisterReference Action = "equipment.register_reference"
	UpdateEquipment   Action = "equipment.update"
	ChangeCategory    Action = "equipment.change_category"
	DeleteEquipment   Action = "equipment.delete"
	ViewEquipment     Action = "equipment.view"

	CreateRequest Action = "request.create"
	ReviewRequest Action = "request.review"
	CancelRequest Action = "request.cancel"
	ViewRequest   Action = "request.view"

	DispatchJob      Action = "job.dispatch"
	AssignTechnician Action = "job.assign"
	WorkJob          Action = "job.work"
	ReturnJob        Action = "job.return"
	ViewJob          Action = "job.view"

	RecordResult      Action = "result.record"
	EnterMeasurements Action = "result.measurements"
	ViewResult        Action = "result.view"
)

// Resource describes the entity an action targets. OwnerID is the equipment owner (or
// the requester for request actions); TechnicianID is the job's assignee, if any.
type Resource struct {
	OwnerID      int64
	TechnicianID *int64
}

type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns an authorization error for a denied decision, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return calerr.Authorization("%s", d.Reason)
}

type rule struct {
	roles    []models.Role
	owner    bool // customers may act on what they own
	assignee bool // technicians may act on jobs assigned to them
}

var rules = map[Action]rule{
	ManageAccounts: {},

	RegisterEquipment: {roles: []models.Role{models.RoleQualityManager}, owner: true},
	RegisterReference: {roles: []models.Role{models.RoleQualityManager}},
	UpdateEquipment:   {roles: []models.Role{models.RoleQualityManager, models.RoleTechnician}, owner: true},
	ChangeCategory:    {roles: []models.Role{models.RoleQualityManager}},
	DeleteEquipment:   {roles: []models.Role{models.RoleQualityManager}, owner: true},
	ViewEquipment:     {roles: []models.Role{models.RoleQualityManager, models.RoleTechnician}, owner: true},

	CreateRequest: {roles: []models.Role{models.RoleQualityManager}, owner: true},
	ReviewRequest: {roles: []models.Role{models.RoleQualityManager}},
	CancelRequest: {roles: []models.Role{models.RoleQualityManager}, owner: true},
	ViewRequest:   {roles: []models.Role{models.RoleQualityManager, models.RoleTechnician}, owner: true},

	DispatchJob:      {roles: []models.Role{models.RoleQualityManager}},
	AssignTechnician: {roles: []models.Role{models.RoleQualityManager}},
	WorkJob:          {roles: []models.Role{models.RoleQualityManager}, assignee: true},
	ReturnJob:        {roles: []models.Role{models.RoleQualityManager}},
	ViewJob:          {roles: []models.Role{models.RoleQualityManager, models.RoleTechnician}},

	RecordResult:      {roles: []models.Role{models.RoleQualityManager}, assignee: true},
	EnterMeasurements: {roles: []models.Role{models.RoleQualityManager}, assignee: true},
	ViewResult:        {roles: []models.Role{models.RoleQualityManager, models.RoleTechnician}, owner: true},
}

// Authorize decides whether actor may perform action on res.
func Authorize(actor models.Actor, action Action, res Resource) Decision {
	if actor.Role == models.RoleAdmin {
		return Decision{Allowed: true}
	}
	r, ok := rules[action]
	if !ok {
		return Decision{Reason: fmt.Sprintf("unknown action %q", action)}
	}
	for _, role := range r.roles {
		if actor.Role == role {
			return Decision{Allowed: true}
		}
	}
	if r.owner && actor.Role == models.RoleCustomer && res.OwnerID != 0 && res.OwnerID == actor.AccountID {
		return Decision{Allowed: true}
	}
	if r.assignee && actor.Role == models.RoleTechnician && res.TechnicianID != nil && *res.TechnicianID == actor.AccountID {
		return Decision{Allowed: true}
	}
	return Decision{Reason: fmt.Sprintf("role %s may not perform %s (account %d)", actor.Role, action, actor.AccountID)}
}

// Check is Authorize folded into an error.
func Check(actor models.Actor, action Action, res Resource) error {
	return Authorize(actor, action, res).Err()
}
