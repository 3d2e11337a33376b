// Package workflow contains the pure state machines of requests and job orders.
// No I/O here: the services load state, ask for the next status and persist it.
package workflow

import (
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
)

var requestEdges = map[models.RequestStatus]map[models.RequestAction]models.RequestStatus{
	models.RequestPending: {
		models.RequestApprove: models.RequestApproved,
		models.RequestReject:  models.RequestRejected,
		models.RequestCancel:  models.RequestCanceled,
	},
	models.RequestApproved: {
		models.RequestCancel: models.RequestCanceled,
	},
}

// NextRequestStatus applies action to a request in status from. dispatched reports
// whether a job order already exists; a dispatched request is frozen.
func NextRequestStatus(from models.RequestStatus, action models.RequestAction, dispatched bool) (models.RequestStatus, error) {
	switch action {
	case models.RequestApprove, models.RequestReject, models.RequestCancel:
	default:
		return "", calerr.Validation("unknown request action %q", action)
	}
	if dispatched {
		return "", calerr.InvalidTransition("request already dispatched to a job order, status frozen at %s", from)
	}
	to, ok := requestEdges[from][action]
	if !ok {
		return "", calerr.InvalidTransition("cannot %s a request in status %s", action, from)
	}
	return to, nil
}

// RequestTerminal reports whether no further action applies.
func RequestTerminal(s models.RequestStatus) bool {
	return s == models.RequestRejected || s == models.RequestCanceled
}
