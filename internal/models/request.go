package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
	RequestCanceled RequestStatus = "CANCELED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCanceled:
		return true
	}
	return false
}

type RequestAction string

const (
	RequestApprove RequestAction = "approve"
	RequestReject  RequestAction = "reject"
	RequestCancel  RequestAction = "cancel"
)

type CalibrationRequest struct {
	ID           int64         `json:"id"`
	TrackingCode string        `json:"trackingCode"`
	EquipmentID  int64         `json:"equipmentId"`
	RequestedBy  int64         `json:"requestedBy"`
	RequestDate  time.Time     `json:"requestDate"`
	DesiredDate  *time.Time    `json:"desiredDate,omitempty"`
	Description  string        `json:"description"`
	Status       RequestStatus `json:"status"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type RequestCreateInput struct {
	EquipmentID int64
	DesiredDate *time.Time
	Description string
}

type RequestFilter struct {
	Status      *RequestStatus
	EquipmentID *int64
	RequestedBy *int64
}
