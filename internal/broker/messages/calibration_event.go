package messages

import (
	"strconv"
	"time"
)

const (
	RequestCreated         = "request.created"
	RequestStatusChanged   = "request.status_changed"
	JobCreated             = "job.created"
	JobStatusChanged       = "job.status_changed"
	JobTechnicianAssigned  = "job.technician_assigned"
	ResultRecorded         = "result.recorded"
	EquipmentStatusChanged = "equipment.status_changed"
	EquipmentDue           = "equipment.due"
)

// CalibrationEvent is the envelope published to the events topic after a commit.
type CalibrationEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ActorID    int64     `json:"actor_id,omitempty"`

	EquipmentID int64 `json:"equipment_id,omitempty"`
	RequestID   int64 `json:"request_id,omitempty"`
	JobID       int64 `json:"job_id,omitempty"`
	ResultID    int64 `json:"result_id,omitempty"`

	Status     string     `json:"status,omitempty"`
	PrevStatus string     `json:"prev_status,omitempty"`
	Pass       *bool      `json:"pass,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// Key picks the most specific aggregate id so that events of one entity stay ordered.
func (e CalibrationEvent) Key() []byte {
	switch {
	case e.ResultID != 0:
		return []byte("result:" + strconv.FormatInt(e.ResultID, 10))
	case e.JobID != 0:
		return []byte("job:" + strconv.FormatInt(e.JobID, 10))
	case e.RequestID != 0:
		return []byte("request:" + strconv.FormatInt(e.RequestID, 10))
	default:
		return []byte("equipment:" + strconv.FormatInt(e.EquipmentID, 10))
	}
}
