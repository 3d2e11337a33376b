package models

import "time"

type JobStatus string

const (
	JobAssigned      JobStatus = "ASSIGNED"
	JobInProgress    JobStatus = "IN_PROGRESS"
	JobPendingReview JobStatus = "REVIEW"
	JobCompleted     JobStatus = "COMPLETED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobAssigned, JobInProgress, JobPendingReview, JobCompleted:
		return true
	}
	return false
}

type JobOrder struct {
	ID              int64      `json:"id"`
	RequestID       int64      `json:"requestId"`
	TechnicianID    *int64     `json:"technicianId,omitempty"`
	AssignedDate    time.Time  `json:"assignedDate"`
	ScheduledDate   *time.Time `json:"scheduledDate,omitempty"`
	Status          JobStatus  `json:"status"`
	TechnicianNotes string     `json:"technicianNotes"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type JobCreateInput struct {
	TechnicianID  *int64
	ScheduledDate *time.Time
}

type JobFilter struct {
	TechnicianID *int64
	Unassigned   bool
	Status       *JobStatus
}
