package models

import "time"

type Environment struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type CalibrationResult struct {
	ID                  int64       `json:"id"`
	JobOrderID          int64       `json:"jobOrderId"`
	Environment         Environment `json:"environment"`
	ReferenceStandardID int64       `json:"referenceStandardId"`
	CalibrationDate     time.Time   `json:"calibrationDate"`
	TechnicalNotes      string      `json:"technicalNotes"`
	Pass                bool        `json:"pass"`
}

type ResultRecordInput struct {
	Environment         Environment
	ReferenceStandardID int64
	Pass                bool
	Notes               string
}

// ResultWrite is applied by the store as one transaction: the result insert, the job
// completion and, for a passing verdict, the equipment calibration update.
type ResultWrite struct {
	Result      CalibrationResult
	Calibration *CalibrationUpdate
}

// RecalibrationSignal is surfaced to the caller on a failing verdict. Acting on it is a
// policy decision left outside the recorder.
type RecalibrationSignal struct {
	EquipmentID     int64           `json:"equipmentId"`
	SuggestedStatus EquipmentStatus `json:"suggestedStatus"`
	Reason          string          `json:"reason"`
}
