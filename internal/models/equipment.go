package models

import "time"

type EquipmentCategory string

const (
	CategoryCustomerAsset     EquipmentCategory = "CUSTOMER"
	CategoryReferenceStandard EquipmentCategory = "REFERENCE"
)

func (c EquipmentCategory) Valid() bool {
	return c == CategoryCustomerAsset || c == CategoryReferenceStandard
}

type EquipmentStatus string

const (
	EquipmentActive        EquipmentStatus = "ACTIVE"
	EquipmentInCalibration EquipmentStatus = "IN_CAL"
	EquipmentOutOfService  EquipmentStatus = "OUT"
	EquipmentScrapped      EquipmentStatus = "SCRAPPED"
)

func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentActive, EquipmentInCalibration, EquipmentOutOfService, EquipmentScrapped:
		return true
	}
	return false
}

const DefaultCalibrationIntervalDays = 365

type Equipment struct {
	ID                  int64             `json:"id"`
	Name                string            `json:"name"`
	SerialNumber        string            `json:"serialNumber"`
	Manufacturer        string            `json:"manufacturer,omitempty"`
	ModelNumber         string            `json:"modelNumber,omitempty"`
	OwnerID             int64             `json:"ownerId"`
	Category            EquipmentCategory `json:"category"`
	IntervalDays        int               `json:"calibrationIntervalDays"`
	LastCalibrationDate *time.Time        `json:"lastCalibrationDate,omitempty"`
	NextDueDate         *time.Time        `json:"nextDueDate,omitempty"`
	Status              EquipmentStatus   `json:"status"`
	Attributes          map[string]any    `json:"technicalAttributes"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`

	NextNoticeAt    *time.Time `json:"-"`
	NoticeFailCount int32      `json:"-"`
}

type EquipmentCreateInput struct {
	Name         string
	SerialNumber string
	Manufacturer string
	ModelNumber  string
	OwnerID      int64
	Category     EquipmentCategory
	IntervalDays int
	Attributes   map[string]any
}

// CalibrationUpdate carries the due-date bookkeeping written on a passing verdict.
type CalibrationUpdate struct {
	EquipmentID         int64
	LastCalibrationDate time.Time
	NextDueDate         time.Time
	Status              EquipmentStatus
}

// DueNoticeUpdate reschedules the due-date reminder of one piece of equipment.
type DueNoticeUpdate struct {
	EquipmentID  int64
	NextNoticeAt time.Time
	FailCount    int32
}

// CalendarDate drops the clock part, keeping the calendar day in UTC.
func CalendarDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextDueDate adds the interval to the calibration date. Whole multiples of 365 days
// are added as calendar years so that annual intervals land on the anniversary.
func NextDueDate(calibrated time.Time, intervalDays int) time.Time {
	d := CalendarDate(calibrated)
	years := intervalDays / 365
	days := intervalDays % 365
	return d.AddDate(years, 0, days)
}
