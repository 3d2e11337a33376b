package notifier

import (
	"context"
	"time"

	"github.com/BearBump/CalibBox/internal/models"
)

// DueNotice tells an equipment owner that a recalibration is coming up or overdue.
type DueNotice struct {
	EquipmentID  int64     `json:"equipment_id"`
	OwnerID      int64     `json:"owner_id"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serial_number"`
	NextDueDate  time.Time `json:"next_due_date"`
	Overdue      bool      `json:"overdue"`
	SentAt       time.Time `json:"sent_at"`
}

type Client interface {
	SendDueNotice(ctx context.Context, n DueNotice) error
}

// NoticeFor builds the notice for e as seen at now. Equipment without a due date yields ok=false.
func NoticeFor(e *models.Equipment, now time.Time) (DueNotice, bool) {
	if e == nil || e.NextDueDate == nil {
		return DueNotice{}, false
	}
	due := models.CalendarDate(*e.NextDueDate)
	return DueNotice{
		EquipmentID:  e.ID,
		OwnerID:      e.OwnerID,
		Name:         e.Name,
		SerialNumber: e.SerialNumber,
		NextDueDate:  due,
		Overdue:      due.Before(models.CalendarDate(now)),
		SentAt:       now.UTC(),
	}, true
}
