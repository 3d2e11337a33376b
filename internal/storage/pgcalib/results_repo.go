package pgcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/jackc/pgx/v5"
)

const resultColumns = `
  id, job_order_id, temperature, humidity, reference_standard_id,
  calibration_date, technical_notes, pass`

func scanResult(row pgx.Row) (*models.CalibrationResult, error) {
	var r models.CalibrationResult
	if err := row.Scan(
		&r.ID, &r.JobOrderID, &r.Environment.Temperature, &r.Environment.Humidity, &r.ReferenceStandardID,
		&r.CalibrationDate, &r.TechnicalNotes, &r.Pass,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordResult writes a result, completes its job order and, for a passing verdict,
// applies the calibration update to the equipment. Either all of it happens or nothing.
func (s *Storage) RecordResult(ctx context.Context, w models.ResultWrite) (*models.CalibrationResult, error) {
	r := w.Result

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, calerr.Infra(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var jobStatus models.JobStatus
	err = tx.QueryRow(ctx, `SELECT status FROM job_orders WHERE id = $1 FOR UPDATE`, r.JobOrderID).Scan(&jobStatus)
	if isNoRows(err) {
		return nil, calerr.NotFound("job order %d not found", r.JobOrderID)
	}
	if err != nil {
		return nil, classify(err, "lock job order")
	}

	var existing int64
	err = tx.QueryRow(ctx, `SELECT id FROM calibration_results WHERE job_order_id = $1`, r.JobOrderID).Scan(&existing)
	if err == nil {
		return nil, calerr.Conflict("job order %d already has result %d", r.JobOrderID, existing)
	}
	if !isNoRows(err) {
		return nil, classify(err, "select existing result")
	}
	if jobStatus != models.JobPendingReview {
		return nil, calerr.InvalidTransition("job order %d is %s, results are recorded in %s", r.JobOrderID, jobStatus, models.JobPendingReview)
	}

	var category models.EquipmentCategory
	err = tx.QueryRow(ctx, `SELECT category FROM equipment WHERE id = $1 FOR SHARE`, r.ReferenceStandardID).Scan(&category)
	if isNoRows(err) {
		return nil, calerr.NotFound("reference standard %d not found", r.ReferenceStandardID)
	}
	if err != nil {
		return nil, classify(err, "lock reference standard")
	}
	if category != models.CategoryReferenceStandard {
		return nil, calerr.Traceability("equipment %d is %s, not a reference standard", r.ReferenceStandardID, category)
	}

	out, err := scanResult(tx.QueryRow(ctx, `
INSERT INTO calibration_results (
  job_order_id, temperature, humidity, reference_standard_id, calibration_date, technical_notes, pass
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING`+resultColumns,
		r.JobOrderID, r.Environment.Temperature, r.Environment.Humidity, r.ReferenceStandardID,
		r.CalibrationDate.UTC(), r.TechnicalNotes, r.Pass))
	if err != nil {
		if code, _ := pgCode(err); code == pgUniqueViolation {
			return nil, calerr.Conflict("job order %d already has a result", r.JobOrderID)
		}
		return nil, classify(err, "insert result")
	}

	if _, err := tx.Exec(ctx, `UPDATE job_orders SET status = $2, updated_at = now() WHERE id = $1`,
		r.JobOrderID, models.JobCompleted); err != nil {
		return nil, classify(err, "complete job order")
	}

	if c := w.Calibration; c != nil {
		tag, err := tx.Exec(ctx, `
UPDATE equipment
SET
  last_calibration_date = $2,
  next_due_date = $3,
  status = $4,
  next_notice_at = NULL,
  notice_fail_count = 0,
  updated_at = now()
WHERE id = $1
`, c.EquipmentID, models.CalendarDate(c.LastCalibrationDate), models.CalendarDate(c.NextDueDate), c.Status)
		if err != nil {
			return nil, classify(err, "record calibration")
		}
		if tag.RowsAffected() == 0 {
			return nil, calerr.NotFound("equipment %d not found", c.EquipmentID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, calerr.Infra(err, "commit tx")
	}
	return out, nil
}

func (s *Storage) GetResult(ctx context.Context, id int64) (*models.CalibrationResult, error) {
	r, err := scanResult(s.db.QueryRow(ctx, `SELECT`+resultColumns+` FROM calibration_results WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, calerr.NotFound("result %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "select result")
	}
	return r, nil
}

func (s *Storage) GetResultByJob(ctx context.Context, jobID int64) (*models.CalibrationResult, error) {
	r, err := scanResult(s.db.QueryRow(ctx, `SELECT`+resultColumns+` FROM calibration_results WHERE job_order_id = $1`, jobID))
	if isNoRows(err) {
		return nil, calerr.NotFound("job order %d has no result", jobID)
	}
	if err != nil {
		return nil, classify(err, "select result by job")
	}
	return r, nil
}
