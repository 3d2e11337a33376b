package pgcalib

import (
	"context"
	"time"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const jobColumns = `
  id, request_id, technician_id, assigned_date, scheduled_date,
  status, technician_notes, updated_at`

func scanJob(row pgx.Row) (*models.JobOrder, error) {
	var j models.JobOrder
	if err := row.Scan(
		&j.ID, &j.RequestID, &j.TechnicianID, &j.AssignedDate, &j.ScheduledDate,
		&j.Status, &j.TechnicianNotes, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJobOrder inserts the job order for an approved request. The request row is
// locked for the duration so that a concurrent cancel cannot slip in, and the unique
// request_id constraint settles races between two dispatchers.
func (s *Storage) CreateJobOrder(ctx context.Context, j models.JobOrder) (*models.JobOrder, error) {
	if j.AssignedDate.IsZero() {
		j.AssignedDate = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, calerr.Infra(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status models.RequestStatus
	err = tx.QueryRow(ctx, `SELECT status FROM calibration_requests WHERE id = $1 FOR UPDATE`, j.RequestID).Scan(&status)
	if isNoRows(err) {
		return nil, calerr.NotFound("request %d not found", j.RequestID)
	}
	if err != nil {
		return nil, classify(err, "lock request")
	}
	if status != models.RequestApproved {
		return nil, calerr.InvalidTransition("request %d is %s, only approved requests are dispatched", j.RequestID, status)
	}

	out, err := scanJob(tx.QueryRow(ctx, `
INSERT INTO job_orders (
  request_id, technician_id, assigned_date, scheduled_date, status, technician_notes, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
RETURNING`+jobColumns,
		j.RequestID, j.TechnicianID, j.AssignedDate.UTC(), j.ScheduledDate, j.Status, j.TechnicianNotes))
	if err != nil {
		switch code, _ := pgCode(err); code {
		case pgUniqueViolation:
			return nil, calerr.Conflict("request %d already has a job order", j.RequestID)
		case pgForeignKeyViolation:
			return nil, calerr.Validation("technician does not exist")
		}
		return nil, classify(err, "insert job order")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, calerr.Infra(err, "commit tx")
	}
	return out, nil
}

func (s *Storage) GetJobOrder(ctx context.Context, id int64) (*models.JobOrder, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT`+jobColumns+` FROM job_orders WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, calerr.NotFound("job order %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "select job order")
	}
	return j, nil
}

func (s *Storage) GetJobOrderByRequest(ctx context.Context, requestID int64) (*models.JobOrder, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT`+jobColumns+` FROM job_orders WHERE request_id = $1`, requestID))
	if isNoRows(err) {
		return nil, calerr.NotFound("request %d has no job order", requestID)
	}
	if err != nil {
		return nil, classify(err, "select job order by request")
	}
	return j, nil
}

func (s *Storage) UpdateJobTechnician(ctx context.Context, id int64, technicianID int64) (*models.JobOrder, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `
UPDATE job_orders SET technician_id = $2, updated_at = now()
WHERE id = $1 AND status <> $3
RETURNING`+jobColumns, id, technicianID, models.JobCompleted))
	if isNoRows(err) {
		if _, gerr := s.GetJobOrder(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, calerr.InvalidTransition("job order %d is completed", id)
	}
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return nil, calerr.Validation("technician %d does not exist", technicianID)
		}
		return nil, classify(err, "update job technician")
	}
	return j, nil
}

// UpdateJobStatus is a compare-and-set on the job status.
func (s *Storage) UpdateJobStatus(ctx context.Context, id int64, from, to models.JobStatus) (*models.JobOrder, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `
UPDATE job_orders SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING`+jobColumns, id, from, to))
	if isNoRows(err) {
		cur, gerr := s.GetJobOrder(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, calerr.InvalidTransition("job order %d is %s, expected %s", id, cur.Status, from)
	}
	if err != nil {
		return nil, classify(err, "update job status")
	}
	return j, nil
}

func (s *Storage) UpdateJobNotes(ctx context.Context, id int64, notes string) (*models.JobOrder, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `
UPDATE job_orders SET technician_notes = $2, updated_at = now()
WHERE id = $1 AND status <> $3
RETURNING`+jobColumns, id, notes, models.JobCompleted))
	if isNoRows(err) {
		if _, gerr := s.GetJobOrder(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, calerr.InvalidTransition("job order %d is completed", id)
	}
	if err != nil {
		return nil, classify(err, "update job notes")
	}
	return j, nil
}

func (s *Storage) ListJobs(ctx context.Context, f models.JobFilter, limit, offset int) ([]*models.JobOrder, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, `
SELECT`+jobColumns+`
FROM job_orders
WHERE ($1::bigint IS NULL OR technician_id = $1)
  AND (NOT $2 OR technician_id IS NULL)
  AND ($3::text IS NULL OR status = $3)
ORDER BY assigned_date ASC, id ASC
LIMIT $4 OFFSET $5
`, f.TechnicianID, f.Unassigned, statusArg(f.Status), limit, offset)
	if err != nil {
		return nil, classify(err, "select job orders")
	}
	defer rows.Close()

	out := make([]*models.JobOrder, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, calerr.Infra(errors.Wrap(err, "scan job order"), "list job orders")
		}
		out = append(out, j)
	}
	if rows.Err() != nil {
		return nil, calerr.Infra(rows.Err(), "list job orders")
	}
	return out, nil
}
