package pgcalib

import (
	"context"
	"time"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const requestColumns = `
  id, tracking_code, equipment_id, requested_by,
  request_date, desired_date, description, status, updated_at`

func scanRequest(row pgx.Row) (*models.CalibrationRequest, error) {
	var r models.CalibrationRequest
	var requestedBy *int64
	if err := row.Scan(
		&r.ID, &r.TrackingCode, &r.EquipmentID, &requestedBy,
		&r.RequestDate, &r.DesiredDate, &r.Description, &r.Status, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if requestedBy != nil {
		r.RequestedBy = *requestedBy
	}
	return &r, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func (s *Storage) CreateRequest(ctx context.Context, r models.CalibrationRequest) (*models.CalibrationRequest, error) {
	if r.RequestDate.IsZero() {
		r.RequestDate = time.Now().UTC()
	}
	out, err := scanRequest(s.db.QueryRow(ctx, `
INSERT INTO calibration_requests (
  tracking_code, equipment_id, requested_by, request_date, desired_date, description, status, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7, now())
RETURNING`+requestColumns,
		r.TrackingCode, r.EquipmentID, nullableID(r.RequestedBy), r.RequestDate.UTC(), r.DesiredDate, r.Description, r.Status))
	if err != nil {
		switch code, _ := pgCode(err); code {
		case pgUniqueViolation:
			return nil, calerr.Conflict("tracking code %q already issued", r.TrackingCode)
		case pgForeignKeyViolation:
			return nil, calerr.NotFound("equipment %d not found", r.EquipmentID)
		}
		return nil, classify(err, "insert request")
	}
	return out, nil
}

func (s *Storage) GetRequest(ctx context.Context, id int64) (*models.CalibrationRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, `SELECT`+requestColumns+` FROM calibration_requests WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, calerr.NotFound("request %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "select request")
	}
	return r, nil
}

// UpdateRequestStatus moves the request from one status to another. The update only
// applies while the request is still in from and no job order consumed it.
func (s *Storage) UpdateRequestStatus(ctx context.Context, id int64, from, to models.RequestStatus) (*models.CalibrationRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, `
UPDATE calibration_requests SET status = $3, updated_at = now()
WHERE id = $1
  AND status = $2
  AND NOT EXISTS (SELECT 1 FROM job_orders j WHERE j.request_id = calibration_requests.id)
RETURNING`+requestColumns, id, from, to))
	if isNoRows(err) {
		cur, gerr := s.GetRequest(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, calerr.InvalidTransition("request %d is %s, expected %s without a job order", id, cur.Status, from)
	}
	if err != nil {
		return nil, classify(err, "update request status")
	}
	return r, nil
}

func (s *Storage) ListRequests(ctx context.Context, f models.RequestFilter, limit, offset int) ([]*models.CalibrationRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, `
SELECT`+requestColumns+`
FROM calibration_requests
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::bigint IS NULL OR equipment_id = $2)
  AND ($3::bigint IS NULL OR requested_by = $3)
ORDER BY request_date ASC, id ASC
LIMIT $4 OFFSET $5
`, statusArg(f.Status), f.EquipmentID, f.RequestedBy, limit, offset)
	if err != nil {
		return nil, classify(err, "select requests")
	}
	defer rows.Close()

	out := make([]*models.CalibrationRequest, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, calerr.Infra(errors.Wrap(err, "scan request"), "list requests")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, calerr.Infra(rows.Err(), "list requests")
	}
	return out, nil
}

func statusArg[T ~string](s *T) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
