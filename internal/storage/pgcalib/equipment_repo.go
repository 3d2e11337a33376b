package pgcalib

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const equipmentColumns = `
  id, name, serial_number, manufacturer, model_number,
  owner_id, category, interval_days,
  last_calibration_date, next_due_date,
  status, attributes,
  next_notice_at, notice_fail_count,
  created_at, updated_at`

func scanEquipment(row pgx.Row) (*models.Equipment, error) {
	var e models.Equipment
	var attrs []byte
	if err := row.Scan(
		&e.ID, &e.Name, &e.SerialNumber, &e.Manufacturer, &e.ModelNumber,
		&e.OwnerID, &e.Category, &e.IntervalDays,
		&e.LastCalibrationDate, &e.NextDueDate,
		&e.Status, &attrs,
		&e.NextNoticeAt, &e.NoticeFailCount,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Attributes = map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, errors.Wrap(err, "decode attributes")
		}
	}
	return &e, nil
}

func collectEquipment(rows pgx.Rows) ([]*models.Equipment, error) {
	defer rows.Close()
	out := make([]*models.Equipment, 0)
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan equipment")
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, calerr.Validation("technical attributes are not a JSON document: %v", err)
	}
	return b, nil
}

func (s *Storage) CreateEquipment(ctx context.Context, e models.Equipment) (*models.Equipment, error) {
	attrs, err := encodeAttributes(e.Attributes)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO equipment (
  name, serial_number, manufacturer, model_number, owner_id, category, interval_days,
  status, attributes, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
RETURNING`+equipmentColumns,
		e.Name, e.SerialNumber, e.Manufacturer, e.ModelNumber, e.OwnerID, e.Category, e.IntervalDays,
		e.Status, attrs)
	out, err := scanEquipment(row)
	if err != nil {
		switch code, _ := pgCode(err); code {
		case pgUniqueViolation:
			return nil, calerr.Validation("serial number %q is already registered", e.SerialNumber)
		case pgForeignKeyViolation:
			return nil, calerr.Validation("owner %d does not exist", e.OwnerID)
		}
		return nil, classify(err, "insert equipment")
	}
	return out, nil
}

func (s *Storage) GetEquipment(ctx context.Context, id int64) (*models.Equipment, error) {
	e, err := scanEquipment(s.db.QueryRow(ctx, `SELECT`+equipmentColumns+` FROM equipment WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, calerr.NotFound("equipment %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "select equipment")
	}
	return e, nil
}

func (s *Storage) GetEquipmentBySerial(ctx context.Context, serial string) (*models.Equipment, error) {
	e, err := scanEquipment(s.db.QueryRow(ctx, `SELECT`+equipmentColumns+` FROM equipment WHERE serial_number = $1`, serial))
	if isNoRows(err) {
		return nil, calerr.NotFound("equipment with serial %q not found", serial)
	}
	if err != nil {
		return nil, classify(err, "select equipment by serial")
	}
	return e, nil
}

func (s *Storage) UpdateEquipmentStatus(ctx context.Context, id int64, status models.EquipmentStatus) (*models.Equipment, error) {
	e, err := scanEquipment(s.db.QueryRow(ctx, `
UPDATE equipment SET status = $2, updated_at = now()
WHERE id = $1
RETURNING`+equipmentColumns, id, status))
	if isNoRows(err) {
		return nil, calerr.NotFound("equipment %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "update equipment status")
	}
	return e, nil
}

func (s *Storage) UpdateEquipmentAttributes(ctx context.Context, id int64, attrs map[string]any) (*models.Equipment, error) {
	b, err := encodeAttributes(attrs)
	if err != nil {
		return nil, err
	}
	e, err := scanEquipment(s.db.QueryRow(ctx, `
UPDATE equipment SET attributes = $2, updated_at = now()
WHERE id = $1
RETURNING`+equipmentColumns, id, b))
	if isNoRows(err) {
		return nil, calerr.NotFound("equipment %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "update equipment attributes")
	}
	return e, nil
}

// UpdateEquipmentCategory changes the category unless a result already references the
// equipment as its reference standard. The check and the update share one transaction.
func (s *Storage) UpdateEquipmentCategory(ctx context.Context, id int64, category models.EquipmentCategory) (*models.Equipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, calerr.Infra(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := scanEquipment(tx.QueryRow(ctx, `SELECT`+equipmentColumns+` FROM equipment WHERE id = $1 FOR UPDATE`, id)); err != nil {
		if isNoRows(err) {
			return nil, calerr.NotFound("equipment %d not found", id)
		}
		return nil, classify(err, "lock equipment")
	}

	var uses int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM calibration_results WHERE reference_standard_id = $1`, id).Scan(&uses); err != nil {
		return nil, classify(err, "count reference uses")
	}
	if uses > 0 {
		return nil, calerr.Traceability("equipment %d is the reference standard of %d recorded results", id, uses)
	}

	e, err := scanEquipment(tx.QueryRow(ctx, `
UPDATE equipment SET category = $2, updated_at = now()
WHERE id = $1
RETURNING`+equipmentColumns, id, category))
	if err != nil {
		return nil, classify(err, "update equipment category")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, calerr.Infra(err, "commit tx")
	}
	return e, nil
}

func (s *Storage) CountReferenceUses(ctx context.Context, equipmentID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM calibration_results WHERE reference_standard_id = $1`, equipmentID).Scan(&n)
	if err != nil {
		return 0, classify(err, "count reference uses")
	}
	return n, nil
}

// DeleteEquipment refuses while requests exist for the equipment or results use it as
// their reference standard.
func (s *Storage) DeleteEquipment(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return calerr.Infra(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var requests int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM calibration_requests WHERE equipment_id = $1`, id).Scan(&requests); err != nil {
		return classify(err, "count requests")
	}
	if requests > 0 {
		return calerr.Conflict("equipment %d has %d calibration requests", id, requests)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM equipment WHERE id = $1`, id)
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return calerr.Conflict("equipment %d is referenced by recorded results", id)
		}
		return classify(err, "delete equipment")
	}
	if tag.RowsAffected() == 0 {
		return calerr.NotFound("equipment %d not found", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return calerr.Infra(err, "commit tx")
	}
	return nil
}

// ListDueEquipment returns calibrated equipment due on or before the given day, earliest
// first. Scrapped equipment is never due.
func (s *Storage) ListDueEquipment(ctx context.Context, before time.Time, limit, offset int) ([]*models.Equipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, `
SELECT`+equipmentColumns+`
FROM equipment
WHERE next_due_date IS NOT NULL
  AND next_due_date <= $1
  AND status <> $2
ORDER BY next_due_date ASC, id ASC
LIMIT $3 OFFSET $4
`, models.CalendarDate(before), models.EquipmentScrapped, limit, offset)
	if err != nil {
		return nil, classify(err, "select due equipment")
	}
	out, err := collectEquipment(rows)
	if err != nil {
		return nil, calerr.Infra(err, "list due equipment")
	}
	return out, nil
}

// ClaimDueEquipment picks equipment due within the horizon whose notice time has come and
// leases it, so that concurrent workers skip it while a notice is being sent.
func (s *Storage) ClaimDueEquipment(ctx context.Context, now time.Time, horizon time.Duration, limit int, lease time.Duration) ([]*models.Equipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, calerr.Infra(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+equipmentColumns+`
FROM equipment
WHERE next_due_date IS NOT NULL
  AND next_due_date <= $1
  AND status = $2
  AND (next_notice_at IS NULL OR next_notice_at <= $3)
ORDER BY next_due_date ASC, id ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, models.CalendarDate(now.Add(horizon)), models.EquipmentActive, now.UTC(), limit)
	if err != nil {
		return nil, classify(err, "select due equipment")
	}
	picked, err := collectEquipment(rows)
	if err != nil {
		return nil, calerr.Infra(err, "claim due equipment")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, e := range picked {
		if _, err := tx.Exec(ctx, `UPDATE equipment SET next_notice_at = $2 WHERE id = $1`, e.ID, leaseUntil); err != nil {
			return nil, classify(err, "lease equipment")
		}
		e.NextNoticeAt = &leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, calerr.Infra(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) ScheduleDueNotice(ctx context.Context, upd models.DueNoticeUpdate) error {
	tag, err := s.db.Exec(ctx, `
UPDATE equipment SET next_notice_at = $2, notice_fail_count = $3
WHERE id = $1
`, upd.EquipmentID, upd.NextNoticeAt.UTC(), upd.FailCount)
	if err != nil {
		return classify(err, "schedule due notice")
	}
	if tag.RowsAffected() == 0 {
		return calerr.NotFound("equipment %d not found", upd.EquipmentID)
	}
	return nil
}
