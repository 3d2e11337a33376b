package pgcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/jackc/pgx/v5"
)

const measurementColumns = `id, result_id, nominal_value, measured_value, error, uncertainty`

func scanMeasurement(row pgx.Row) (*models.MeasurementResult, error) {
	var m models.MeasurementResult
	if err := row.Scan(&m.ID, &m.ResultID, &m.Nominal, &m.Measured, &m.Error, &m.Uncertainty); err != nil {
		return nil, err
	}
	return &m, nil
}

// AddMeasurement stores a point. The error column is generated by the database from the
// same inputs, so the stored value never lags behind nominal or measured.
func (s *Storage) AddMeasurement(ctx context.Context, m models.MeasurementResult) (*models.MeasurementResult, error) {
	out, err := scanMeasurement(s.db.QueryRow(ctx, `
INSERT INTO measurement_results (result_id, nominal_value, measured_value, uncertainty)
VALUES ($1,$2,$3,$4)
RETURNING `+measurementColumns, m.ResultID, m.Nominal, m.Measured, m.Uncertainty))
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return nil, calerr.NotFound("result %d not found", m.ResultID)
		}
		return nil, classify(err, "insert measurement")
	}
	return out, nil
}

func (s *Storage) UpdateMeasurement(ctx context.Context, m models.MeasurementResult) (*models.MeasurementResult, error) {
	out, err := scanMeasurement(s.db.QueryRow(ctx, `
UPDATE measurement_results SET nominal_value = $2, measured_value = $3, uncertainty = $4
WHERE id = $1
RETURNING `+measurementColumns, m.ID, m.Nominal, m.Measured, m.Uncertainty))
	if isNoRows(err) {
		return nil, calerr.NotFound("measurement %d not found", m.ID)
	}
	if err != nil {
		return nil, classify(err, "update measurement")
	}
	return out, nil
}

func (s *Storage) GetMeasurement(ctx context.Context, id int64) (*models.MeasurementResult, error) {
	m, err := scanMeasurement(s.db.QueryRow(ctx, `SELECT `+measurementColumns+` FROM measurement_results WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, calerr.NotFound("measurement %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "select measurement")
	}
	return m, nil
}

// ListMeasurements returns the points of a result in insertion order.
func (s *Storage) ListMeasurements(ctx context.Context, resultID int64) ([]*models.MeasurementResult, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+measurementColumns+`
FROM measurement_results
WHERE result_id = $1
ORDER BY id ASC
`, resultID)
	if err != nil {
		return nil, classify(err, "select measurements")
	}
	defer rows.Close()

	out := make([]*models.MeasurementResult, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, calerr.Infra(err, "scan measurement")
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, calerr.Infra(rows.Err(), "list measurements")
	}
	return out, nil
}

func (s *Storage) DeleteMeasurement(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM measurement_results WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete measurement")
	}
	if tag.RowsAffected() == 0 {
		return calerr.NotFound("measurement %d not found", id)
	}
	return nil
}
