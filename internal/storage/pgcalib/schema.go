package pgcalib

import (
	"context"

	"github.com/pkg/errors"
)

var schemaStatements = []string{
	`
CREATE TABLE IF NOT EXISTS accounts (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  company_name TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS equipment (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  serial_number TEXT NOT NULL,
  manufacturer TEXT NOT NULL DEFAULT '',
  model_number TEXT NOT NULL DEFAULT '',
  owner_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  category TEXT NOT NULL,
  interval_days INT NOT NULL DEFAULT 365 CHECK (interval_days > 0),
  last_calibration_date DATE NULL,
  next_due_date DATE NULL,
  status TEXT NOT NULL,
  attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
  next_notice_at TIMESTAMPTZ NULL,
  notice_fail_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT equipment_serial_number_key UNIQUE (serial_number),
  CONSTRAINT equipment_due_requires_calibration CHECK (next_due_date IS NULL OR last_calibration_date IS NOT NULL)
)`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_next_due_date ON equipment(next_due_date) WHERE next_due_date IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_owner_id ON equipment(owner_id)`,
	`
CREATE TABLE IF NOT EXISTS calibration_requests (
  id BIGSERIAL PRIMARY KEY,
  tracking_code TEXT NOT NULL UNIQUE,
  equipment_id BIGINT NOT NULL REFERENCES equipment(id) ON DELETE CASCADE,
  requested_by BIGINT NULL REFERENCES accounts(id) ON DELETE SET NULL,
  request_date TIMESTAMPTZ NOT NULL,
  desired_date DATE NULL,
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_calibration_requests_status ON calibration_requests(status, request_date)`,
	`
CREATE TABLE IF NOT EXISTS job_orders (
  id BIGSERIAL PRIMARY KEY,
  request_id BIGINT NOT NULL REFERENCES calibration_requests(id) ON DELETE CASCADE,
  technician_id BIGINT NULL REFERENCES accounts(id) ON DELETE SET NULL,
  assigned_date TIMESTAMPTZ NOT NULL,
  scheduled_date DATE NULL,
  status TEXT NOT NULL,
  technician_notes TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT job_orders_request_id_key UNIQUE (request_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_job_orders_technician_id ON job_orders(technician_id, status)`,
	`
CREATE TABLE IF NOT EXISTS calibration_results (
  id BIGSERIAL PRIMARY KEY,
  job_order_id BIGINT NOT NULL REFERENCES job_orders(id) ON DELETE CASCADE,
  temperature DOUBLE PRECISION NOT NULL,
  humidity DOUBLE PRECISION NOT NULL,
  reference_standard_id BIGINT NOT NULL REFERENCES equipment(id) ON DELETE RESTRICT,
  calibration_date TIMESTAMPTZ NOT NULL,
  technical_notes TEXT NOT NULL DEFAULT '',
  pass BOOLEAN NOT NULL,
  CONSTRAINT calibration_results_job_order_id_key UNIQUE (job_order_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_calibration_results_reference ON calibration_results(reference_standard_id)`,
	`
CREATE TABLE IF NOT EXISTS measurement_results (
  id BIGSERIAL PRIMARY KEY,
  result_id BIGINT NOT NULL REFERENCES calibration_results(id) ON DELETE CASCADE,
  nominal_value DOUBLE PRECISION NOT NULL,
  measured_value DOUBLE PRECISION NOT NULL,
  error DOUBLE PRECISION GENERATED ALWAYS AS (measured_value - nominal_value) STORED,
  uncertainty DOUBLE PRECISION NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_measurement_results_result_id ON measurement_results(result_id, id)`,
}

func (s *Storage) initSchema(ctx context.Context) error {
	for _, q := range schemaStatements {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

// SchemaStatements returns the DDL applied on startup, in order.
func SchemaStatements() []string {
	out := make([]string, len(schemaStatements))
	copy(out, schemaStatements)
	return out
}
