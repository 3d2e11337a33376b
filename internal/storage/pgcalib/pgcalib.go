package pgcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.Ping(ctx), "ping pg")
}

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// classify maps constraint violations that were not anticipated by the caller onto the
// domain taxonomy. Everything else is an infrastructure failure.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if calerr.KindOf(err) != calerr.KindInfrastructure {
		return err
	}
	code, constraint := pgCode(err)
	switch code {
	case pgUniqueViolation:
		return calerr.Conflict("%s: unique constraint %s", msg, constraint)
	case pgForeignKeyViolation:
		return calerr.Validation("%s: referenced entity missing (%s)", msg, constraint)
	case pgCheckViolation:
		return calerr.Validation("%s: check %s failed", msg, constraint)
	}
	return calerr.Infra(err, msg)
}
