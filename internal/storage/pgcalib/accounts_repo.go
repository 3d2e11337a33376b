package pgcalib

import (
	"context"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/jackc/pgx/v5"
)

func (s *Storage) UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error) {
	var out models.Account
	err := s.db.QueryRow(ctx, `
INSERT INTO accounts (id, username, role, company_name, created_at, updated_at)
VALUES ($1,$2,$3,$4, now(), now())
ON CONFLICT (id)
DO UPDATE SET username = EXCLUDED.username, role = EXCLUDED.role, company_name = EXCLUDED.company_name, updated_at = now()
RETURNING id, username, role, company_name, created_at, updated_at
`, a.ID, a.Username, a.Role, a.CompanyName).Scan(
		&out.ID, &out.Username, &out.Role, &out.CompanyName, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if code, _ := pgCode(err); code == pgUniqueViolation {
			return nil, calerr.Conflict("username %q is taken", a.Username)
		}
		return nil, classify(err, "upsert account")
	}
	return &out, nil
}

func (s *Storage) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRow(ctx, `
SELECT id, username, role, company_name, created_at, updated_at
FROM accounts
WHERE id = $1
`, id).Scan(&a.ID, &a.Username, &a.Role, &a.CompanyName, &a.CreatedAt, &a.UpdatedAt)
	if isNoRows(err) {
		return nil, calerr.NotFound("account %d not found", id)
	}
	if err != nil {
		return nil, classify(err, "select account")
	}
	return &a, nil
}

// OwnedEquipmentIDs lists the equipment that goes away with the account.
func (s *Storage) OwnedEquipmentIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM equipment WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, classify(err, "select owned equipment")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, classify(err, "scan owned equipment")
	}
	return ids, nil
}

// DeleteAccount removes the account. Owned equipment cascades with it and jobs assigned
// to the account lose their technician.
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		if code, _ := pgCode(err); code == pgForeignKeyViolation {
			return calerr.Conflict("account %d owns a reference standard used by recorded results", id)
		}
		return classify(err, "delete account")
	}
	if tag.RowsAffected() == 0 {
		return calerr.NotFound("account %d not found", id)
	}
	return nil
}
