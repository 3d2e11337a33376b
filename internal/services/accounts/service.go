package accounts

import (
	"context"
	"strings"

	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/policy"
	"go.uber.org/zap"
)

type Repository interface {
	UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	OwnedEquipmentIDs(ctx context.Context, ownerID int64) ([]int64, error)
}

// EquipmentCache drops cached equipment that a removal cascaded away.
type EquipmentCache interface {
	Forget(ctx context.Context, id int64)
}

// Directory mirrors the accounts of the identity provider. Identities are issued
// elsewhere; the directory only keeps what foreign keys and role checks need.
type Directory struct {
	repo      Repository
	equipment EquipmentCache
	log       *zap.Logger
}

func New(repo Repository, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{repo: repo, log: log}
}

func (d *Directory) WithEquipmentCache(c EquipmentCache) *Directory {
	d.equipment = c
	return d
}

func (d *Directory) Upsert(ctx context.Context, actor models.Actor, a models.Account) (*models.Account, error) {
	if err := policy.Check(actor, policy.ManageAccounts, policy.Resource{}); err != nil {
		return nil, err
	}
	a.Username = strings.TrimSpace(a.Username)
	if a.ID <= 0 {
		return nil, calerr.Validation("account id must be positive")
	}
	if a.Username == "" {
		return nil, calerr.Validation("username is required")
	}
	if !a.Role.Valid() {
		return nil, calerr.Validation("unknown role %q", a.Role)
	}
	out, err := d.repo.UpsertAccount(ctx, a)
	if err != nil {
		return nil, err
	}
	d.log.Info("account upserted", zap.Int64("account_id", out.ID), zap.String("role", string(out.Role)))
	return out, nil
}

// Get returns an account to itself or to staff.
func (d *Directory) Get(ctx context.Context, actor models.Actor, id int64) (*models.Account, error) {
	if actor.AccountID != id && !actor.Role.Elevated() && actor.Role != models.RoleTechnician {
		return nil, calerr.Authorization("account %d may not read account %d", actor.AccountID, id)
	}
	return d.repo.GetAccount(ctx, id)
}

func (d *Directory) Remove(ctx context.Context, actor models.Actor, id int64) error {
	if err := policy.Check(actor, policy.ManageAccounts, policy.Resource{}); err != nil {
		return err
	}
	owned, err := d.repo.OwnedEquipmentIDs(ctx, id)
	if err != nil {
		return err
	}
	if err := d.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if d.equipment != nil {
		for _, eid := range owned {
			d.equipment.Forget(ctx, eid)
		}
	}
	d.log.Info("account removed", zap.Int64("account_id", id), zap.Int("equipment_removed", len(owned)))
	return nil
}
