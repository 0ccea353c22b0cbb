package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

// AdminChanges holds the proposed changes to an admin account. Nil fields are
// left as they are.
type AdminChanges struct {
	Email    *string
	Name     *string
	Role     *model.Role
	IsActive *bool
}

// Lifecycle enforces the cross-account invariants on admin mutations made by
// an authenticated actor. Each check runs in the same transaction as the
// write it protects.
type Lifecycle struct {
	store *config.Store
	audit *Emitter
}

// NewLifecycle creates a Lifecycle. audit may be nil.
func NewLifecycle(store *config.Store, audit *Emitter) *Lifecycle {
	return &Lifecycle{store: store, audit: audit}
}

// Create inserts a new non-SUPERADMIN account on behalf of actor.
func (l *Lifecycle) Create(ctx context.Context, actor *Principal, admin *model.Admin, origin Origin) error {
	if admin.Role == model.RoleSuperAdmin {
		return ErrSuperadminCreateForbidden
	}
	if admin.Role == "" {
		admin.Role = model.RoleAdmin
	}
	if err := l.store.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, config.ErrDuplicate) {
			return ErrEmailTaken
		}
		return internalError("create admin", err)
	}

	l.audit.Record(model.AuditEntry{
		ActorID:   actor.SubjectID,
		TargetID:  admin.ID,
		Action:    model.AuditAdminCreate,
		Message:   fmt.Sprintf("created %s account %s", admin.Role, admin.Email),
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	return nil
}

// Update applies changes to the target account unless doing so would demote
// the actor's own SUPERADMIN account or leave no active SUPERADMIN.
func (l *Lifecycle) Update(ctx context.Context, actor *Principal, targetID string, changes AdminChanges, origin Origin) (*model.Admin, error) {
	var updated *model.Admin
	var summary []string

	err := l.store.InAdminTx(ctx, func(tx *config.AdminTx) error {
		supers, err := tx.CountActiveSuperAdmins(ctx)
		if err != nil {
			return err
		}
		target, err := tx.GetAdmin(ctx, targetID)
		if err != nil {
			return err
		}

		role, active := target.Role, target.IsActive
		if changes.Role != nil {
			role = *changes.Role
		}
		if changes.IsActive != nil {
			active = *changes.IsActive
		}

		if target.ID == actor.SubjectID && target.Role == model.RoleSuperAdmin && role != model.RoleSuperAdmin {
			return ErrSelfDemotionForbidden
		}
		if target.IsActiveSuperAdmin() && supers <= 1 && (role != model.RoleSuperAdmin || !active) {
			return ErrLastSuperadminProtected
		}

		summary = describeChanges(target, changes)
		if changes.Email != nil {
			target.Email = *changes.Email
		}
		if changes.Name != nil {
			target.Name = *changes.Name
		}
		target.Role, target.IsActive = role, active

		if err := tx.UpdateAdmin(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, translateStoreError("update admin", err)
	}

	l.audit.Record(model.AuditEntry{
		ActorID:   actor.SubjectID,
		TargetID:  updated.ID,
		Action:    model.AuditAdminUpdate,
		Message:   "updated " + updated.Email + ": " + strings.Join(summary, ", "),
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	return updated, nil
}

// Delete removes the target account unless it is the actor's own or the last
// active SUPERADMIN.
func (l *Lifecycle) Delete(ctx context.Context, actor *Principal, targetID string, origin Origin) error {
	var deleted *model.Admin

	err := l.store.InAdminTx(ctx, func(tx *config.AdminTx) error {
		supers, err := tx.CountActiveSuperAdmins(ctx)
		if err != nil {
			return err
		}
		target, err := tx.GetAdmin(ctx, targetID)
		if err != nil {
			return err
		}

		if target.ID == actor.SubjectID {
			return ErrSelfDeleteForbidden
		}
		if target.IsActiveSuperAdmin() && supers <= 1 {
			return ErrLastSuperadminProtected
		}

		if err := tx.DeleteAdmin(ctx, target.ID); err != nil {
			return err
		}
		deleted = target
		return nil
	})
	if err != nil {
		return translateStoreError("delete admin", err)
	}

	l.audit.Record(model.AuditEntry{
		ActorID:   actor.SubjectID,
		TargetID:  deleted.ID,
		Action:    model.AuditAdminDelete,
		Message:   fmt.Sprintf("deleted %s account %s", deleted.Role, deleted.Email),
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	return nil
}

func describeChanges(target *model.Admin, c AdminChanges) []string {
	var out []string
	if c.Email != nil && config.NormalizeEmail(*c.Email) != target.Email {
		out = append(out, fmt.Sprintf("email %s -> %s", target.Email, config.NormalizeEmail(*c.Email)))
	}
	if c.Name != nil && *c.Name != target.Name {
		out = append(out, "name changed")
	}
	if c.Role != nil && *c.Role != target.Role {
		out = append(out, fmt.Sprintf("role %s -> %s", target.Role, *c.Role))
	}
	if c.IsActive != nil && *c.IsActive != target.IsActive {
		if *c.IsActive {
			out = append(out, "activated")
		} else {
			out = append(out, "deactivated")
		}
	}
	if len(out) == 0 {
		out = append(out, "no changes")
	}
	return out
}

// translateStoreError maps store sentinels to tagged errors and passes tagged
// errors through untouched.
func translateStoreError(op string, err error) error {
	var tagged *Error
	switch {
	case errors.As(err, &tagged):
		return tagged
	case errors.Is(err, config.ErrNotFound):
		return ErrAdminNotFound
	case errors.Is(err, config.ErrDuplicate):
		return ErrEmailTaken
	default:
		return internalError(op, err)
	}
}
