package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

// requireRole admits an active, authenticated caller holding one of roles.
func requireRole(actor model.Actor, roles ...model.Role) error {
	if !actor.Authenticated() {
		return fmt.Errorf("%w: no authenticated caller", ErrAuthorization)
	}
	if actor.Status == model.UserStatusBlocked {
		return fmt.Errorf("%w: account is blocked", ErrAuthorization)
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this action", ErrAuthorization, actor.Role)
}

// requireOwnerOrAdmin admits any admin, or the supplier owning the resource.
func requireOwnerOrAdmin(actor model.Actor, ownerID uuid.UUID) error {
	if err := requireRole(actor, model.RoleAdmin, model.RoleSupplier); err != nil {
		return err
	}
	if actor.IsAdmin() || (ownerID != uuid.Nil && actor.UserID == ownerID) {
		return nil
	}
	return fmt.Errorf("%w: not the owning supplier", ErrAuthorization)
}
