package middleware

import (
	"context"

	"fieldcrm/models"
	"fieldcrm/policy"

	"gorm.io/gorm"
)

// Authority answers permission and role questions for the gate.
type Authority interface {
	HasPermission(ctx context.Context, user *models.User, perm string) (bool, error)
	RoleOf(ctx context.Context, user *models.User) (string, error)
}

// PolicyAuthority evaluates the in-process policy tables against the role
// stored on the user row.
type PolicyAuthority struct{}

func (PolicyAuthority) HasPermission(_ context.Context, user *models.User, perm string) (bool, error) {
	return policy.Allows(user.Role, perm), nil
}

func (PolicyAuthority) RoleOf(_ context.Context, user *models.User) (string, error) {
	return user.Role, nil
}

// DatabaseAuthority delegates to the has_permission and get_user_role stored
// procedures.
type DatabaseAuthority struct {
	DB *gorm.DB
}

func (a DatabaseAuthority) HasPermission(ctx context.Context, user *models.User, perm string) (bool, error) {
	var allowed bool
	err := a.DB.WithContext(ctx).Raw("SELECT has_permission(?, ?)", user.AuthID, perm).Scan(&allowed).Error
	return allowed, err
}

func (a DatabaseAuthority) RoleOf(ctx context.Context, user *models.User) (string, error) {
	var role string
	err := a.DB.WithContext(ctx).Raw("SELECT get_user_role(?)", user.AuthID).Scan(&role).Error
	return role, err
}

// NewAuthority selects the authority for the configured mode.
func NewAuthority(mode string, db *gorm.DB) Authority {
	if mode == "database" {
		return DatabaseAuthority{DB: db}
	}
	return PolicyAuthority{}
}
