package service

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/vitrinehq/vitrine/internal/model"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

var (
	emailRules    = []validation.Rule{validation.Required, validation.Length(3, 255), is.Email}
	nameRules     = []validation.Rule{validation.Required, validation.Length(1, 100)}
	passwordRules = []validation.Rule{validation.Required, validation.Length(6, maxPasswordBytes), validation.By(maxBytes(maxPasswordBytes))}
	roleRule      = validation.In(model.RoleAdmin, model.RoleSuperAdmin).Error("must be ADMIN or SUPERADMIN")
)

func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > n {
			return fmt.Errorf("must be at most %d bytes", n)
		}
		return nil
	}
}

// BootstrapInput is the payload of the one-time registration.
type BootstrapInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in BootstrapInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, nameRules...),
		validation.Field(&in.Email, emailRules...),
		validation.Field(&in.Password, passwordRules...),
	)
}

// LoginInput is the payload of a login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// ChangePasswordInput is the payload for changing one's own password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (in ChangePasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CurrentPassword, validation.Required),
		validation.Field(&in.NewPassword, passwordRules...),
	)
}

// ResetPasswordInput is the payload for setting another admin's password.
type ResetPasswordInput struct {
	Password string `json:"password"`
}

func (in ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Password, passwordRules...),
	)
}

// CreateAdminInput is the payload for creating an admin account.
type CreateAdminInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	IsActive *bool      `json:"is_active"`
}

func (in CreateAdminInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, nameRules...),
		validation.Field(&in.Email, emailRules...),
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.Role, roleRule),
	)
}

// UpdateAdminInput is the payload for a partial admin update.
type UpdateAdminInput struct {
	Name     *string     `json:"name"`
	Email    *string     `json:"email"`
	Role     *model.Role `json:"role"`
	IsActive *bool       `json:"is_active"`
}

func (in UpdateAdminInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.NilOrNotEmpty, validation.Length(3, 255), is.Email),
		validation.Field(&in.Role, validation.NilOrNotEmpty, roleRule),
	)
}

func (in UpdateAdminInput) changes() AdminChanges {
	return AdminChanges{Email: in.Email, Name: in.Name, Role: in.Role, IsActive: in.IsActive}
}

// validate runs v.Validate and converts field errors into a tagged
// Validation error.
func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fe := range fieldErrs {
			fields[name] = fe.Error()
		}
		return validationError(fields)
	}
	return internalError("validate input", err)
}
