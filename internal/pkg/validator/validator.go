package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/zveno/chat-service/internal/model"
)

const (
	maxNameLength = 100
)

type registration struct {
	Email    string `validate:"required,email,max=254"`
	Username string `validate:"required,max=32"`
	Password string `validate:"min=8,max=72"`
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New()}
}

// NormalizeMessage trims content and enforces the message length rules.
func (v *Validator) NormalizeMessage(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", model.ErrEmptyMessage
	}

	if utf8.RuneCountInString(trimmed) > model.MaxMessageLength {
		return "", fmt.Errorf("%w: content exceeds maximum length of %d characters", model.ErrMessageTooLong, model.MaxMessageLength)
	}

	return trimmed, nil
}

func (v *Validator) ValidateRegister(email, username, password string) error {
	err := v.validate.Struct(registration{
		Email:    email,
		Username: strings.TrimSpace(username),
		Password: password,
	})
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %q check", model.ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
	}

	return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
}

func (v *Validator) ValidateName(kind, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: %s name is required", model.ErrInvalidInput, kind)
	}

	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: %s name exceeds maximum length of %d characters", model.ErrInvalidInput, kind, maxNameLength)
	}

	return nil
}

// ValidateAssignableRole accepts the roles an owner may hand out.
func (v *Validator) ValidateAssignableRole(raw string) (model.Role, error) {
	role, err := model.ParseRole(raw)
	if err != nil {
		return "", err
	}

	if role == model.RoleOwner {
		return "", fmt.Errorf("%w: ownership cannot be assigned", model.ErrInvalidRole)
	}

	return role, nil
}
