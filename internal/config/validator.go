package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers gateway-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	return nil
}

// validateAuditOutput validates the audit output field.
// Valid values: "stdout" or "file://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()
	if output == "stdout" {
		return true
	}
	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}
	return false
}

// Validate validates Config using struct tags and the cross-field rules
// that Go's type system cannot express directly: ScopeConfig's mutual
// exclusion and AuthConfig's mode-dependent required fields. An invalid
// configuration is a fatal startup error.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateScopeMutualExclusion(); err != nil {
		return err
	}
	if err := c.validateAuthModeFields(); err != nil {
		return err
	}
	return nil
}

// validateScopeMutualExclusion ensures at most one of notebook_id,
// notebook_name, or folder_path is set, and that Mode
// (after Normalize) agrees with whichever field is actually populated.
func (c *Config) validateScopeMutualExclusion() error {
	s := c.Scope
	set := 0
	if s.NotebookID != "" {
		set++
	}
	if s.NotebookName != "" {
		set++
	}
	// An explicit folder_path mode counts even when the value is empty
	// ("" means root folder, a meaningful, non-default scope).
	if s.Mode == ScopeModeFolderPath || s.FolderPath != "" {
		set++
	}
	if set > 1 {
		return errors.New("scope: at most one of notebook_id, notebook_name, or folder_path may be set")
	}

	switch s.Mode {
	case ScopeModeNotebookID:
		if s.NotebookID == "" {
			return errors.New("scope: mode is notebook_id but notebook_id is empty")
		}
	case ScopeModeNotebookName:
		if s.NotebookName == "" {
			return errors.New("scope: mode is notebook_name but notebook_name is empty")
		}
	case ScopeModeNone:
		if set > 0 {
			return errors.New("scope: mode is none but a scope field is set")
		}
	case ScopeModeFolderPath, "":
		// folder_path's zero value ("") is the valid root-folder scope.
	}
	return nil
}

// validateAuthModeFields enforces the mode-dependent required fields:
// username is required only in user_token mode, and at least one of
// the runtime secret or its at-rest hash must be present.
func (c *Config) validateAuthModeFields() error {
	a := c.Auth
	if a.Mode == AuthModeUserToken && a.Username == "" {
		return errors.New("auth: username is required when mode is user_token")
	}
	if a.AccessPassword == "" && a.AccessPasswordHash == "" {
		return errors.New("auth: one of the runtime secret (env) or access_password_hash must be set")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout' or 'file://<absolute-path>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
