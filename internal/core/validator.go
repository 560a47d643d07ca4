package core

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"deedhive/internal/types"
)

// errCodeValidationFailed is the generic code for constraint failures that
// have no more specific validation code.
const errCodeValidationFailed types.ErrorCode = "validation_failed"

// Validator wraps go-playground/validator with the domain rules the API
// needs and maps failures onto AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// iana_tz accepts any zone name the host tzdata resolves. Empty values
	// are left to the required tag.
	_ = v.RegisterValidation("iana_tz", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		if name == "" {
			return true
		}
		_, err := time.LoadLocation(name)
		return err == nil
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct checks dst against its validate tags. The first failing
// field determines the error code; all failures land in the details map as
// field -> failed tag.
func (v *Validator) ValidateStruct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"validation could not be performed", err)
	}

	details := make(map[string]any, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fe.Tag()
	}

	first := errs[0]
	code := errCodeValidationFailed
	switch first.Tag() {
	case "required":
		code = types.ErrCodeValidationMissingField
	case "iana_tz":
		code = types.ErrCodeValidationInvalidTimezone
	}

	return types.NewAppErrorWithDetails(code,
		"request validation failed", nil, details)
}
