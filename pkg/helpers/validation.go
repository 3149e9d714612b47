package helpers

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps go-playground validator
type CustomValidator struct {
	validate *validator.Validate
}

// NewCustomValidator creates a new validator instance
func NewCustomValidator() *CustomValidator {
	v := validator.New()
	return &CustomValidator{validate: v}
}

// Validate validates a struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validate.Struct(i)
}

// FieldErrors converts a validation error into a field -> message map
func FieldErrors(err error) map[string]string {
	fields := map[string]string{}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		fields["payload"] = err.Error()
		return fields
	}
	for _, fieldErr := range validationErrors {
		name := strings.ToLower(fieldErr.Field())
		switch fieldErr.Tag() {
		case "required":
			fields[name] = fmt.Sprintf("The %s field is required", name)
		case "oneof":
			fields[name] = fmt.Sprintf("The %s field must be one of: %s", name, fieldErr.Param())
		case "min":
			fields[name] = fmt.Sprintf("The %s field must be at least %s characters", name, fieldErr.Param())
		case "gtfield":
			fields[name] = fmt.Sprintf("The %s field must be after %s", name, strings.ToLower(fieldErr.Param()))
		default:
			fields[name] = fmt.Sprintf("The %s field is invalid", name)
		}
	}
	return fields
}
