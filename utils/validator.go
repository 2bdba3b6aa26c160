package utils

import (
	"errors"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct validates a request struct against its `validate` tags and
// flattens the result into one human-readable error.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs []string
	for _, err := range err.(validator.ValidationErrors) {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			errs = append(errs, field+" is required")
		case "min":
			errs = append(errs, field+" must be at least "+param)
		case "max":
			errs = append(errs, field+" must be at most "+param)
		case "email":
			errs = append(errs, field+" must be a valid email")
		case "len":
			errs = append(errs, field+" must be exactly "+param+" characters")
		default:
			errs = append(errs, field+" is invalid")
		}
	}

	return errors.New(strings.Join(errs, ", "))
}

// IsValidEmail reports whether the address is syntactically valid
func IsValidEmail(email string) bool {
	return checkmail.ValidateFormat(email) == nil
}
