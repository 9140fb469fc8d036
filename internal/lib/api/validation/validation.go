package validation

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the custom "password" rule registered:
// a password must contain a digit, a lowercase and an uppercase letter.
// Length is enforced separately via the min tag.
func New() *validator.Validate {
	validate := validator.New()

	// RegisterValidation only fails on an empty tag name.
	_ = validate.RegisterValidation("password", password)

	return validate
}

func password(fl validator.FieldLevel) bool {
	var hasDigit, hasLower, hasUpper bool

	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}

	return hasDigit && hasLower && hasUpper
}
