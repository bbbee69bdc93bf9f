package dto

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var Validate = validator.New()

// ValidationMessage превращает ошибки validator в "field is required; field is invalid".
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	errMessages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(strings.ReplaceAll(fe.Field(), "_", " "))
		if fe.Tag() == "required" {
			errMessages = append(errMessages, field+" is required")
		} else {
			errMessages = append(errMessages, field+" is invalid")
		}
	}
	return strings.Join(errMessages, "; ")
}
