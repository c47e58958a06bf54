package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var validationMessages = map[string]string{
	"required": "The field '%s' is required.",
	"email":    "The field '%s' must be a valid email address.",
	"min":      "The field '%s' must be at least %s.",
	"max":      "The field '%s' must be at most %s.",
}

// validateStruct returns JSON field names mapped to readable messages.
func validateStruct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg, ok := validationMessages[fe.Tag()]
		switch {
		case !ok:
			out[fe.Field()] = fmt.Sprintf("The field '%s' is invalid.", fe.Field())
		case strings.Count(msg, "%s") == 2:
			out[fe.Field()] = fmt.Sprintf(msg, fe.Field(), fe.Param())
		default:
			out[fe.Field()] = fmt.Sprintf(msg, fe.Field())
		}
	}
	return out
}

func (a *App) validationError(w http.ResponseWriter, fields map[string]string) {
	a.json(w, http.StatusBadRequest, map[string]any{
		"error":  errorBody{Code: "validation_failed", Message: "invalid input"},
		"fields": fields,
	})
}
