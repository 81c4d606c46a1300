// Package validator checks request models with go-playground/validator and
// reports failures keyed by the name clients actually send.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// QuerySyntaxChars are the characters the search engine's query parser treats
// as operators. Values tagged querysafe may not contain them.
const QuerySyntaxChars = `:()[]{}"\*?~^!&|/`

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation("querysafe", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), QuerySyntaxChars)
	})
	return v
}

// fieldName reports a field by its query parameter, then its JSON name,
// then its Go name.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"param", "json"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// Validate validates a struct using go-playground/validator tags.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok {
		return &ValidationError{Errors: errs}
	}
	return err
}

// ValidationError wraps validator.ValidationErrors.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), message(fe)))
	}
	return strings.Join(msgs, "; ")
}

// Fields maps each failing field to its message. Elements of a list share
// the list's name, so attr[0] and attr[2] both report under "attr".
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		name, _, _ := strings.Cut(fe.Field(), "[")
		if _, seen := fields[name]; !seen {
			fields[name] = message(fe)
		}
	}
	return fields
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be %s %s characters", bound, fe.Param())
		}
		return fmt.Sprintf("must be %s %s", bound, fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "contains":
		return fmt.Sprintf("must contain %q", fe.Param())
	case "startsnotwith":
		return fmt.Sprintf("must not start with %q", fe.Param())
	case "querysafe":
		return fmt.Sprintf("must not contain any of: %s", QuerySyntaxChars)
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
