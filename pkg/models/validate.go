package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ldi/metis/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks the validate tags on s. Failures are reported as
// InvalidArgument naming every offending field.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidArgument("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fieldMessage(e))
	}
	return invalidArgument("%s", strings.Join(msgs, "; "))
}

func fieldMessage(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, e.Param(), fmt.Sprint(e.Value()))
	case "min":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, e.Tag())
	}
}

func invalidArgument(format string, args ...any) error {
	return errors.InvalidArgumentf(format, args...)
}
